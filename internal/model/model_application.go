package model

import "time"

// Role is the access level of an application owner entry.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
	RoleReader       Role = "reader"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleCollaborator, RoleReader:
		return true
	}
	return false
}

// Owner binds a user to an application with a role.
type Owner struct {
	UserId string `json:"userId" bson:"user_id"`
	Email  string `json:"email,omitempty" bson:"email,omitempty"`
	Role   Role   `json:"role" bson:"role"`
}

// Application is stored in the applications collection. The id is chosen by
// the creating client (e.g. "myapp") and is unique.
type Application struct {
	Id           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Description  string    `json:"description,omitempty" bson:"description,omitempty"`
	RedirectUris []string  `json:"redirectUris,omitempty" bson:"redirect_uris,omitempty"`
	Owners       []Owner   `json:"owners" bson:"owners"`
	ChangedBy    string    `json:"changedBy,omitempty" bson:"changed_by,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	ModifiedAt   time.Time `json:"modifiedAt" bson:"modified_at"`
}

// OwnerRole returns the role the given user holds on the application, or
// false when the user is not an owner entry at all.
func (app *Application) OwnerRole(userId string) (Role, bool) {
	for _, owner := range app.Owners {
		if owner.UserId == userId {
			return owner.Role, true
		}
	}
	return "", false
}

// CountRole returns how many owner entries hold the given role.
func (app *Application) CountRole(role Role) int {
	n := 0
	for _, owner := range app.Owners {
		if owner.Role == role {
			n++
		}
	}
	return n
}
