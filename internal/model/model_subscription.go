package model

import "time"

// ScopesMode controls which OAuth2 scopes an approved subscription may use.
type ScopesMode string

const (
	ScopesModeNone   ScopesMode = "none"
	ScopesModeAll    ScopesMode = "all"
	ScopesModeSelect ScopesMode = "select"
)

func (m ScopesMode) IsValid() bool {
	switch m {
	case ScopesModeNone, ScopesModeAll, ScopesModeSelect:
		return true
	}
	return false
}

// Credential is either an API key or an OAuth2 client id/secret pair,
// depending on the API's AuthMode. A credential exists iff the subscription
// is approved.
type Credential struct {
	ApiKey       string `json:"apikey,omitempty" bson:"apikey,omitempty"`
	ClientId     string `json:"clientId,omitempty" bson:"client_id,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty" bson:"client_secret,omitempty"`
}

// Subscription binds one application to one API under one plan. The pair
// (ApplicationId, ApiId) is unique across the store.
type Subscription struct {
	Id            string      `json:"id" bson:"_id"`
	ApplicationId string      `json:"application" bson:"application_id"`
	ApiId         string      `json:"api" bson:"api_id"`
	PlanId        string      `json:"plan" bson:"plan_id"`
	AuthMode      AuthMode    `json:"auth" bson:"auth"`
	Approved      bool        `json:"approved" bson:"approved"`
	Trusted       bool        `json:"trusted,omitempty" bson:"trusted,omitempty"`
	Credential    *Credential `json:"credential,omitempty" bson:"credential,omitempty"`

	AllowedScopesMode ScopesMode `json:"allowedScopesMode,omitempty" bson:"allowed_scopes_mode,omitempty"`
	AllowedScopes     []string   `json:"allowedScopes,omitempty" bson:"allowed_scopes,omitempty"`

	// RequestedBy is the user that created the subscription. Needed for the
	// self-approval check and, with the email, the approval audit view.
	RequestedBy      string    `json:"requestedBy" bson:"requested_by"`
	RequestedByEmail string    `json:"requestedByEmail,omitempty" bson:"requested_by_email,omitempty"`
	ChangedBy        string    `json:"changedBy,omitempty" bson:"changed_by,omitempty"`
	ChangedAt        time.Time `json:"changedAt" bson:"changed_at"`

	// Seq preserves insertion order for the approval queue.
	Seq int64 `json:"-" bson:"seq"`
}

// ApprovalRequest is a derived view of a pending subscription on a plan that
// requires sign-off. It is computed, never stored.
type ApprovalRequest struct {
	Id             string    `json:"id"`
	SubscriptionId string    `json:"subscriptionId"`
	UserId         string    `json:"userId"`
	UserEmail      string    `json:"userEmail,omitempty"`
	Application    AppRef    `json:"application"`
	ApiId          string    `json:"api"`
	PlanId         string    `json:"plan"`
	Groups         []string  `json:"restrictedGroups,omitempty"`
	Trusted        bool      `json:"trusted,omitempty"`
	RequestedAt    time.Time `json:"requestedAt"`
}

// AppRef carries the audit metadata of the subscribing application.
type AppRef struct {
	Id          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ScopeGrant is a single granted scope within a Grant.
type ScopeGrant struct {
	Scope       string    `json:"scope" bson:"scope"`
	GrantedDate time.Time `json:"grantedDate" bson:"granted_date"`
}

// Grant records the scopes a user has granted an application for an API.
// Grants are independent of subscriptions but share the (application, api)
// key.
type Grant struct {
	UserId        string       `json:"userId" bson:"user_id"`
	ApplicationId string       `json:"applicationId" bson:"application_id"`
	ApiId         string       `json:"apiId" bson:"api_id"`
	Scopes        []ScopeGrant `json:"scopes" bson:"scopes"`
	ModifiedAt    time.Time    `json:"modifiedAt" bson:"modified_at"`
}
