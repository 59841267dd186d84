package model

import (
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/segmentio/ksuid"
)

// GeneratePrincipal returns a developer principal with fake identity data.
// Intended for demos and tests only.
func GeneratePrincipal(scopes ...string) Principal {
	person := gofakeit.Person()
	return Principal{
		UserId: strings.ToLower(person.FirstName + "." + person.LastName),
		Email:  person.Contact.Email,
		Scopes: scopes,
	}
}

// GenerateApplication returns a populated application owned by the given
// principal. The id is lower-cased to satisfy the registration rules.
func GenerateApplication(owner Principal) Application {
	now := time.Now().UTC()
	return Application{
		Id:          "app-" + strings.ToLower(ksuid.New().String()),
		Name:        gofakeit.AppName(),
		Description: gofakeit.Sentence(8),
		Owners: []Owner{
			{UserId: owner.UserId, Email: owner.Email, Role: RoleOwner},
		},
		ChangedBy:  owner.UserId,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}
