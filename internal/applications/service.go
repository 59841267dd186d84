// Package applications implements the application registry: registration,
// metadata updates, owner management and cascading deletion.
package applications

import (
	"log"
	"os"
	"regexp"
	"time"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/authz"
	"github.com/open-apim/portal-core/internal/eventbus"
	"github.com/open-apim/portal-core/internal/model"
	"github.com/open-apim/portal-core/internal/providers/dbProviders"
	"github.com/open-apim/portal-core/internal/subscriptions"
)

var appLog = log.New(os.Stdout, "APPS:    ", log.Ldate|log.Ltime)

// Application ids end up in URLs and gateway configuration.
var appIdRegex = regexp.MustCompile(`^[a-z0-9\-_]{4,50}$`)

type Service struct {
	provider dbProviders.Provider
	subs     *subscriptions.Service
	sink     eventbus.Sink
}

func NewService(provider dbProviders.Provider, subs *subscriptions.Service, sink eventbus.Sink) *Service {
	return &Service{provider: provider, subs: subs, sink: sink}
}

// CreateRequest is the body of an application create.
type CreateRequest struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	RedirectUris []string `json:"redirectUris,omitempty"`
}

// UpdateRequest carries the patchable application metadata. Pointers
// distinguish "absent" from "clear".
type UpdateRequest struct {
	Name         *string   `json:"name,omitempty"`
	Description  *string   `json:"description,omitempty"`
	RedirectUris *[]string `json:"redirectUris,omitempty"`
}

// Create registers a new application with the caller as its sole owner.
func (s *Service) Create(p model.Principal, req CreateRequest) (*model.Application, error) {
	if !appIdRegex.MatchString(req.Id) {
		return nil, apperr.Validation("Invalid application ID, allowed chars are: a-z, 0-9, - and _, length 4 to 50")
	}
	if req.Name == "" {
		return nil, apperr.Validation("Application name is required")
	}

	now := time.Now().UTC()
	app := &model.Application{
		Id:           req.Id,
		Name:         req.Name,
		Description:  req.Description,
		RedirectUris: req.RedirectUris,
		Owners: []model.Owner{
			{UserId: p.UserId, Email: p.Email, Role: model.RoleOwner},
		},
		ChangedBy:  p.UserId,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := s.provider.CreateApplication(app); err != nil {
		return nil, err
	}
	appLog.Printf("Application created: %s by %s", app.Id, p.UserId)

	s.sink.Publish(model.ActionAdd, model.EntityApplication, eventbus.ApplicationPayload{
		ApplicationId: app.Id,
		UserId:        p.UserId,
	}.Map())
	return app, nil
}

// Get returns one application. Any owner role may read; admins always may.
func (s *Service) Get(p model.Principal, id string) (*model.Application, error) {
	app, err := s.provider.GetApplication(id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAct(p, app, authz.ActionReadApplication); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}
	return app, nil
}

// List returns the applications visible to the principal: all of them for
// admins, otherwise those the principal holds an owner entry on.
func (s *Service) List(p model.Principal) ([]model.Application, error) {
	apps, err := s.provider.ListApplications()
	if err != nil {
		return nil, err
	}
	if p.Admin {
		return apps, nil
	}
	visible := make([]model.Application, 0)
	for _, app := range apps {
		if _, isOwner := app.OwnerRole(p.UserId); isOwner {
			visible = append(visible, app)
		}
	}
	return visible, nil
}

// Update patches application metadata. Owners and collaborators may update.
func (s *Service) Update(p model.Principal, id string, req UpdateRequest) (*model.Application, error) {
	app, err := s.provider.GetApplication(id)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAct(p, app, authz.ActionUpdateApplication); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, apperr.Validation("Application name must not be empty")
		}
		app.Name = *req.Name
	}
	if req.Description != nil {
		app.Description = *req.Description
	}
	if req.RedirectUris != nil {
		app.RedirectUris = *req.RedirectUris
	}
	app.ChangedBy = p.UserId
	app.ModifiedAt = time.Now().UTC()

	if err := s.provider.UpdateApplication(app); err != nil {
		return nil, err
	}
	s.sink.Publish(model.ActionUpdate, model.EntityApplication, eventbus.ApplicationPayload{
		ApplicationId: app.Id,
		UserId:        p.UserId,
	}.Map())
	return app, nil
}

/*
Delete removes an application together with all its subscriptions. Only the
owner role (or an admin) may delete. The subscriptions are removed first so
their credentials are revoked and the change events fire before the
application disappears.
*/
func (s *Service) Delete(p model.Principal, id string) error {
	app, err := s.provider.GetApplication(id)
	if err != nil {
		return err
	}
	if d := authz.CanAct(p, app, authz.ActionDeleteApplication); !d.Allowed {
		return apperr.Denied(d.Reason)
	}

	if err := s.subs.DeleteByApp(p, id); err != nil {
		return err
	}
	if err := s.provider.DeleteApplication(id); err != nil {
		return err
	}
	appLog.Printf("Application deleted: %s by %s", id, p.UserId)

	s.sink.Publish(model.ActionDelete, model.EntityApplication, eventbus.ApplicationPayload{
		ApplicationId: id,
		UserId:        p.UserId,
	}.Map())
	return nil
}

// AddOwner adds a user to an application. Owners and collaborators may add;
// adding a user that is already an owner entry is a conflict.
func (s *Service) AddOwner(p model.Principal, appId string, owner model.Owner) (*model.Application, error) {
	app, err := s.provider.GetApplication(appId)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAct(p, app, authz.ActionAddOwner); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}
	if owner.UserId == "" {
		return nil, apperr.Validation("userId is required")
	}
	if !owner.Role.IsValid() {
		return nil, apperr.Validation("Role must be one of owner, collaborator, reader")
	}
	if _, exists := app.OwnerRole(owner.UserId); exists {
		return nil, apperr.Conflict("User %s is already an owner of application %s", owner.UserId, appId)
	}

	app.Owners = append(app.Owners, owner)
	app.ChangedBy = p.UserId
	app.ModifiedAt = time.Now().UTC()
	if err := s.provider.UpdateApplication(app); err != nil {
		return nil, err
	}

	s.sink.Publish(model.ActionAdd, model.EntityOwner, eventbus.OwnerPayload{
		ApplicationId: appId,
		UserId:        owner.UserId,
		Email:         owner.Email,
		Role:          string(owner.Role),
	}.Map())
	return app, nil
}

// RemoveOwner removes a user from an application. Only the owner role may
// remove. The last entry with the owner role cannot be removed, an
// application is never left ownerless.
func (s *Service) RemoveOwner(p model.Principal, appId string, userId string) (*model.Application, error) {
	app, err := s.provider.GetApplication(appId)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAct(p, app, authz.ActionRemoveOwner); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}

	role, exists := app.OwnerRole(userId)
	if !exists {
		return nil, apperr.NotFound("User %s is not an owner of application %s", userId, appId)
	}
	if role == model.RoleOwner && app.CountRole(model.RoleOwner) == 1 {
		return nil, apperr.Conflict("Cannot remove the last owner of application %s", appId)
	}

	owners := make([]model.Owner, 0, len(app.Owners)-1)
	for _, o := range app.Owners {
		if o.UserId != userId {
			owners = append(owners, o)
		}
	}
	app.Owners = owners
	app.ChangedBy = p.UserId
	app.ModifiedAt = time.Now().UTC()
	if err := s.provider.UpdateApplication(app); err != nil {
		return nil, err
	}

	s.sink.Publish(model.ActionDelete, model.EntityOwner, eventbus.OwnerPayload{
		ApplicationId: appId,
		UserId:        userId,
	}.Map())
	return app, nil
}
