// Package subscriptions implements the subscription lifecycle: request,
// approval, credential issue, patching and revocation, plus the computed
// approval queue. All mutations of one (application, api) pair are
// serialized through a keyed lock so check-then-act sequences stay atomic.
package subscriptions

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/authz"
	"github.com/open-apim/portal-core/internal/catalog"
	"github.com/open-apim/portal-core/internal/credential"
	"github.com/open-apim/portal-core/internal/eventbus"
	"github.com/open-apim/portal-core/internal/model"
	"github.com/open-apim/portal-core/internal/providers/dbProviders"
)

var subLog = log.New(os.Stdout, "SUBS:    ", log.Ldate|log.Ltime)

type Service struct {
	provider dbProviders.Provider
	catalog  catalog.Catalog
	sink     eventbus.Sink

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewService(provider dbProviders.Provider, cat catalog.Catalog, sink eventbus.Sink) *Service {
	return &Service{
		provider: provider,
		catalog:  cat,
		sink:     sink,
		locks:    map[string]*sync.Mutex{},
	}
}

// pairLock returns the mutex serializing one (application, api) pair.
func (s *Service) pairLock(appId string, apiId string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	key := appId + "|" + apiId
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// CreateRequest is the body of a subscription create.
type CreateRequest struct {
	ApplicationId string `json:"application"`
	ApiId         string `json:"api"`
	PlanId        string `json:"plan"`
	// ApiKey optionally overrides the generated key for apikey APIs,
	// supporting import flows.
	ApiKey  string `json:"apikey,omitempty"`
	Trusted bool   `json:"trusted,omitempty"`
}

// PatchRequest carries the patchable subscription fields. Pointers
// distinguish "absent" from zero values; AllowedScopes stays raw until the
// mode is known so a malformed list is rejected with a validation error.
type PatchRequest struct {
	Approved          *bool             `json:"approved,omitempty"`
	Trusted           *bool             `json:"trusted,omitempty"`
	AllowedScopesMode *model.ScopesMode `json:"allowedScopesMode,omitempty"`
	AllowedScopes     *json.RawMessage  `json:"allowedScopes,omitempty"`
}

func (s *Service) resolveApiPlan(apiId string, planId string) (*model.API, *model.Plan, error) {
	api, err := s.catalog.GetApi(apiId)
	if err != nil {
		return nil, nil, apperr.Validation("API %s is unknown", apiId)
	}
	if api.Deprecated {
		return nil, nil, apperr.Validation("API %s is deprecated, subscriptions are no longer possible", apiId)
	}
	hasPlan := false
	for _, pid := range api.Plans {
		if pid == planId {
			hasPlan = true
			break
		}
	}
	if !hasPlan {
		return nil, nil, apperr.Validation("API %s does not offer plan %s", apiId, planId)
	}
	plan, err := s.catalog.GetPlan(planId)
	if err != nil {
		return nil, nil, apperr.Validation("Plan %s is unknown", planId)
	}
	return api, plan, nil
}

/*
Create requests a subscription of an application to an API under a plan. The
caller must be an owner or collaborator of the application (or admin). Plans
requiring approval, and trusted subscriptions requested by non-admins, start
pending; everything else is approved immediately and gets its credential in
the same operation.
*/
func (s *Service) Create(p model.Principal, appId string, req CreateRequest) (*model.Subscription, error) {
	app, err := s.provider.GetApplication(appId)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAct(p, app, authz.ActionManageSubscriptions); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}
	if req.ApplicationId != "" && req.ApplicationId != appId {
		return nil, apperr.Validation("Application ID in body (%s) does not match path (%s)", req.ApplicationId, appId)
	}
	if req.ApiId == "" || req.PlanId == "" {
		return nil, apperr.Validation("api and plan are required")
	}

	api, plan, err := s.resolveApiPlan(req.ApiId, req.PlanId)
	if err != nil {
		return nil, err
	}
	if d := authz.CanSubscribe(p, api, plan); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}
	if api.RequiresRedirectUri() && len(app.RedirectUris) == 0 {
		return nil, apperr.Validation("Application does not have a redirectUri")
	}
	if req.ApiKey != "" && api.AuthMode != model.AuthModeApiKey {
		return nil, apperr.Validation("An API key can only be supplied for APIs using apikey auth")
	}

	sub, err := s.createLocked(p, app, api, plan, req)
	if err != nil {
		return nil, err
	}
	subLog.Printf("Subscription created: app=%s api=%s plan=%s approved=%t", appId, req.ApiId, req.PlanId, sub.Approved)

	s.sink.Publish(model.ActionAdd, model.EntitySubscription, eventbus.SubscriptionPayload{
		ApplicationId: appId,
		ApiId:         req.ApiId,
		PlanId:        req.PlanId,
		UserId:        p.UserId,
	}.Map())
	if !sub.Approved {
		s.sink.Publish(model.ActionAdd, model.EntityApproval, eventbus.ApprovalPayload{
			ApplicationId: appId,
			ApiId:         req.ApiId,
			PlanId:        req.PlanId,
			UserId:        p.UserId,
			UserEmail:     p.Email,
		}.Map())
	}
	return sub, nil
}

// createLocked runs the check-then-create under the pair lock. Event fan-out
// stays outside so one slow listener store cannot stall the pair.
func (s *Service) createLocked(p model.Principal, app *model.Application, api *model.API, plan *model.Plan, req CreateRequest) (*model.Subscription, error) {
	lock := s.pairLock(app.Id, req.ApiId)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.provider.GetSubscription(app.Id, req.ApiId); err == nil {
		return nil, apperr.Conflict("Application already has a subscription for API \"%s\"", req.ApiId)
	}

	needsApproval := !p.Admin && (plan.RequiresApproval || req.Trusted)

	sub := &model.Subscription{
		Id:               ksuid.New().String(),
		ApplicationId:    app.Id,
		ApiId:            req.ApiId,
		PlanId:           req.PlanId,
		AuthMode:         api.AuthMode,
		Approved:         !needsApproval,
		Trusted:          req.Trusted,
		RequestedBy:      p.UserId,
		RequestedByEmail: p.Email,
		ChangedBy:        p.UserId,
		ChangedAt:        time.Now().UTC(),
	}

	if sub.Approved {
		cred, err := credential.Issue(api, app, req.ApiKey)
		if err != nil {
			return nil, err
		}
		sub.Credential = cred
		sub.AllowedScopesMode = credential.DefaultScopesMode(api, sub.Trusted)
	}

	if err := s.provider.CreateSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Get returns one subscription of an application.
func (s *Service) Get(p model.Principal, appId string, apiId string) (*model.Subscription, error) {
	app, err := s.provider.GetApplication(appId)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAct(p, app, authz.ActionReadSubscriptions); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}
	return s.provider.GetSubscription(appId, apiId)
}

// List returns all subscriptions of an application in insertion order.
func (s *Service) List(p model.Principal, appId string) ([]model.Subscription, error) {
	app, err := s.provider.GetApplication(appId)
	if err != nil {
		return nil, err
	}
	if d := authz.CanAct(p, app, authz.ActionReadSubscriptions); !d.Allowed {
		return nil, apperr.Denied(d.Reason)
	}
	return s.provider.GetSubscriptionsByApp(appId)
}

/*
Patch modifies a subscription. Approving a pending subscription issues its
credential; approving an already-approved one is a no-op so that two
approvers racing on the same request both succeed. Flipping approved to
false is rejected, a subscription is revoked by deleting it. Trust and
scope settings are admin-only. Because the result carries the credential,
every patch, even an empty one, requires read access to the application's
subscriptions or approver eligibility.
*/
func (s *Service) Patch(p model.Principal, appId string, apiId string, patch PatchRequest) (*model.Subscription, error) {
	app, err := s.provider.GetApplication(appId)
	if err != nil {
		return nil, err
	}

	sub, changed, approvedNow, err := s.patchLocked(p, app, appId, apiId, patch)
	if err != nil {
		return nil, err
	}
	if !changed {
		return sub, nil
	}

	s.sink.Publish(model.ActionUpdate, model.EntitySubscription, eventbus.SubscriptionPayload{
		ApplicationId: appId,
		ApiId:         apiId,
		PlanId:        sub.PlanId,
		UserId:        p.UserId,
	}.Map())
	if approvedNow {
		subLog.Printf("Subscription approved: app=%s api=%s by=%s", appId, apiId, p.UserId)
		s.sink.Publish(model.ActionDelete, model.EntityApproval, eventbus.ApprovalPayload{
			ApplicationId: appId,
			ApiId:         apiId,
			PlanId:        sub.PlanId,
			UserId:        sub.RequestedBy,
			UserEmail:     sub.RequestedByEmail,
		}.Map())
	}
	return sub, nil
}

func (s *Service) patchLocked(p model.Principal, app *model.Application, appId string, apiId string, patch PatchRequest) (*model.Subscription, bool, bool, error) {
	lock := s.pairLock(appId, apiId)
	lock.Lock()
	defer lock.Unlock()

	sub, err := s.provider.GetSubscription(appId, apiId)
	if err != nil {
		return nil, false, false, err
	}

	// The returned subscription leaks the credential, so the caller must be
	// able to read it or be an eligible approver of this request.
	if d := authz.CanAct(p, app, authz.ActionReadSubscriptions); !d.Allowed {
		api, plan, rErr := s.resolveApiPlan(sub.ApiId, sub.PlanId)
		if rErr != nil {
			return nil, false, false, apperr.Denied(d.Reason)
		}
		if a := authz.CanApprove(p, api, plan, sub.RequestedBy); !a.Allowed {
			return nil, false, false, apperr.Denied(d.Reason)
		}
	}

	changed := false
	approvedNow := false

	if patch.Approved != nil {
		if !*patch.Approved {
			return nil, false, false, apperr.Validation("A subscription cannot be unapproved; delete it instead")
		}
		if !sub.Approved {
			api, plan, err := s.resolveApiPlan(sub.ApiId, sub.PlanId)
			if err != nil {
				return nil, false, false, err
			}
			if d := authz.CanApprove(p, api, plan, sub.RequestedBy); !d.Allowed {
				return nil, false, false, apperr.Denied(d.Reason)
			}
			cred, err := credential.Issue(api, app, "")
			if err != nil {
				return nil, false, false, err
			}
			sub.Approved = true
			sub.Credential = cred
			sub.AllowedScopesMode = credential.DefaultScopesMode(api, sub.Trusted)
			changed = true
			approvedNow = true
		}
	}

	if patch.Trusted != nil && *patch.Trusted != sub.Trusted {
		if !p.Admin {
			return nil, false, false, apperr.NotAllowed("Not allowed. Only admins may change the trusted flag.")
		}
		if !sub.Approved {
			return nil, false, false, apperr.Validation("Only approved subscriptions may change the trusted flag")
		}
		sub.Trusted = *patch.Trusted
		if sub.Trusted {
			// Trusted subscriptions are implicitly allowed all scopes
			sub.AllowedScopesMode = model.ScopesModeAll
			sub.AllowedScopes = nil
		}
		changed = true
	}

	if patch.AllowedScopesMode != nil {
		if !p.Admin {
			return nil, false, false, apperr.NotAllowed("Not allowed. Only admins may change allowed scopes.")
		}
		if !sub.Approved {
			return nil, false, false, apperr.Validation("Only approved subscriptions may change allowed scopes")
		}
		mode := *patch.AllowedScopesMode
		if !mode.IsValid() {
			return nil, false, false, apperr.Validation("allowedScopesMode must be one of none, all, select")
		}
		if sub.Trusted && mode != model.ScopesModeAll {
			return nil, false, false, apperr.Validation("Trusted subscriptions are always allowed all scopes")
		}
		sub.AllowedScopesMode = mode
		if mode != model.ScopesModeSelect {
			sub.AllowedScopes = nil
		}
		changed = true
	}

	if patch.AllowedScopes != nil {
		if !p.Admin {
			return nil, false, false, apperr.NotAllowed("Not allowed. Only admins may change allowed scopes.")
		}
		if !sub.Approved {
			return nil, false, false, apperr.Validation("Only approved subscriptions may change allowed scopes")
		}
		var scopes []string
		if err := json.Unmarshal(*patch.AllowedScopes, &scopes); err != nil {
			return nil, false, false, apperr.Validation("allowedScopes must be an array of strings")
		}
		if sub.AllowedScopesMode != model.ScopesModeSelect {
			return nil, false, false, apperr.Validation("allowedScopes requires allowedScopesMode \"select\"")
		}
		sub.AllowedScopes = scopes
		changed = true
	}

	if !changed {
		return sub, false, false, nil
	}

	sub.ChangedBy = p.UserId
	sub.ChangedAt = time.Now().UTC()
	if err := s.provider.UpdateSubscription(sub); err != nil {
		return nil, false, false, err
	}
	return sub, true, approvedNow, nil
}

// Delete removes a subscription and revokes its credential. Deleting a
// pending subscription is how an approver declines it.
func (s *Service) Delete(p model.Principal, appId string, apiId string) error {
	app, err := s.provider.GetApplication(appId)
	if err != nil {
		return err
	}
	if d := authz.CanAct(p, app, authz.ActionManageSubscriptions); !d.Allowed {
		return apperr.Denied(d.Reason)
	}

	sub, err := s.deleteLocked(appId, apiId)
	if err != nil {
		return err
	}
	subLog.Printf("Subscription deleted: app=%s api=%s by=%s", appId, apiId, p.UserId)

	s.sink.Publish(model.ActionDelete, model.EntitySubscription, eventbus.SubscriptionPayload{
		ApplicationId: appId,
		ApiId:         apiId,
		PlanId:        sub.PlanId,
		UserId:        p.UserId,
	}.Map())
	if !sub.Approved {
		s.sink.Publish(model.ActionDelete, model.EntityApproval, eventbus.ApprovalPayload{
			ApplicationId: appId,
			ApiId:         apiId,
			PlanId:        sub.PlanId,
			UserId:        sub.RequestedBy,
			UserEmail:     sub.RequestedByEmail,
		}.Map())
	}
	return nil
}

func (s *Service) deleteLocked(appId string, apiId string) (*model.Subscription, error) {
	lock := s.pairLock(appId, apiId)
	lock.Lock()
	defer lock.Unlock()

	sub, err := s.provider.GetSubscription(appId, apiId)
	if err != nil {
		return nil, err
	}
	if err := s.provider.DeleteSubscription(appId, apiId); err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteByApp removes every subscription of an application. Used by the
// application cascade delete.
func (s *Service) DeleteByApp(p model.Principal, appId string) error {
	subs, err := s.provider.GetSubscriptionsByApp(appId)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := s.Delete(p, appId, sub.ApiId); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) buildApproval(sub model.Subscription) (*model.ApprovalRequest, *model.API, *model.Plan) {
	api, err := s.catalog.GetApi(sub.ApiId)
	if err != nil {
		subLog.Printf("Pending subscription %s references unknown API %s", sub.Id, sub.ApiId)
		api = nil
	}
	var plan *model.Plan
	if api != nil {
		plan, err = s.catalog.GetPlan(sub.PlanId)
		if err != nil {
			plan = nil
		}
	}

	appRef := model.AppRef{Id: sub.ApplicationId}
	if app, err := s.provider.GetApplication(sub.ApplicationId); err == nil {
		appRef.Name = app.Name
		appRef.Description = app.Description
	}

	groups := []string{}
	if plan != nil && plan.IsRestricted() {
		groups = plan.RestrictedGroups
	} else if api != nil && len(api.RestrictedGroups) > 0 {
		groups = api.RestrictedGroups
	}

	return &model.ApprovalRequest{
		Id:             sub.Id,
		SubscriptionId: sub.Id,
		UserId:         sub.RequestedBy,
		UserEmail:      sub.RequestedByEmail,
		Application:    appRef,
		ApiId:          sub.ApiId,
		PlanId:         sub.PlanId,
		Groups:         groups,
		Trusted:        sub.Trusted,
		RequestedAt:    sub.ChangedAt,
	}, api, plan
}

// ListApprovals returns the approval queue visible to the principal, oldest
// request first. Admins see the whole queue; approvers only see requests
// whose plan or API restriction matches one of their groups.
func (s *Service) ListApprovals(p model.Principal) ([]model.ApprovalRequest, error) {
	pending, err := s.provider.GetPendingSubscriptions()
	if err != nil {
		return nil, err
	}

	approvals := make([]model.ApprovalRequest, 0, len(pending))
	for _, sub := range pending {
		approval, api, plan := s.buildApproval(sub)
		if !authz.CanSeeApproval(p, api, plan) {
			continue
		}
		approvals = append(approvals, *approval)
	}
	return approvals, nil
}

// GetApproval returns one approval request by id. Requests outside the
// principal's visibility read as not found so ids do not leak.
func (s *Service) GetApproval(p model.Principal, id string) (*model.ApprovalRequest, error) {
	pending, err := s.provider.GetPendingSubscriptions()
	if err != nil {
		return nil, err
	}
	for _, sub := range pending {
		if sub.Id != id {
			continue
		}
		approval, api, plan := s.buildApproval(sub)
		if !authz.CanSeeApproval(p, api, plan) {
			return nil, apperr.NotFound("Approval request not found: %s", id)
		}
		return approval, nil
	}
	return nil, apperr.NotFound("Approval request not found: %s", id)
}

// SubscriptionInfo pairs a subscription with its owning application for the
// reverse credential lookup.
type SubscriptionInfo struct {
	Subscription model.Subscription `json:"subscription"`
	Application  model.Application  `json:"application"`
}

// GetByClientId resolves an OAuth2 client id back to its subscription and
// application. Gateways use this during token validation; it is admin-only.
func (s *Service) GetByClientId(p model.Principal, clientId string) (*SubscriptionInfo, error) {
	if !p.Admin {
		return nil, apperr.NotAllowed("Not allowed. This endpoint is admin only.")
	}
	sub, err := s.provider.GetSubscriptionByClientId(clientId)
	if err != nil {
		return nil, err
	}
	app, err := s.provider.GetApplication(sub.ApplicationId)
	if err != nil {
		return nil, err
	}
	return &SubscriptionInfo{Subscription: *sub, Application: *app}, nil
}
