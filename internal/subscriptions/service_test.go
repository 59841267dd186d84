package subscriptions

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/catalog"
	"github.com/open-apim/portal-core/internal/model"
	"github.com/open-apim/portal-core/internal/providers/dbProviders"
	"github.com/open-apim/portal-core/internal/providers/dbProviders/mock_provider"
)

type recordedEvent struct {
	Action model.EventAction
	Entity model.EventEntity
	Data   map[string]interface{}
}

type recordingSink struct {
	events []recordedEvent
}

func (r *recordingSink) Publish(action model.EventAction, entity model.EventEntity, data map[string]interface{}) {
	r.events = append(r.events, recordedEvent{Action: action, Entity: entity, Data: data})
}

func (r *recordingSink) ofEntity(entity model.EventEntity) []recordedEvent {
	var out []recordedEvent
	for _, ev := range r.events {
		if ev.Entity == entity {
			out = append(out, ev)
		}
	}
	return out
}

func testCatalog() catalog.Catalog {
	apis := []model.API{
		{
			Id:       "orders",
			Name:     "Orders API",
			AuthMode: model.AuthModeOAuth2,
			Plans:    []string{"basic", "premium"},
			Settings: model.ApiSettings{EnableAuthorizationCode: true},
		},
		{
			Id:       "machine",
			Name:     "Machine API",
			AuthMode: model.AuthModeOAuth2,
			Plans:    []string{"basic"},
			Settings: model.ApiSettings{EnableClientCredentials: true},
		},
		{
			Id:       "weather",
			Name:     "Weather API",
			AuthMode: model.AuthModeApiKey,
			Plans:    []string{"basic", "partner"},
		},
		{
			Id:               "billing",
			Name:             "Billing API",
			AuthMode:         model.AuthModeApiKey,
			Plans:            []string{"basic"},
			RestrictedGroups: []string{"finance"},
		},
		{
			Id:         "legacy",
			Name:       "Legacy API",
			AuthMode:   model.AuthModeApiKey,
			Deprecated: true,
			Plans:      []string{"basic"},
		},
	}
	plans := []model.Plan{
		{Id: "basic", Name: "Basic"},
		{Id: "premium", Name: "Premium", RequiresApproval: true},
		{Id: "partner", Name: "Partner", RequiresApproval: true, RestrictedGroups: []string{"partners"}},
	}
	return catalog.NewStatic(apis, plans)
}

var (
	admin    = model.Principal{UserId: "admin1", Email: "admin@example.org", Groups: []string{model.AdminGroup}, Admin: true}
	owner    = model.Principal{UserId: "owner1", Email: "owner@example.org"}
	reader   = model.Principal{UserId: "reader1", Email: "reader@example.org"}
	partner  = model.Principal{UserId: "approver1", Email: "approver@example.org", Groups: []string{"partners"}}
	stranger = model.Principal{UserId: "other1", Email: "other@example.org"}
)

func newTestService(t *testing.T) (*Service, dbProviders.Provider, *recordingSink) {
	t.Helper()
	provider, err := mock_provider.Open("mockdb://subs-"+ksuid.New().String(), "portal_test")
	assert.NoError(t, err)

	app := &model.Application{
		Id:           "my-app",
		Name:         "My App",
		RedirectUris: []string{"https://my-app.example.org/callback"},
		Owners: []model.Owner{
			{UserId: owner.UserId, Email: owner.Email, Role: model.RoleOwner},
			{UserId: reader.UserId, Email: reader.Email, Role: model.RoleReader},
		},
	}
	assert.NoError(t, provider.CreateApplication(app))

	noUri := &model.Application{
		Id:     "no-uri-app",
		Name:   "No redirect",
		Owners: []model.Owner{{UserId: owner.UserId, Role: model.RoleOwner}},
	}
	assert.NoError(t, provider.CreateApplication(noUri))

	sink := &recordingSink{}
	return NewService(provider, testCatalog(), sink), provider, sink
}

func TestCreateImmediateApproval(t *testing.T) {
	svc, _, sink := newTestService(t)

	sub, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)
	assert.True(t, sub.Approved)
	assert.NotNil(t, sub.Credential)
	assert.NotEmpty(t, sub.Credential.ClientId)
	assert.NotEmpty(t, sub.Credential.ClientSecret)
	assert.Empty(t, sub.Credential.ApiKey)
	assert.Equal(t, model.ScopesModeAll, sub.AllowedScopesMode)
	assert.Equal(t, owner.UserId, sub.RequestedBy)

	assert.Len(t, sink.ofEntity(model.EntitySubscription), 1)
	assert.Empty(t, sink.ofEntity(model.EntityApproval))
}

func TestCreateClientCredentialsDefaultsNoScopes(t *testing.T) {
	svc, _, _ := newTestService(t)

	sub, err := svc.Create(owner, "no-uri-app", CreateRequest{ApiId: "machine", PlanId: "basic"})
	assert.NoError(t, err)
	assert.True(t, sub.Approved)
	assert.Equal(t, model.ScopesModeNone, sub.AllowedScopesMode)
}

func TestCreateApiKeyWithRequestedKey(t *testing.T) {
	svc, _, _ := newTestService(t)

	sub, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "weather", PlanId: "basic", ApiKey: "imported-key"})
	assert.NoError(t, err)
	assert.True(t, sub.Approved)
	assert.Equal(t, "imported-key", sub.Credential.ApiKey)

	_, err = svc.Create(owner, "no-uri-app", CreateRequest{ApiId: "machine", PlanId: "basic", ApiKey: "nope"})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation), "apikey override on oauth2 API must fail")
}

func TestCreatePendingApprovalFlow(t *testing.T) {
	svc, _, sink := newTestService(t)

	sub, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.NoError(t, err)
	assert.False(t, sub.Approved)
	assert.Nil(t, sub.Credential, "pending subscription must not carry a credential")

	assert.Len(t, sink.ofEntity(model.EntitySubscription), 1)
	approvalEvents := sink.ofEntity(model.EntityApproval)
	assert.Len(t, approvalEvents, 1)
	assert.Equal(t, model.ActionAdd, approvalEvents[0].Action)
	assert.Equal(t, owner.Email, approvalEvents[0].Data["userEmail"])

	// admin sees it in the queue, with the requester's email for audit
	approvals, err := svc.ListApprovals(admin)
	assert.NoError(t, err)
	assert.Len(t, approvals, 1)
	assert.Equal(t, sub.Id, approvals[0].Id)
	assert.Equal(t, "My App", approvals[0].Application.Name)
	assert.Equal(t, owner.UserId, approvals[0].UserId)
	assert.Equal(t, owner.Email, approvals[0].UserEmail)

	// approve
	approved := true
	patched, err := svc.Patch(admin, "my-app", "orders", PatchRequest{Approved: &approved})
	assert.NoError(t, err)
	assert.True(t, patched.Approved)
	assert.NotNil(t, patched.Credential)
	assert.Equal(t, admin.UserId, patched.ChangedBy)

	// queue drains and a delete approval event fires
	approvals, _ = svc.ListApprovals(admin)
	assert.Empty(t, approvals)
	approvalEvents = sink.ofEntity(model.EntityApproval)
	assert.Len(t, approvalEvents, 2)
	assert.Equal(t, model.ActionDelete, approvalEvents[1].Action)
}

func TestCreateAdminBypassesApproval(t *testing.T) {
	svc, _, _ := newTestService(t)

	sub, err := svc.Create(admin, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.NoError(t, err)
	assert.True(t, sub.Approved)
	assert.NotNil(t, sub.Credential)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(owner, "absent-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))

	_, err = svc.Create(stranger, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden))

	_, err = svc.Create(reader, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden), "readers may not manage subscriptions")

	_, err = svc.Create(owner, "my-app", CreateRequest{ApplicationId: "other-app", ApiId: "orders", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation), "body/path application mismatch")

	_, err = svc.Create(owner, "my-app", CreateRequest{ApiId: "nothere", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation), "unknown API is a validation error")

	_, err = svc.Create(owner, "my-app", CreateRequest{ApiId: "legacy", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation), "deprecated API refuses subscriptions")

	_, err = svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "partner"})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation), "plan not offered by API")

	_, err = svc.Create(owner, "my-app", CreateRequest{ApiId: "billing", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden), "restricted API needs group membership")

	_, err = svc.Create(owner, "no-uri-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation), "authorization code flow requires a redirectUri")
}

func TestCreateDuplicateConflict(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)
	_, err = svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.True(t, apperr.IsKind(err, apperr.CodeConflict))
}

func TestApproveIdempotent(t *testing.T) {
	svc, _, sink := newTestService(t)

	sub, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.NoError(t, err)
	assert.False(t, sub.Approved)

	approved := true
	first, err := svc.Patch(admin, "my-app", "orders", PatchRequest{Approved: &approved})
	assert.NoError(t, err)

	before := len(sink.events)
	second, err := svc.Patch(admin, "my-app", "orders", PatchRequest{Approved: &approved})
	assert.NoError(t, err)
	assert.Equal(t, first.Credential.ClientId, second.Credential.ClientId, "re-approval must not rotate the credential")
	assert.Equal(t, before, len(sink.events), "no-op approval publishes nothing")
}

func TestSelfApprovalDenied(t *testing.T) {
	svc, _, _ := newTestService(t)

	// admin creating on someone's behalf would be auto-approved, so have the
	// owner request and then try to approve as the same user via admin rights
	adminOwned := model.Principal{UserId: owner.UserId, Email: owner.Email, Groups: []string{model.AdminGroup}, Admin: true}
	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.NoError(t, err)

	approved := true
	_, err = svc.Patch(adminOwned, "my-app", "orders", PatchRequest{Approved: &approved})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden), "requester may not approve their own request, admin or not")
}

func TestPatchRequiresEntitlement(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "weather", PlanId: "basic"})
	assert.NoError(t, err)

	// re-approving an approved subscription is a no-op, but the response
	// carries the credential, so outsiders must still get 403
	approved := true
	_, err = svc.Patch(stranger, "my-app", "weather", PatchRequest{Approved: &approved})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden))

	_, err = svc.Patch(stranger, "my-app", "weather", PatchRequest{})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden), "empty patch must not leak the credential")

	// any owner role may read, so a reader's no-op patch passes through
	sub, err := svc.Patch(reader, "my-app", "weather", PatchRequest{})
	assert.NoError(t, err)
	assert.NotNil(t, sub.Credential)
}

func TestUnapproveRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)

	notApproved := false
	_, err = svc.Patch(admin, "my-app", "orders", PatchRequest{Approved: &notApproved})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation))
}

func TestTrustedSubscription(t *testing.T) {
	svc, _, _ := newTestService(t)

	// non-admin requesting trusted goes through approval even on basic
	sub, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic", Trusted: true})
	assert.NoError(t, err)
	assert.False(t, sub.Approved)
	assert.True(t, sub.Trusted)

	// scope settings are frozen while pending
	allMode := model.ScopesModeAll
	_, err = svc.Patch(admin, "my-app", "orders", PatchRequest{AllowedScopesMode: &allMode})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation))

	approved := true
	patched, err := svc.Patch(admin, "my-app", "orders", PatchRequest{Approved: &approved})
	assert.NoError(t, err)
	assert.True(t, patched.Trusted)
	assert.Equal(t, model.ScopesModeAll, patched.AllowedScopesMode)
}

func TestTrustedPatchAdminOnly(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)

	trusted := true
	_, err = svc.Patch(owner, "my-app", "orders", PatchRequest{Trusted: &trusted})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden))

	patched, err := svc.Patch(admin, "my-app", "orders", PatchRequest{Trusted: &trusted})
	assert.NoError(t, err)
	assert.True(t, patched.Trusted)
	assert.Equal(t, model.ScopesModeAll, patched.AllowedScopesMode)
}

func TestScopePatching(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)

	selectMode := model.ScopesModeSelect
	scopes := json.RawMessage(`["read_orders","write_orders"]`)
	patched, err := svc.Patch(admin, "my-app", "orders", PatchRequest{AllowedScopesMode: &selectMode, AllowedScopes: &scopes})
	assert.NoError(t, err)
	assert.Equal(t, model.ScopesModeSelect, patched.AllowedScopesMode)
	assert.Equal(t, []string{"read_orders", "write_orders"}, patched.AllowedScopes)

	bad := json.RawMessage(`"read_orders"`)
	_, err = svc.Patch(admin, "my-app", "orders", PatchRequest{AllowedScopes: &bad})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation), "scopes must be a string array")

	invalid := model.ScopesMode("some")
	_, err = svc.Patch(admin, "my-app", "orders", PatchRequest{AllowedScopesMode: &invalid})
	assert.True(t, apperr.IsKind(err, apperr.CodeValidation))

	noneMode := model.ScopesModeNone
	patched, err = svc.Patch(admin, "my-app", "orders", PatchRequest{AllowedScopesMode: &noneMode})
	assert.NoError(t, err)
	assert.Empty(t, patched.AllowedScopes, "leaving select mode clears the scope list")

	_, err = svc.Patch(owner, "my-app", "orders", PatchRequest{AllowedScopesMode: &selectMode})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden))
}

// lockCheckingSink verifies the pair lock has been released by the time an
// event is published, as a slow listener store otherwise stalls the pair.
type lockCheckingSink struct {
	t   *testing.T
	svc *Service
}

func (l *lockCheckingSink) Publish(action model.EventAction, entity model.EventEntity, data map[string]interface{}) {
	appId, _ := data["applicationId"].(string)
	apiId, _ := data["apiId"].(string)
	mu := l.svc.pairLock(appId, apiId)
	if assert.True(l.t, mu.TryLock(), "publish must run after the pair lock is released") {
		mu.Unlock()
	}
}

func TestPublishAfterLockRelease(t *testing.T) {
	provider, err := mock_provider.Open("mockdb://subs-"+ksuid.New().String(), "portal_test")
	assert.NoError(t, err)
	app := &model.Application{
		Id:           "my-app",
		Name:         "My App",
		RedirectUris: []string{"https://my-app.example.org/callback"},
		Owners:       []model.Owner{{UserId: owner.UserId, Email: owner.Email, Role: model.RoleOwner}},
	}
	assert.NoError(t, provider.CreateApplication(app))

	sink := &lockCheckingSink{t: t}
	svc := NewService(provider, testCatalog(), sink)
	sink.svc = svc

	_, err = svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.NoError(t, err)

	approved := true
	_, err = svc.Patch(admin, "my-app", "orders", PatchRequest{Approved: &approved})
	assert.NoError(t, err)

	trusted := true
	_, err = svc.Patch(admin, "my-app", "orders", PatchRequest{Trusted: &trusted})
	assert.NoError(t, err)

	assert.NoError(t, svc.Delete(owner, "my-app", "orders"))
}

func TestDeleteRevokesCredential(t *testing.T) {
	svc, provider, sink := newTestService(t)

	sub, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)
	clientId := sub.Credential.ClientId

	assert.NoError(t, svc.Delete(owner, "my-app", "orders"))

	_, err = provider.GetSubscriptionByClientId(clientId)
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound), "credential revoked with the subscription")

	events := sink.ofEntity(model.EntitySubscription)
	assert.Equal(t, model.ActionDelete, events[len(events)-1].Action)

	err = svc.Delete(owner, "my-app", "orders")
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))
}

func TestDeclinePendingViaDelete(t *testing.T) {
	svc, _, sink := newTestService(t)

	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.NoError(t, err)

	assert.NoError(t, svc.Delete(admin, "my-app", "orders"))

	approvals, _ := svc.ListApprovals(admin)
	assert.Empty(t, approvals)
	approvalEvents := sink.ofEntity(model.EntityApproval)
	assert.Equal(t, model.ActionDelete, approvalEvents[len(approvalEvents)-1].Action)
}

func TestApprovalVisibility(t *testing.T) {
	svc, provider, _ := newTestService(t)

	partnerApp := &model.Application{
		Id:     "partner-app",
		Name:   "Partner App",
		Owners: []model.Owner{{UserId: partner.UserId, Role: model.RoleOwner}},
	}
	assert.NoError(t, provider.CreateApplication(partnerApp))

	// unrestricted plan needing approval: admin-only visibility
	unrestricted, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "premium"})
	assert.NoError(t, err)

	// restricted plan: partners group can see and approve
	restricted, err := svc.Create(partner, "partner-app", CreateRequest{ApiId: "weather", PlanId: "partner"})
	assert.NoError(t, err)

	adminView, err := svc.ListApprovals(admin)
	assert.NoError(t, err)
	assert.Len(t, adminView, 2)
	// queue is ordered by request time
	assert.Equal(t, unrestricted.Id, adminView[0].Id)
	assert.Equal(t, restricted.Id, adminView[1].Id)

	partnerView, err := svc.ListApprovals(partner)
	assert.NoError(t, err)
	assert.Len(t, partnerView, 1)
	assert.Equal(t, restricted.Id, partnerView[0].Id)
	assert.Equal(t, []string{"partners"}, partnerView[0].Groups)

	ownerView, err := svc.ListApprovals(owner)
	assert.NoError(t, err)
	assert.Empty(t, ownerView)

	// out-of-scope approval id reads as not found, never forbidden
	_, err = svc.GetApproval(partner, unrestricted.Id)
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))

	got, err := svc.GetApproval(partner, restricted.Id)
	assert.NoError(t, err)
	assert.Equal(t, restricted.Id, got.SubscriptionId)

	_, err = svc.GetApproval(admin, "no-such-id")
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))
}

func TestGroupApproverCanApprove(t *testing.T) {
	svc, provider, _ := newTestService(t)

	partnerApp := &model.Application{
		Id:     "partner-app",
		Name:   "Partner App",
		Owners: []model.Owner{{UserId: owner.UserId, Role: model.RoleOwner}},
	}
	assert.NoError(t, provider.CreateApplication(partnerApp))

	ownerInGroup := model.Principal{UserId: owner.UserId, Groups: []string{"partners"}}
	_, err := svc.Create(ownerInGroup, "partner-app", CreateRequest{ApiId: "weather", PlanId: "partner"})
	assert.NoError(t, err)

	approved := true
	patched, err := svc.Patch(partner, "partner-app", "weather", PatchRequest{Approved: &approved})
	assert.NoError(t, err)
	assert.True(t, patched.Approved)
	assert.NotEmpty(t, patched.Credential.ApiKey)

	// a non-admin without the group may not approve
	_, err = svc.Create(ownerInGroup, "my-app", CreateRequest{ApiId: "weather", PlanId: "partner"})
	assert.NoError(t, err)
	_, err = svc.Patch(stranger, "my-app", "weather", PatchRequest{Approved: &approved})
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden))
}

func TestGetAndList(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)
	_, err = svc.Create(owner, "my-app", CreateRequest{ApiId: "weather", PlanId: "basic"})
	assert.NoError(t, err)

	// readers may read
	sub, err := svc.Get(reader, "my-app", "orders")
	assert.NoError(t, err)
	assert.Equal(t, "basic", sub.PlanId)

	subs, err := svc.List(reader, "my-app")
	assert.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.Equal(t, "orders", subs[0].ApiId)

	_, err = svc.Get(stranger, "my-app", "orders")
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden))

	_, err = svc.Get(reader, "my-app", "machine")
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))
}

func TestGetByClientId(t *testing.T) {
	svc, _, _ := newTestService(t)

	sub, err := svc.Create(owner, "my-app", CreateRequest{ApiId: "orders", PlanId: "basic"})
	assert.NoError(t, err)

	_, err = svc.GetByClientId(owner, sub.Credential.ClientId)
	assert.True(t, apperr.IsKind(err, apperr.CodeForbidden))

	info, err := svc.GetByClientId(admin, sub.Credential.ClientId)
	assert.NoError(t, err)
	assert.Equal(t, "my-app", info.Application.Id)
	assert.Equal(t, "orders", info.Subscription.ApiId)

	_, err = svc.GetByClientId(admin, "unknown-client")
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))
}
