package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/open-apim/portal-core/internal/model"
)

var (
	admin    = model.Principal{UserId: "root", Admin: true}
	owner    = model.Principal{UserId: "lee.dev"}
	collab   = model.Principal{UserId: "kim.dev"}
	reader   = model.Principal{UserId: "pat.qa"}
	partner  = model.Principal{UserId: "jo.partner", Groups: []string{"partners"}}
	stranger = model.Principal{UserId: "sam.other"}
)

var testApp = &model.Application{
	Id:   "orders-ui",
	Name: "Orders UI",
	Owners: []model.Owner{
		{UserId: "lee.dev", Role: model.RoleOwner},
		{UserId: "kim.dev", Role: model.RoleCollaborator},
		{UserId: "pat.qa", Role: model.RoleReader},
	},
}

func TestCanActRoleMatrix(t *testing.T) {
	reads := []Action{ActionReadApplication, ActionReadSubscriptions}
	writes := []Action{ActionManageSubscriptions, ActionAddOwner, ActionUpdateApplication}
	owns := []Action{ActionDeleteApplication, ActionRemoveOwner}

	for _, action := range append(append(reads, writes...), owns...) {
		assert.True(t, CanAct(admin, testApp, action).Allowed, "admin %s", action)
		assert.False(t, CanAct(stranger, testApp, action).Allowed, "stranger %s", action)
	}
	for _, action := range reads {
		assert.True(t, CanAct(owner, testApp, action).Allowed)
		assert.True(t, CanAct(collab, testApp, action).Allowed)
		assert.True(t, CanAct(reader, testApp, action).Allowed)
	}
	for _, action := range writes {
		assert.True(t, CanAct(owner, testApp, action).Allowed)
		assert.True(t, CanAct(collab, testApp, action).Allowed)
		assert.False(t, CanAct(reader, testApp, action).Allowed, "reader %s", action)
	}
	for _, action := range owns {
		assert.True(t, CanAct(owner, testApp, action).Allowed)
		assert.False(t, CanAct(collab, testApp, action).Allowed, "collaborator %s", action)
		assert.False(t, CanAct(reader, testApp, action).Allowed)
	}
}

func TestCanActDenyCarriesReason(t *testing.T) {
	decision := CanAct(stranger, testApp, ActionReadApplication)
	assert.False(t, decision.Allowed)
	assert.NotEmpty(t, decision.Reason)

	decision = CanAct(owner, testApp, ActionReadApplication)
	assert.Empty(t, decision.Reason)
}

func TestCanSubscribeRestrictions(t *testing.T) {
	openApi := &model.API{Id: "weather"}
	restrictedApi := &model.API{Id: "billing", RestrictedGroups: []string{"finance"}}
	openPlan := &model.Plan{Id: "basic"}
	restrictedPlan := &model.Plan{Id: "partner", RestrictedGroups: []string{"partners"}}

	assert.True(t, CanSubscribe(owner, openApi, openPlan).Allowed)
	assert.False(t, CanSubscribe(owner, restrictedApi, openPlan).Allowed)
	assert.False(t, CanSubscribe(owner, openApi, restrictedPlan).Allowed)
	assert.True(t, CanSubscribe(partner, openApi, restrictedPlan).Allowed)
	assert.True(t, CanSubscribe(admin, restrictedApi, restrictedPlan).Allowed)
}

func TestCanApprove(t *testing.T) {
	api := &model.API{Id: "weather"}
	plan := &model.Plan{Id: "partner", RequiresApproval: true, RestrictedGroups: []string{"partners"}}

	// Requester never approves themselves, admin included
	requester := model.Principal{UserId: "root", Admin: true}
	assert.False(t, CanApprove(requester, api, plan, "root").Allowed)

	assert.True(t, CanApprove(admin, api, plan, "lee.dev").Allowed)
	assert.True(t, CanApprove(partner, api, plan, "lee.dev").Allowed)
	assert.False(t, CanApprove(stranger, api, plan, "lee.dev").Allowed)

	// Unrestricted plan on an unrestricted API is admin-only
	openPlan := &model.Plan{Id: "premium", RequiresApproval: true}
	assert.True(t, CanApprove(admin, api, openPlan, "lee.dev").Allowed)
	assert.False(t, CanApprove(partner, api, openPlan, "lee.dev").Allowed)

	// API-level restriction makes group members eligible
	restrictedApi := &model.API{Id: "billing", RestrictedGroups: []string{"partners"}}
	assert.True(t, CanApprove(partner, restrictedApi, openPlan, "lee.dev").Allowed)
}

func TestCanSeeApproval(t *testing.T) {
	api := &model.API{Id: "weather"}
	plan := &model.Plan{Id: "partner", RestrictedGroups: []string{"partners"}}
	openPlan := &model.Plan{Id: "premium"}

	assert.True(t, CanSeeApproval(admin, api, openPlan))
	assert.True(t, CanSeeApproval(partner, api, plan))
	assert.False(t, CanSeeApproval(partner, api, openPlan))
	assert.False(t, CanSeeApproval(stranger, api, plan))
	assert.True(t, CanSeeApproval(admin, nil, nil))
}
