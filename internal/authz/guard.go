// Package authz implements the authorization guard: a pure decision function
// over (principal, resource, action). It never mutates state and never uses
// errors for control flow; callers convert a deny into the FORBIDDEN kind at
// the boundary.
package authz

import (
	"github.com/open-apim/portal-core/internal/model"
)

// Action is an application-scoped operation subject to role gating.
type Action string

const (
	ActionReadApplication     Action = "read_application"
	ActionUpdateApplication   Action = "update_application"
	ActionDeleteApplication   Action = "delete_application"
	ActionAddOwner            Action = "add_owner"
	ActionRemoveOwner         Action = "remove_owner"
	ActionManageSubscriptions Action = "manage_subscriptions"
	ActionReadSubscriptions   Action = "read_subscriptions"
)

// Decision is the outcome of a guard check. Reason is only set on deny.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CanAct evaluates an application-scoped action. Admins are always allowed;
// otherwise the principal's owner role on the application gates the action.
func CanAct(p model.Principal, app *model.Application, action Action) Decision {
	if p.Admin {
		return allow()
	}

	role, isOwner := app.OwnerRole(p.UserId)
	if !isOwner {
		return deny("Not allowed. User does not own application.")
	}

	switch action {
	case ActionReadApplication, ActionReadSubscriptions:
		// Any role may read.
		return allow()
	case ActionManageSubscriptions, ActionAddOwner, ActionUpdateApplication:
		if role == model.RoleOwner || role == model.RoleCollaborator {
			return allow()
		}
		return deny("Not allowed. Only owners and collaborators may do this.")
	case ActionDeleteApplication, ActionRemoveOwner:
		if role == model.RoleOwner {
			return allow()
		}
		return deny("Not allowed. Only owners may do this.")
	}
	return deny("Not allowed. Unknown action.")
}

// CanSubscribe checks plan/API group restrictions for a subscription create.
// Admins bypass restrictions.
func CanSubscribe(p model.Principal, api *model.API, plan *model.Plan) Decision {
	if p.Admin {
		return allow()
	}
	if len(api.RestrictedGroups) > 0 && !p.InAnyGroup(api.RestrictedGroups) {
		return deny("Not allowed. User does not have access to the API.")
	}
	if plan.IsRestricted() && !p.InAnyGroup(plan.RestrictedGroups) {
		return deny("Not allowed. User does not have access to the API plan.")
	}
	return allow()
}

// CanApprove checks whether the principal may approve a pending subscription.
// Self-approval is denied regardless of role, admins included. Otherwise
// admins may approve anything; a non-admin approver needs a group listed on
// the plan (or the API). Unrestricted plans are admin-only.
func CanApprove(p model.Principal, api *model.API, plan *model.Plan, requestedBy string) Decision {
	if p.UserId == requestedBy {
		return deny("Not allowed. Requesters may not approve their own subscription.")
	}
	if p.Admin {
		return allow()
	}
	if plan.IsRestricted() && p.InAnyGroup(plan.RestrictedGroups) {
		return allow()
	}
	if len(api.RestrictedGroups) > 0 && p.InAnyGroup(api.RestrictedGroups) {
		return allow()
	}
	return deny("Not allowed. User is not an eligible approver.")
}

// CanSeeApproval decides approval-queue visibility: admins see everything,
// approvers see requests whose plan or API restriction matches one of their
// groups. Callers translate an invisible id into NOT_FOUND, never FORBIDDEN,
// to avoid leaking existence.
func CanSeeApproval(p model.Principal, api *model.API, plan *model.Plan) bool {
	if p.Admin {
		return true
	}
	if plan != nil && plan.IsRestricted() && p.InAnyGroup(plan.RestrictedGroups) {
		return true
	}
	if api != nil && len(api.RestrictedGroups) > 0 && p.InAnyGroup(api.RestrictedGroups) {
		return true
	}
	return false
}
