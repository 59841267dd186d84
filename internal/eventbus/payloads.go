package eventbus

import (
	"github.com/fatih/structs"
)

// Event payloads are declared as typed structs and converted to the generic
// map form listeners consume. The structs tags define the wire field names.

type ApplicationPayload struct {
	ApplicationId string `structs:"applicationId"`
	UserId        string `structs:"userId,omitempty"`
}

type OwnerPayload struct {
	ApplicationId string `structs:"applicationId"`
	UserId        string `structs:"userId"`
	Email         string `structs:"email,omitempty"`
	Role          string `structs:"role,omitempty"`
}

type SubscriptionPayload struct {
	ApplicationId string `structs:"applicationId"`
	ApiId         string `structs:"apiId"`
	PlanId        string `structs:"planId"`
	UserId        string `structs:"userId,omitempty"`
}

type ApprovalPayload struct {
	ApplicationId string `structs:"applicationId"`
	ApiId         string `structs:"apiId"`
	PlanId        string `structs:"planId"`
	UserId        string `structs:"userId,omitempty"`
	UserEmail     string `structs:"userEmail,omitempty"`
}

func (p ApplicationPayload) Map() map[string]interface{}  { return structs.Map(p) }
func (p OwnerPayload) Map() map[string]interface{}        { return structs.Map(p) }
func (p SubscriptionPayload) Map() map[string]interface{} { return structs.Map(p) }
func (p ApprovalPayload) Map() map[string]interface{}     { return structs.Map(p) }
