package model

import "time"

// EventAction is the mutation kind recorded in an event.
type EventAction string

const (
	ActionAdd    EventAction = "add"
	ActionUpdate EventAction = "update"
	ActionDelete EventAction = "delete"
)

// EventEntity names the entity kind an event refers to.
type EventEntity string

const (
	EntityUser         EventEntity = "user"
	EntityApplication  EventEntity = "application"
	EntityOwner        EventEntity = "owner"
	EntitySubscription EventEntity = "subscription"
	EntityApproval     EventEntity = "approval"
)

// WebhookListener is a registered consumer of the event stream. Events are
// queued per listener and consumed by polling, not pushed by this core.
type WebhookListener struct {
	Id  string `json:"id" bson:"_id"`
	Url string `json:"url" bson:"url"`
}

// Event is one entry in a listener's queue. The id is scoped to the listener;
// the same domain mutation fans out as distinct events with distinct ids.
// Events are immutable once stored.
type Event struct {
	Id         string                 `json:"id" bson:"_id"`
	ListenerId string                 `json:"-" bson:"listener_id"`
	Action     EventAction            `json:"action" bson:"action"`
	Entity     EventEntity            `json:"entity" bson:"entity"`
	Data       map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`
	Utc        time.Time              `json:"utc" bson:"utc"`

	// Seq orders events within one listener queue.
	Seq int64 `json:"-" bson:"seq"`
}
