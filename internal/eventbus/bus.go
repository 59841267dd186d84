package eventbus

import (
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"

	"github.com/open-apim/portal-core/internal/model"
)

var busLogger = log.New(os.Stdout, "EVENTS:  ", log.Ldate|log.Ltime)

// Store is the slice of the storage provider the bus relies on.
type Store interface {
	GetListeners() []model.WebhookListener
	AppendEvent(listenerId string, event model.Event) error
}

// Sink receives portal change notifications. The services publish through
// this interface so tests can swap in a recording sink.
type Sink interface {
	Publish(action model.EventAction, entity model.EventEntity, data map[string]interface{})
}

type Bus struct {
	store     Store
	eventsOut *prometheus.CounterVec
}

func NewBus(store Store) *Bus {
	return &Bus{store: store}
}

// SetEventCounter wires the prometheus counter after startup. The bus must
// initialize before the server does, so the counter may briefly be nil.
func (b *Bus) SetEventCounter(outCounter *prometheus.CounterVec) {
	b.eventsOut = outCounter
}

/*
Publish fans the change out to every registered listener's event log. Each
listener gets its own event copy with a fresh id and its own sequence, so one
slow or missing log never affects another. Fan-out happens in the caller's
request before the response is written; a failed append is logged and skipped
rather than failing the triggering operation.
*/
func (b *Bus) Publish(action model.EventAction, entity model.EventEntity, data map[string]interface{}) {
	now := time.Now().UTC()
	for _, listener := range b.store.GetListeners() {
		event := model.Event{
			Id:     ksuid.New().String(),
			Action: action,
			Entity: entity,
			Data:   data,
			Utc:    now,
		}
		if err := b.store.AppendEvent(listener.Id, event); err != nil {
			busLogger.Printf("Error appending %s %s event for listener [%s]: %s", action, entity, listener.Id, err.Error())
			continue
		}
		b.incrementEventsOut(action, entity)
	}
}

func (b *Bus) incrementEventsOut(action model.EventAction, entity model.EventEntity) {
	if b.eventsOut == nil {
		busLogger.Println("WARNING: events counter not initialized.")
		return
	}
	b.eventsOut.With(prometheus.Labels{
		"action": string(action),
		"entity": string(entity),
	}).Inc()
}
