package dbProviders

import (
	"encoding/json"

	"github.com/MicahParks/keyfunc"

	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/model"
)

/*
Provider is the storage contract of the portal core. Two implementations
exist: a MongoDB provider for production and an in-memory mock provider for
testing and single-node evaluation. All methods return errors of the apperr
kinds so the HTTP layer can map them without inspection.
*/
type Provider interface {
	// Name returns the provider's database name
	Name() string

	// Check verifies the backing store is reachable
	Check() error

	Close() error

	// ResetDb drops all data. Used for testing only.
	ResetDb(initialize bool) error

	// Applications

	CreateApplication(app *model.Application) error
	GetApplication(id string) (*model.Application, error)
	ListApplications() ([]model.Application, error)
	UpdateApplication(app *model.Application) error
	DeleteApplication(id string) error

	// Subscriptions. CreateSubscription enforces (application, api)
	// uniqueness; UpdateSubscription and DeleteSubscription maintain the
	// reverse clientId index so no credential outlives its subscription.

	CreateSubscription(sub *model.Subscription) error
	GetSubscription(appId string, apiId string) (*model.Subscription, error)
	GetSubscriptionsByApp(appId string) ([]model.Subscription, error)
	GetSubscriptionByClientId(clientId string) (*model.Subscription, error)
	UpdateSubscription(sub *model.Subscription) error
	DeleteSubscription(appId string, apiId string) error

	// GetPendingSubscriptions returns unapproved subscriptions in insertion
	// order. The approval queue is computed from this, never stored.
	GetPendingSubscriptions() ([]model.Subscription, error)

	// Listeners and per-listener event logs

	UpsertListener(listener model.WebhookListener) error
	GetListener(id string) (*model.WebhookListener, error)
	GetListeners() []model.WebhookListener
	DeleteListener(id string) error

	AppendEvent(listenerId string, event model.Event) error
	GetEvents(listenerId string) ([]model.Event, error)
	DeleteEvent(listenerId string, eventId string) error
	FlushEvents(listenerId string) error
	PendingEventCount() int

	// Grants

	UpsertGrant(grant *model.Grant) error
	GetGrant(userId string, appId string, apiId string) (*model.Grant, error)
	GetGrantsByUser(userId string) ([]model.Grant, error)
	DeleteGrant(userId string, appId string, apiId string) error
	DeleteGrantsByUser(userId string) error

	// Token signing keys

	GetAuthIssuer() *authtoken.AuthIssuer
	GetAuthValidatorPubKey() *keyfunc.JWKS
	GetPublicJWKS() *json.RawMessage
}
