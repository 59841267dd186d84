package mock_provider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/model"
)

const CDbName = "portal"
const CDefIssuer = "DEFAULT"
const CEnvDbName = "PORTAL_DBNAME"
const CEnvTokenIssuer = "PORTAL_TOKEN_ISSUER"

var pLog = log.New(os.Stdout, "MOCK_DB: ", log.Ldate|log.Ltime)

// Global shared storage so that multiple Open calls with the same URL observe
// the same data (mirrors how two server instances share one database).
var (
	sharedStorageMu sync.Mutex
	sharedStorage   = make(map[string]*MockPortalProvider)
)

// MockPortalProvider is the in-memory implementation of the Provider
// interface. All state is guarded by a single RWMutex; the per-(app, api)
// serialization of lifecycle operations is layered on top by the
// subscriptions service.
type MockPortalProvider struct {
	DbUrl  string
	DbName string
	dbInit bool
	mu     *sync.RWMutex

	applications  map[string]*model.Application
	subscriptions map[string]*model.Subscription // key appId|apiId
	clientIndex   map[string]string              // clientId -> appId|apiId
	listeners     map[string]*model.WebhookListener
	events        map[string][]model.Event // listenerId -> queued events
	grants        map[string]*model.Grant  // key userId|appId|apiId
	keys          map[string]*JwkKeyRec

	subSeq   int64
	eventSeq map[string]int64

	TokenIssuer string
	tokenKey    *rsa.PrivateKey
	tokenPubKey *keyfunc.JWKS
}

func subKey(appId, apiId string) string {
	return appId + "|" + apiId
}

func grantKey(userId, appId, apiId string) string {
	return userId + "|" + appId + "|" + apiId
}

// Open creates or reuses a MockPortalProvider. Multiple calls with the same
// URL share the same underlying storage.
func Open(dbUrl string, dbName string) (*MockPortalProvider, error) {
	if !strings.HasPrefix(dbUrl, "mockdb:") && dbUrl != "" {
		return nil, fmt.Errorf("mock provider only supports 'mockdb:' URL prefix, got: %s", dbUrl)
	}

	if dbName == "" {
		dbEnvName, dbDefined := os.LookupEnv(CEnvDbName)
		if !dbDefined {
			dbName = CDbName
		} else {
			dbName = dbEnvName
		}
	}

	tknIssuer, tknDefined := os.LookupEnv(CEnvTokenIssuer)
	if !tknDefined {
		tknIssuer = CDefIssuer
	}

	if dbUrl == "" {
		dbUrl = "mockdb://localhost/"
		pLog.Printf("Defaulting mock database URL: %s", dbUrl)
	}

	sharedStorageMu.Lock()
	defer sharedStorageMu.Unlock()

	if existing, ok := sharedStorage[dbUrl]; ok {
		pLog.Printf("Reusing existing mock database for URL: %s (dbName: %s)", dbUrl, dbName)
		return existing, nil
	}

	m := &MockPortalProvider{
		DbUrl:       dbUrl,
		DbName:      dbName,
		TokenIssuer: tknIssuer,
		mu:          &sync.RWMutex{},
	}
	m.initialize()

	sharedStorage[dbUrl] = m
	pLog.Printf("Created new shared mock database for URL: %s (dbName: %s)", dbUrl, dbName)
	return m, nil
}

func (m *MockPortalProvider) initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	pLog.Println("Initializing new in-memory mock database [" + m.DbName + "]")

	m.applications = make(map[string]*model.Application)
	m.subscriptions = make(map[string]*model.Subscription)
	m.clientIndex = make(map[string]string)
	m.listeners = make(map[string]*model.WebhookListener)
	m.events = make(map[string][]model.Event)
	m.grants = make(map[string]*model.Grant)
	m.keys = make(map[string]*JwkKeyRec)
	m.eventSeq = make(map[string]int64)
	m.subSeq = 0

	m.tokenKey = m.createIssuerKeyPairUnlocked(m.TokenIssuer)
	m.tokenPubKey = m.issuerPublicJwksUnlocked(m.TokenIssuer)

	m.dbInit = true
}

func (m *MockPortalProvider) Name() string {
	return m.DbName
}

func (m *MockPortalProvider) Check() error {
	// Mock provider is always available
	return nil
}

func (m *MockPortalProvider) Close() error {
	// No resources to clean up for in-memory provider
	return nil
}

func (m *MockPortalProvider) ResetDb(initialize bool) error {
	m.mu.Lock()

	m.applications = make(map[string]*model.Application)
	m.subscriptions = make(map[string]*model.Subscription)
	m.clientIndex = make(map[string]string)
	m.listeners = make(map[string]*model.WebhookListener)
	m.events = make(map[string][]model.Event)
	m.grants = make(map[string]*model.Grant)
	m.eventSeq = make(map[string]int64)
	m.subSeq = 0

	if initialize {
		m.keys = make(map[string]*JwkKeyRec)
		m.tokenKey = m.createIssuerKeyPairUnlocked(m.TokenIssuer)
		m.tokenPubKey = m.issuerPublicJwksUnlocked(m.TokenIssuer)
	}
	m.mu.Unlock()
	return nil
}

// Applications

func (m *MockPortalProvider) CreateApplication(app *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.applications[app.Id]; exists {
		return apperr.Conflict("Application with ID %s already exists", app.Id)
	}
	cp := *app
	m.applications[app.Id] = &cp
	return nil
}

func (m *MockPortalProvider) GetApplication(id string) (*model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.applications[id]
	if !ok {
		return nil, apperr.NotFound("Not found: %s", id)
	}
	cp := *app
	cp.Owners = append([]model.Owner(nil), app.Owners...)
	return &cp, nil
}

func (m *MockPortalProvider) ListApplications() ([]model.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	apps := make([]model.Application, 0, len(m.applications))
	for _, app := range m.applications {
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Id < apps[j].Id })
	return apps, nil
}

func (m *MockPortalProvider) UpdateApplication(app *model.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applications[app.Id]; !ok {
		return apperr.NotFound("Not found: %s", app.Id)
	}
	cp := *app
	m.applications[app.Id] = &cp
	return nil
}

func (m *MockPortalProvider) DeleteApplication(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applications[id]; !ok {
		return apperr.NotFound("Not found: %s", id)
	}
	delete(m.applications, id)
	return nil
}

// Subscriptions

func (m *MockPortalProvider) CreateSubscription(sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subKey(sub.ApplicationId, sub.ApiId)
	if _, exists := m.subscriptions[key]; exists {
		return apperr.Conflict("Application already has a subscription for API \"%s\"", sub.ApiId)
	}
	m.subSeq++
	sub.Seq = m.subSeq
	cp := *sub
	m.subscriptions[key] = &cp
	if cp.Credential != nil && cp.Credential.ClientId != "" {
		m.clientIndex[cp.Credential.ClientId] = key
	}
	return nil
}

func (m *MockPortalProvider) GetSubscription(appId string, apiId string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subscriptions[subKey(appId, apiId)]
	if !ok {
		return nil, apperr.NotFound("Subscription to API \"%s\" does not exist: %s", apiId, appId)
	}
	cp := *sub
	return &cp, nil
}

func (m *MockPortalProvider) GetSubscriptionsByApp(appId string) ([]model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subs []model.Subscription
	for _, sub := range m.subscriptions {
		if sub.ApplicationId == appId {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Seq < subs[j].Seq })
	return subs, nil
}

func (m *MockPortalProvider) GetSubscriptionByClientId(clientId string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.clientIndex[clientId]
	if !ok {
		return nil, apperr.NotFound("Subscription with given client ID was not found")
	}
	sub, ok := m.subscriptions[key]
	if !ok {
		// Index entry without a record means the delete path skipped Revoke.
		return nil, apperr.Internal("client index out of sync", nil)
	}
	cp := *sub
	return &cp, nil
}

func (m *MockPortalProvider) UpdateSubscription(sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subKey(sub.ApplicationId, sub.ApiId)
	old, ok := m.subscriptions[key]
	if !ok {
		return apperr.NotFound("Subscription to API \"%s\" does not exist: %s", sub.ApiId, sub.ApplicationId)
	}
	if old.Credential != nil && old.Credential.ClientId != "" {
		delete(m.clientIndex, old.Credential.ClientId)
	}
	sub.Seq = old.Seq
	cp := *sub
	m.subscriptions[key] = &cp
	if cp.Credential != nil && cp.Credential.ClientId != "" {
		m.clientIndex[cp.Credential.ClientId] = key
	}
	return nil
}

func (m *MockPortalProvider) DeleteSubscription(appId string, apiId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subKey(appId, apiId)
	sub, ok := m.subscriptions[key]
	if !ok {
		return apperr.NotFound("Subscription to API \"%s\" does not exist: %s", apiId, appId)
	}
	// Revoke before the record goes away so no credential outlives its
	// subscription.
	if sub.Credential != nil && sub.Credential.ClientId != "" {
		delete(m.clientIndex, sub.Credential.ClientId)
	}
	delete(m.subscriptions, key)
	return nil
}

func (m *MockPortalProvider) GetPendingSubscriptions() ([]model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []model.Subscription
	for _, sub := range m.subscriptions {
		if !sub.Approved {
			pending = append(pending, *sub)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	return pending, nil
}

// Listeners and event logs

func (m *MockPortalProvider) UpsertListener(listener model.WebhookListener) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.listeners[listener.Id]; !exists {
		// Initialize to empty log
		m.events[listener.Id] = []model.Event{}
	}
	cp := listener
	m.listeners[listener.Id] = &cp
	return nil
}

func (m *MockPortalProvider) GetListener(id string) (*model.WebhookListener, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listener, ok := m.listeners[id]
	if !ok {
		return nil, apperr.NotFound("Listener not found: %s", id)
	}
	cp := *listener
	return &cp, nil
}

func (m *MockPortalProvider) GetListeners() []model.WebhookListener {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listeners := make([]model.WebhookListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, *l)
	}
	sort.Slice(listeners, func(i, j int) bool { return listeners[i].Id < listeners[j].Id })
	return listeners
}

func (m *MockPortalProvider) DeleteListener(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listeners[id]; !ok {
		return apperr.NotFound("Listener not found: %s", id)
	}
	delete(m.listeners, id)
	// A listener and its log share a lifecycle.
	delete(m.events, id)
	delete(m.eventSeq, id)
	return nil
}

func (m *MockPortalProvider) AppendEvent(listenerId string, event model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listeners[listenerId]; !ok {
		return apperr.NotFound("Listener not found: %s", listenerId)
	}
	m.eventSeq[listenerId]++
	event.ListenerId = listenerId
	event.Seq = m.eventSeq[listenerId]
	m.events[listenerId] = append(m.events[listenerId], event)
	return nil
}

func (m *MockPortalProvider) GetEvents(listenerId string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.listeners[listenerId]; !ok {
		return nil, apperr.NotFound("Listener not found: %s", listenerId)
	}
	queued := m.events[listenerId]
	events := make([]model.Event, len(queued))
	copy(events, queued)
	return events, nil
}

func (m *MockPortalProvider) DeleteEvent(listenerId string, eventId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listeners[listenerId]; !ok {
		return apperr.NotFound("Listener not found: %s", listenerId)
	}
	queued := m.events[listenerId]
	for i, ev := range queued {
		if ev.Id == eventId {
			m.events[listenerId] = append(queued[:i:i], queued[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("Event not found: %s", eventId)
}

func (m *MockPortalProvider) FlushEvents(listenerId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.listeners[listenerId]; !ok {
		return apperr.NotFound("Listener not found: %s", listenerId)
	}
	m.events[listenerId] = []model.Event{}
	return nil
}

func (m *MockPortalProvider) PendingEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, queued := range m.events {
		n += len(queued)
	}
	return n
}

// Grants

func (m *MockPortalProvider) UpsertGrant(grant *model.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *grant
	m.grants[grantKey(grant.UserId, grant.ApplicationId, grant.ApiId)] = &cp
	return nil
}

func (m *MockPortalProvider) GetGrant(userId string, appId string, apiId string) (*model.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	grant, ok := m.grants[grantKey(userId, appId, apiId)]
	if !ok {
		return nil, apperr.NotFound("Grant not found")
	}
	cp := *grant
	return &cp, nil
}

func (m *MockPortalProvider) GetGrantsByUser(userId string) ([]model.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var grants []model.Grant
	for _, grant := range m.grants {
		if grant.UserId == userId {
			grants = append(grants, *grant)
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].ApplicationId != grants[j].ApplicationId {
			return grants[i].ApplicationId < grants[j].ApplicationId
		}
		return grants[i].ApiId < grants[j].ApiId
	})
	return grants, nil
}

func (m *MockPortalProvider) DeleteGrant(userId string, appId string, apiId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := grantKey(userId, appId, apiId)
	if _, ok := m.grants[key]; !ok {
		return apperr.NotFound("Grant not found")
	}
	delete(m.grants, key)
	return nil
}

func (m *MockPortalProvider) DeleteGrantsByUser(userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, grant := range m.grants {
		if grant.UserId == userId {
			delete(m.grants, key)
		}
	}
	return nil
}

// Token signing keys

func (m *MockPortalProvider) createIssuerKeyPairUnlocked(issuer string) *rsa.PrivateKey {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	privateKeyBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	pubKeyBytes := x509.MarshalPKCS1PublicKey(&privateKey.PublicKey)

	m.keys[issuer] = &JwkKeyRec{
		Id:          primitive.NewObjectID(),
		Iss:         issuer,
		KeyBytes:    privateKeyBytes,
		PubKeyBytes: pubKeyBytes,
	}
	return privateKey
}

func (m *MockPortalProvider) issuerPublicJwksUnlocked(issuer string) *keyfunc.JWKS {
	rec, ok := m.keys[issuer]
	if !ok {
		pLog.Printf("Error: Key not found for issuer: %s", issuer)
		return nil
	}

	pubKey, err := x509.ParsePKCS1PublicKey(rec.PubKeyBytes)
	if err != nil {
		pLog.Printf("Error parsing public key: %s", err.Error())
		return nil
	}

	givenKey := keyfunc.NewGivenRSACustomWithOptions(pubKey, keyfunc.GivenKeyOptions{
		Algorithm: "RS256",
	})
	givenKeys := make(map[string]keyfunc.GivenKey)
	givenKeys[issuer] = givenKey
	return keyfunc.NewGiven(givenKeys)
}

func (m *MockPortalProvider) GetAuthIssuer() *authtoken.AuthIssuer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &authtoken.AuthIssuer{
		TokenIssuer: m.TokenIssuer,
		PrivateKey:  m.tokenKey,
		PublicKey:   m.tokenPubKey,
	}
}

func (m *MockPortalProvider) GetAuthValidatorPubKey() *keyfunc.JWKS {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tokenPubKey
}

func (m *MockPortalProvider) GetPublicJWKS() *json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.keys[m.TokenIssuer]
	if !ok {
		return nil
	}

	pubKey, err := x509.ParsePKCS1PublicKey(rec.PubKeyBytes)
	if err != nil {
		pLog.Printf("Error parsing public key: %s", err.Error())
		return nil
	}

	jwkstore := jwkset.NewMemoryStorage()

	metadata := jwkset.JWKMetadataOptions{
		KID: m.TokenIssuer,
	}
	jwkOptions := jwkset.JWKOptions{
		Metadata: metadata,
	}

	jwk, err := jwkset.NewJWKFromKey(pubKey, jwkOptions)
	if err != nil {
		pLog.Println("Error parsing rsa key into jwk: " + err.Error())
		return nil
	}
	if err := jwkstore.KeyWrite(context.Background(), jwk); err != nil {
		pLog.Println("Error storing JWKS key for issuer " + m.TokenIssuer + ": " + err.Error())
		return nil
	}

	response, err := jwkstore.JSONPublic(context.Background())
	if err != nil {
		pLog.Println("Error creating JWKS response: " + err.Error())
		return nil
	}
	return &response
}
