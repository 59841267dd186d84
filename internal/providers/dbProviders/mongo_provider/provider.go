package mongo_provider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/model"
)

const CDbName = "portal"
const CDbApplications = "applications"
const CDbSubscriptions = "subscriptions"
const CDbListeners = "listeners"
const CDbEvents = "events"
const CDbGrants = "grants"
const CDbKeys = "keys"

const CDefIssuer = "DEFAULT"
const CEnvDbName = "PORTAL_DBNAME"
const CEnvTokenIssuer = "PORTAL_TOKEN_ISSUER"

var pLog = log.New(os.Stdout, "MONGO:   ", log.Ldate|log.Ltime)

type MongoProvider struct {
	DbUrl       string
	DbName      string
	client      *mongo.Client
	dbInit      bool
	portalDb    *mongo.Database
	appCol      *mongo.Collection
	subCol      *mongo.Collection
	listenerCol *mongo.Collection
	eventCol    *mongo.Collection
	grantCol    *mongo.Collection
	keyCol      *mongo.Collection
	TokenIssuer string
	tokenKey    *rsa.PrivateKey
	tokenPubKey *keyfunc.JWKS

	// seqCounter disambiguates records created within the same nanosecond
	seqCounter int64
}

/*
Open connects to the portal database at the URL given and initializes the
collections and token signing keys if the database does not already exist. If
dbName is empty the PORTAL_DBNAME env variable is consulted, then the default
"portal". If successful a MongoProvider handle is returned otherwise an error.
*/
func Open(mongoUrl string, dbName string) (*MongoProvider, error) {
	ctx := context.Background()

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

	if mongoUrl == "" {
		mongoUrl = "mongodb://localhost:27017/"
		pLog.Printf("Defaulting Mongo Database to local: %s", mongoUrl)
	}
	opts := options.Client().ApplyURI(mongoUrl)
	client, err := mongo.NewClient(opts)
	if err != nil {
		pLog.Fatal(err)
		return nil, err
	}

	if err := client.Connect(ctx); err != nil {
		pLog.Printf("Error connecting to: %s.", mongoUrl)
		pLog.Fatal(err)
	}

	m := MongoProvider{
		DbName:      dbName,
		DbUrl:       mongoUrl,
		client:      client,
		TokenIssuer: tknIssuer,
	}

	m.initialize(dbName, ctx)

	return &m, nil
}

func (m *MongoProvider) initialize(dbName string, ctx context.Context) {

	dbNames, err := m.client.ListDatabaseNames(ctx, bson.M{})
	if err != nil {
		pLog.Fatal(err)
	}

	for _, name := range dbNames {
		if name == dbName {
			m.portalDb = m.client.Database(name)
			pLog.Println("Connected to existing portal database")
			m.attachCollections()
			m.tokenKey, err = m.loadIssuerKey(m.TokenIssuer)
			if err != nil {
				pLog.Fatal("Unable to load token signing key: " + err.Error())
			}
			m.tokenPubKey = m.issuerPublicJwks(m.TokenIssuer)
			m.dbInit = true
			return
		}
	}

	pLog.Println("Initializing new database [" + m.DbName + "]")
	m.portalDb = m.client.Database(m.DbName)
	m.attachCollections()

	m.tokenKey = m.createIssuerKeyPair(m.TokenIssuer)
	m.tokenPubKey = m.issuerPublicJwks(m.TokenIssuer)

	m.createIndexes()
	m.dbInit = true
}

func (m *MongoProvider) attachCollections() {
	m.appCol = m.portalDb.Collection(CDbApplications)
	m.subCol = m.portalDb.Collection(CDbSubscriptions)
	m.listenerCol = m.portalDb.Collection(CDbListeners)
	m.eventCol = m.portalDb.Collection(CDbEvents)
	m.grantCol = m.portalDb.Collection(CDbGrants)
	m.keyCol = m.portalDb.Collection(CDbKeys)
}

func (m *MongoProvider) createIndexes() {
	indexAppApi := mongo.IndexModel{
		Keys: bson.D{
			{Key: "app_id", Value: 1},
			{Key: "api_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := m.subCol.Indexes().CreateOne(context.TODO(), indexAppApi); err != nil {
		pLog.Println(err.Error())
	}

	indexClientId := mongo.IndexModel{
		Keys: bson.D{
			{Key: "client_id", Value: 1},
		},
	}
	if _, err := m.subCol.Indexes().CreateOne(context.TODO(), indexClientId); err != nil {
		pLog.Println(err.Error())
	}

	indexListener := mongo.IndexModel{
		Keys: bson.D{
			{Key: "listener_id", Value: 1},
		},
	}
	if _, err := m.eventCol.Indexes().CreateOne(context.TODO(), indexListener); err != nil {
		pLog.Println(err.Error())
	}

	indexGrant := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "app_id", Value: 1},
			{Key: "api_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := m.grantCol.Indexes().CreateOne(context.TODO(), indexGrant); err != nil {
		pLog.Println(err.Error())
	}
}

func (m *MongoProvider) Name() string {
	return m.DbName
}

func (m *MongoProvider) Check() error {
	return m.client.Ping(context.Background(), nil)
}

func (m *MongoProvider) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoProvider) ResetDb(initialize bool) error {
	err := m.portalDb.Drop(context.TODO())
	m.dbInit = false

	if initialize {
		m.initialize(m.DbName, context.TODO())
	}
	return err
}

// nextSeq produces a monotonic ordering value. UnixNano alone can collide
// for back-to-back inserts on a fast clock.
func (m *MongoProvider) nextSeq() int64 {
	return time.Now().UnixNano() + atomic.AddInt64(&m.seqCounter, 1)
}

// Applications

func (m *MongoProvider) CreateApplication(app *model.Application) error {
	filter := bson.D{{Key: "app_id", Value: app.Id}}
	count, err := m.appCol.CountDocuments(context.TODO(), filter)
	if err != nil {
		return apperr.Internal("counting applications", err)
	}
	if count > 0 {
		return apperr.Conflict("Application with ID %s already exists", app.Id)
	}

	rec := ApplicationRecord{
		Id:          primitive.NewObjectID(),
		AppId:       app.Id,
		Application: *app,
	}
	if _, err := m.appCol.InsertOne(context.TODO(), &rec); err != nil {
		return apperr.Internal("inserting application", err)
	}
	return nil
}

func (m *MongoProvider) GetApplication(id string) (*model.Application, error) {
	filter := bson.D{{Key: "app_id", Value: id}}
	res := m.appCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("Not found: %s", id)
	}
	var rec ApplicationRecord
	if err := res.Decode(&rec); err != nil {
		return nil, apperr.Internal("decoding application", err)
	}
	return &rec.Application, nil
}

func (m *MongoProvider) ListApplications() ([]model.Application, error) {
	opts := options.Find().SetSort(bson.D{{Key: "app_id", Value: 1}})
	cursor, err := m.appCol.Find(context.TODO(), bson.D{}, opts)
	if err != nil {
		return nil, apperr.Internal("listing applications", err)
	}
	var recs []ApplicationRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		return nil, apperr.Internal("decoding applications", err)
	}
	apps := make([]model.Application, len(recs))
	for i, rec := range recs {
		apps[i] = rec.Application
	}
	return apps, nil
}

func (m *MongoProvider) UpdateApplication(app *model.Application) error {
	filter := bson.D{{Key: "app_id", Value: app.Id}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "application", Value: app}}}}
	res, err := m.appCol.UpdateOne(context.TODO(), filter, update)
	if err != nil {
		return apperr.Internal("updating application", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("Not found: %s", app.Id)
	}
	return nil
}

func (m *MongoProvider) DeleteApplication(id string) error {
	filter := bson.D{{Key: "app_id", Value: id}}
	res, err := m.appCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		return apperr.Internal("deleting application", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Not found: %s", id)
	}
	return nil
}

// Subscriptions

func (m *MongoProvider) CreateSubscription(sub *model.Subscription) error {
	sub.Seq = m.nextSeq()
	rec := SubscriptionRecord{
		Id:           primitive.NewObjectID(),
		AppId:        sub.ApplicationId,
		ApiId:        sub.ApiId,
		Seq:          sub.Seq,
		Subscription: *sub,
	}
	if sub.Credential != nil {
		rec.ClientId = sub.Credential.ClientId
	}
	if _, err := m.subCol.InsertOne(context.TODO(), &rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("Application already has a subscription for API \"%s\"", sub.ApiId)
		}
		return apperr.Internal("inserting subscription", err)
	}
	return nil
}

func (m *MongoProvider) GetSubscription(appId string, apiId string) (*model.Subscription, error) {
	filter := bson.D{{Key: "app_id", Value: appId}, {Key: "api_id", Value: apiId}}
	res := m.subCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("Subscription to API \"%s\" does not exist: %s", apiId, appId)
	}
	var rec SubscriptionRecord
	if err := res.Decode(&rec); err != nil {
		return nil, apperr.Internal("decoding subscription", err)
	}
	return &rec.Subscription, nil
}

func (m *MongoProvider) GetSubscriptionsByApp(appId string) ([]model.Subscription, error) {
	filter := bson.D{{Key: "app_id", Value: appId}}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := m.subCol.Find(context.TODO(), filter, opts)
	if err != nil {
		return nil, apperr.Internal("listing subscriptions", err)
	}
	var recs []SubscriptionRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		return nil, apperr.Internal("decoding subscriptions", err)
	}
	subs := make([]model.Subscription, len(recs))
	for i, rec := range recs {
		subs[i] = rec.Subscription
	}
	return subs, nil
}

func (m *MongoProvider) GetSubscriptionByClientId(clientId string) (*model.Subscription, error) {
	filter := bson.D{{Key: "client_id", Value: clientId}}
	res := m.subCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("Subscription with given client ID was not found")
	}
	var rec SubscriptionRecord
	if err := res.Decode(&rec); err != nil {
		return nil, apperr.Internal("decoding subscription", err)
	}
	return &rec.Subscription, nil
}

func (m *MongoProvider) UpdateSubscription(sub *model.Subscription) error {
	filter := bson.D{{Key: "app_id", Value: sub.ApplicationId}, {Key: "api_id", Value: sub.ApiId}}

	res := m.subCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		return apperr.NotFound("Subscription to API \"%s\" does not exist: %s", sub.ApiId, sub.ApplicationId)
	}
	var old SubscriptionRecord
	if err := res.Decode(&old); err != nil {
		return apperr.Internal("decoding subscription", err)
	}

	sub.Seq = old.Seq
	clientId := ""
	if sub.Credential != nil {
		clientId = sub.Credential.ClientId
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "client_id", Value: clientId},
		{Key: "subscription", Value: sub},
	}}}
	if _, err := m.subCol.UpdateOne(context.TODO(), filter, update); err != nil {
		return apperr.Internal("updating subscription", err)
	}
	return nil
}

func (m *MongoProvider) DeleteSubscription(appId string, apiId string) error {
	filter := bson.D{{Key: "app_id", Value: appId}, {Key: "api_id", Value: apiId}}
	res, err := m.subCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		return apperr.Internal("deleting subscription", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Subscription to API \"%s\" does not exist: %s", apiId, appId)
	}
	return nil
}

func (m *MongoProvider) GetPendingSubscriptions() ([]model.Subscription, error) {
	filter := bson.D{{Key: "subscription.approved", Value: false}}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := m.subCol.Find(context.TODO(), filter, opts)
	if err != nil {
		return nil, apperr.Internal("listing pending subscriptions", err)
	}
	var recs []SubscriptionRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		return nil, apperr.Internal("decoding pending subscriptions", err)
	}
	subs := make([]model.Subscription, len(recs))
	for i, rec := range recs {
		subs[i] = rec.Subscription
	}
	return subs, nil
}

// Listeners and event logs

func (m *MongoProvider) UpsertListener(listener model.WebhookListener) error {
	filter := bson.D{{Key: "listener_id", Value: listener.Id}}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "listener", Value: listener}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: primitive.NewObjectID()}}},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.listenerCol.UpdateOne(context.TODO(), filter, update, opts); err != nil {
		return apperr.Internal("upserting listener", err)
	}
	return nil
}

func (m *MongoProvider) GetListener(id string) (*model.WebhookListener, error) {
	filter := bson.D{{Key: "listener_id", Value: id}}
	res := m.listenerCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("Listener not found: %s", id)
	}
	var rec ListenerRecord
	if err := res.Decode(&rec); err != nil {
		return nil, apperr.Internal("decoding listener", err)
	}
	return &rec.Listener, nil
}

func (m *MongoProvider) GetListeners() []model.WebhookListener {
	opts := options.Find().SetSort(bson.D{{Key: "listener_id", Value: 1}})
	cursor, err := m.listenerCol.Find(context.TODO(), bson.D{}, opts)
	if err != nil {
		pLog.Printf("Error listing listeners: %v", err)
		return nil
	}
	var recs []ListenerRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		pLog.Printf("Error decoding listeners: %v", err)
		return nil
	}
	listeners := make([]model.WebhookListener, len(recs))
	for i, rec := range recs {
		listeners[i] = rec.Listener
	}
	return listeners
}

func (m *MongoProvider) DeleteListener(id string) error {
	filter := bson.D{{Key: "listener_id", Value: id}}
	res, err := m.listenerCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		return apperr.Internal("deleting listener", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Listener not found: %s", id)
	}
	// A listener and its log share a lifecycle.
	if _, err := m.eventCol.DeleteMany(context.TODO(), filter); err != nil {
		return apperr.Internal("flushing listener events", err)
	}
	return nil
}

func (m *MongoProvider) requireListener(id string) error {
	filter := bson.D{{Key: "listener_id", Value: id}}
	count, err := m.listenerCol.CountDocuments(context.TODO(), filter)
	if err != nil {
		return apperr.Internal("counting listeners", err)
	}
	if count == 0 {
		return apperr.NotFound("Listener not found: %s", id)
	}
	return nil
}

func (m *MongoProvider) AppendEvent(listenerId string, event model.Event) error {
	if err := m.requireListener(listenerId); err != nil {
		return err
	}
	event.ListenerId = listenerId
	event.Seq = m.nextSeq()
	rec := EventLogRecord{
		Id:         primitive.NewObjectID(),
		ListenerId: listenerId,
		EventId:    event.Id,
		Seq:        event.Seq,
		Event:      event,
	}
	if _, err := m.eventCol.InsertOne(context.TODO(), &rec); err != nil {
		return apperr.Internal("inserting event", err)
	}
	return nil
}

func (m *MongoProvider) GetEvents(listenerId string) ([]model.Event, error) {
	if err := m.requireListener(listenerId); err != nil {
		return nil, err
	}
	filter := bson.D{{Key: "listener_id", Value: listenerId}}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := m.eventCol.Find(context.TODO(), filter, opts)
	if err != nil {
		return nil, apperr.Internal("listing events", err)
	}
	var recs []EventLogRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		return nil, apperr.Internal("decoding events", err)
	}
	events := make([]model.Event, len(recs))
	for i, rec := range recs {
		events[i] = rec.Event
	}
	return events, nil
}

func (m *MongoProvider) DeleteEvent(listenerId string, eventId string) error {
	if err := m.requireListener(listenerId); err != nil {
		return err
	}
	filter := bson.D{{Key: "listener_id", Value: listenerId}, {Key: "event_id", Value: eventId}}
	res, err := m.eventCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		return apperr.Internal("deleting event", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Event not found: %s", eventId)
	}
	return nil
}

func (m *MongoProvider) FlushEvents(listenerId string) error {
	if err := m.requireListener(listenerId); err != nil {
		return err
	}
	filter := bson.D{{Key: "listener_id", Value: listenerId}}
	if _, err := m.eventCol.DeleteMany(context.TODO(), filter); err != nil {
		return apperr.Internal("flushing events", err)
	}
	return nil
}

func (m *MongoProvider) PendingEventCount() int {
	count, err := m.eventCol.CountDocuments(context.TODO(), bson.D{})
	if err != nil {
		pLog.Printf("Error counting events: %v", err)
		return 0
	}
	return int(count)
}

// Grants

func (m *MongoProvider) UpsertGrant(grant *model.Grant) error {
	filter := bson.D{
		{Key: "user_id", Value: grant.UserId},
		{Key: "app_id", Value: grant.ApplicationId},
		{Key: "api_id", Value: grant.ApiId},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "grant", Value: grant}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "_id", Value: primitive.NewObjectID()}}},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.grantCol.UpdateOne(context.TODO(), filter, update, opts); err != nil {
		return apperr.Internal("upserting grant", err)
	}
	return nil
}

func (m *MongoProvider) GetGrant(userId string, appId string, apiId string) (*model.Grant, error) {
	filter := bson.D{{Key: "user_id", Value: userId}, {Key: "app_id", Value: appId}, {Key: "api_id", Value: apiId}}
	res := m.grantCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		return nil, apperr.NotFound("Grant not found")
	}
	var rec GrantRecord
	if err := res.Decode(&rec); err != nil {
		return nil, apperr.Internal("decoding grant", err)
	}
	return &rec.Grant, nil
}

func (m *MongoProvider) GetGrantsByUser(userId string) ([]model.Grant, error) {
	filter := bson.D{{Key: "user_id", Value: userId}}
	opts := options.Find().SetSort(bson.D{{Key: "app_id", Value: 1}, {Key: "api_id", Value: 1}})
	cursor, err := m.grantCol.Find(context.TODO(), filter, opts)
	if err != nil {
		return nil, apperr.Internal("listing grants", err)
	}
	var recs []GrantRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		return nil, apperr.Internal("decoding grants", err)
	}
	grants := make([]model.Grant, len(recs))
	for i, rec := range recs {
		grants[i] = rec.Grant
	}
	return grants, nil
}

func (m *MongoProvider) DeleteGrant(userId string, appId string, apiId string) error {
	filter := bson.D{{Key: "user_id", Value: userId}, {Key: "app_id", Value: appId}, {Key: "api_id", Value: apiId}}
	res, err := m.grantCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		return apperr.Internal("deleting grant", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("Grant not found")
	}
	return nil
}

func (m *MongoProvider) DeleteGrantsByUser(userId string) error {
	filter := bson.D{{Key: "user_id", Value: userId}}
	if _, err := m.grantCol.DeleteMany(context.TODO(), filter); err != nil {
		return apperr.Internal("deleting grants", err)
	}
	return nil
}

// Token signing keys

func (m *MongoProvider) createIssuerKeyPair(issuer string) *rsa.PrivateKey {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	privKeyBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	pubKeyBytes := x509.MarshalPKCS1PublicKey(&privateKey.PublicKey)

	keyPairRec := JwkKeyRec{
		Id:          primitive.NewObjectID(),
		Iss:         issuer,
		KeyBytes:    privKeyBytes,
		PubKeyBytes: pubKeyBytes,
	}

	if _, err := m.keyCol.InsertOne(context.TODO(), &keyPairRec); err != nil {
		pLog.Printf("Error storing key pair: %s", err.Error())
		return nil
	}
	return privateKey
}

func (m *MongoProvider) loadIssuerKey(issuer string) (*rsa.PrivateKey, error) {
	filter := bson.D{{Key: "iss", Value: issuer}}
	res := m.keyCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		// Database existed but without a key for this issuer
		return m.createIssuerKeyPair(issuer), nil
	}
	var rec JwkKeyRec
	if err := res.Decode(&rec); err != nil {
		return nil, err
	}
	return x509.ParsePKCS1PrivateKey(rec.KeyBytes)
}

func (m *MongoProvider) issuerPublicJwks(issuer string) *keyfunc.JWKS {
	filter := bson.D{{Key: "iss", Value: issuer}}

	res := m.keyCol.FindOne(context.TODO(), filter)

	var rec JwkKeyRec
	if err := res.Decode(&rec); err != nil {
		pLog.Printf("Error parsing JwkKeyRec: %s", err.Error())
		return nil
	}

	pubKey, err := x509.ParsePKCS1PublicKey(rec.PubKeyBytes)
	if err != nil {
		pLog.Printf("Error parsing public key: %s", err.Error())
		return nil
	}

	gkey := keyfunc.NewGivenRSACustomWithOptions(pubKey, keyfunc.GivenKeyOptions{
		Algorithm: "RS256",
	})
	givenKeys := make(map[string]keyfunc.GivenKey)
	givenKeys[issuer] = gkey
	return keyfunc.NewGiven(givenKeys)
}

func (m *MongoProvider) GetAuthIssuer() *authtoken.AuthIssuer {
	return &authtoken.AuthIssuer{
		TokenIssuer: m.TokenIssuer,
		PrivateKey:  m.tokenKey,
		PublicKey:   m.tokenPubKey,
	}
}

func (m *MongoProvider) GetAuthValidatorPubKey() *keyfunc.JWKS {
	return m.tokenPubKey
}

func (m *MongoProvider) GetPublicJWKS() *json.RawMessage {
	filter := bson.D{{Key: "iss", Value: m.TokenIssuer}}

	res := m.keyCol.FindOne(context.TODO(), filter)
	if res.Err() != nil {
		return nil
	}
	var rec JwkKeyRec
	if err := res.Decode(&rec); err != nil {
		pLog.Printf("Error parsing JwkKeyRec: %s", err.Error())
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
