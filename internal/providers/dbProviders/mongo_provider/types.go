package mongo_provider

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/open-apim/portal-core/internal/model"
)

type JwkKeyRec struct {
	Id          primitive.ObjectID `json:"id" bson:"_id"`
	Iss         string             `json:"iss,omitempty" bson:"iss"`
	KeyBytes    []byte             `json:"keyBytes" bson:"key_bytes"`
	PubKeyBytes []byte             `json:"pubJwks" bson:"pub_jwks"`
}

// ApplicationRecord is stored in MongoProvider.appCol
type ApplicationRecord struct {
	Id          primitive.ObjectID `bson:"_id"`
	AppId       string             `bson:"app_id"`
	Application model.Application  `bson:"application"`
}

// SubscriptionRecord is stored in MongoProvider.subCol. AppId and ApiId are
// lifted out of the subscription for the unique compound index; ClientId
// backs the reverse credential lookup.
type SubscriptionRecord struct {
	Id           primitive.ObjectID `bson:"_id"`
	AppId        string             `bson:"app_id"`
	ApiId        string             `bson:"api_id"`
	ClientId     string             `bson:"client_id,omitempty"`
	Seq          int64              `bson:"seq"`
	Subscription model.Subscription `bson:"subscription"`
}

// ListenerRecord is stored in MongoProvider.listenerCol
type ListenerRecord struct {
	Id         primitive.ObjectID    `bson:"_id"`
	ListenerId string                `bson:"listener_id"`
	Listener   model.WebhookListener `bson:"listener"`
}

// EventLogRecord is stored in MongoProvider.eventCol. One record per
// listener per event so every log drains independently.
type EventLogRecord struct {
	Id         primitive.ObjectID `bson:"_id"`
	ListenerId string             `bson:"listener_id"`
	EventId    string             `bson:"event_id"`
	Seq        int64              `bson:"seq"`
	Event      model.Event        `bson:"event"`
}

// GrantRecord is stored in MongoProvider.grantCol
type GrantRecord struct {
	Id     primitive.ObjectID `bson:"_id"`
	UserId string             `bson:"user_id"`
	AppId  string             `bson:"app_id"`
	ApiId  string             `bson:"api_id"`
	Grant  model.Grant        `bson:"grant"`
}
