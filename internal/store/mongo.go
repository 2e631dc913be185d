package store

import (
	"context"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopts "go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultMongoDatabase is the database used when none is configured.
	DefaultMongoDatabase = "googleauth"

	mongoUsersCollection = "users"
)

// Mongo stores users in a MongoDB collection keyed by _id.
type Mongo struct {
	client *mongo.Client
	users  *mongo.Collection
	opts   options
}

func NewMongo(ctx context.Context, uri, database string, opts ...Option) (*Mongo, error) {
	client, err := mongo.Connect(ctx, mopts.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: connect mongo", 0)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.WrapPrefix(err, "store: ping mongo", 0)
	}
	return NewMongoFromClient(client, database, opts...), nil
}

// NewMongoFromClient wraps an already connected client.
func NewMongoFromClient(client *mongo.Client, database string, opts ...Option) *Mongo {
	if database == "" {
		database = DefaultMongoDatabase
	}
	return &Mongo{
		client: client,
		users:  client.Database(database).Collection(mongoUsersCollection),
		opts:   newOptions(opts),
	}
}

func (m *Mongo) GetOrCreate(ctx context.Context, id identity.Identity) (*identity.User, error) {
	if err := validate(id); err != nil {
		return nil, err
	}
	u := identity.NewUser(id, m.opts.now())
	filter := bson.M{"_id": u.ID}
	update := bson.M{"$setOnInsert": bson.M{
		"email":     u.Email,
		"name":      u.Name,
		"picture":   u.Picture,
		"createdAt": u.CreatedAt,
	}}
	upsert := mopts.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mopts.After)

	var got identity.User
	err := m.users.FindOneAndUpdate(ctx, filter, update, upsert).Decode(&got)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on the same _id and this one lost.
		return m.GetByID(ctx, u.ID)
	}
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: upsert user", 0)
	}
	got.CreatedAt = got.CreatedAt.UTC()
	return &got, nil
}

func (m *Mongo) GetByID(ctx context.Context, userID string) (*identity.User, error) {
	var u identity.User
	err := m.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: find user", 0)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (m *Mongo) Ping(ctx context.Context) error { return m.client.Ping(ctx, nil) }

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}
