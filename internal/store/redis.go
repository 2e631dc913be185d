package store

import (
	"context"
	"encoding/json"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"github.com/redis/go-redis/v9"
)

// Redis stores each user as a JSON value under "user:<id>". Records never
// expire.
type Redis struct {
	client *redis.Client
	prefix string
	opts   options
}

func NewRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.WrapPrefix(err, "store: ping redis", 0)
	}
	return NewRedisFromClient(client, opts...), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, opts ...Option) *Redis {
	return &Redis{client: client, prefix: "user:", opts: newOptions(opts)}
}

func (r *Redis) key(userID string) string {
	return r.prefix + userID
}

func (r *Redis) GetOrCreate(ctx context.Context, id identity.Identity) (*identity.User, error) {
	if err := validate(id); err != nil {
		return nil, err
	}
	data, err := json.Marshal(identity.NewUser(id, r.opts.now()))
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: marshal user", 0)
	}
	// SETNX is the atomic create path, the loser of a race reads the winner.
	if err := r.client.SetNX(ctx, r.key(id.ExternalID), data, 0).Err(); err != nil {
		return nil, errors.WrapPrefix(err, "store: setnx user", 0)
	}
	return r.GetByID(ctx, id.ExternalID)
}

func (r *Redis) GetByID(ctx context.Context, userID string) (*identity.User, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.WrapPrefix(err, "store: get user", 0)
	}
	var u identity.User
	if err := json.Unmarshal(val, &u); err != nil {
		return nil, errors.WrapPrefix(err, "store: unmarshal user", 0)
	}
	return &u, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.client.Close() }
