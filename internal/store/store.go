// Package store keeps the mapping from external identity to local user
// record.
//
// Every backend guarantees a single record per external ID: concurrent first
// logins for the same identity all observe the same record. Existing records
// are returned unchanged, later logins do not refresh the profile fields.
package store

import (
	"context"
	"time"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
)

// ErrNotFound is returned by GetByID when no record exists.
var ErrNotFound = errors.NewK("store: user not found", errors.KindNotFound).WithPublicMessage("user not found")

// Store is the identity store.
type Store interface {
	// GetOrCreate returns the record for id.ExternalID, creating it on first
	// sight.
	GetOrCreate(ctx context.Context, id identity.Identity) (*identity.User, error)

	// GetByID returns the record with the given local ID or ErrNotFound.
	GetByID(ctx context.Context, userID string) (*identity.User, error)

	Ping(ctx context.Context) error
	Close() error
}

// Option configures the backends.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validate(id identity.Identity) error {
	if id.ExternalID == "" {
		return errors.NewK("store: identity has no external id", errors.KindInternal)
	}
	return nil
}

func unixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
