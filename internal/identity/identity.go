// Package identity holds the records exchanged between the verifier, the
// identity store and the session layer.
package identity

import "time"

// Identity is a normalized identity asserted by the external identity
// provider. It is produced only by a verifier and never persisted as-is.
type Identity struct {
	// Provider scoped, stable subject identifier (Google `sub`).
	ExternalID string

	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
}

// User is the locally known record for an external identity. ID equals the
// ExternalID it was created from.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	Name      string    `json:"name" bson:"name"`
	Picture   string    `json:"picture" bson:"picture"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// NewUser builds the record created on first login.
func NewUser(id Identity, now time.Time) *User {
	return &User{
		ID:        id.ExternalID,
		Email:     id.Email,
		Name:      id.Name,
		Picture:   id.Picture,
		CreatedAt: now,
	}
}

// PublicUser is the view of a user returned to API clients. It omits internal
// timestamps.
type PublicUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Public returns the client facing view of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Picture: u.Picture,
	}
}
