// Package session composes the verifier, the identity store and the token
// service into the login, refresh, current-user and logout flows.
package session

import (
	"context"
	"strings"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"github.com/example/googleauth/internal/logging"
	"github.com/example/googleauth/internal/store"
	"github.com/example/googleauth/internal/token"
	"github.com/example/googleauth/internal/verifier"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         identity.PublicUser
}

// Service runs the session flows. It holds no per-session state.
type Service struct {
	verifier verifier.Verifier
	store    store.Store
	tokens   *token.Service
}

func New(v verifier.Verifier, s store.Store, tokens *token.Service) *Service {
	return &Service{verifier: v, store: s, tokens: tokens}
}

// Login verifies an external credential, provisions the user on first sight
// and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, credential string) (*LoginResult, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, errors.Kindf(errors.KindValidation, "session: missing credential").
			WithPublicMessage("idToken is required")
	}

	id, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}

	_, lookupErr := s.store.GetByID(ctx, id.ExternalID)
	isNew := errors.Is(lookupErr, store.ErrNotFound)

	u, err := s.store.GetOrCreate(ctx, *id)
	if err != nil {
		return nil, err
	}
	if isNew {
		logging.Infow(ctx, "new user registered", "email", u.Email, "userId", u.ID)
	} else {
		logging.Infow(ctx, "user logged in", "email", u.Email, "userId", u.ID)
	}

	access, err := s.tokens.IssueAccessToken(u)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(u)
	if err != nil {
		return nil, err
	}
	logging.Track(ctx, "userId", u.ID)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         u.Public(),
	}, nil
}

// Refresh mints a new access token from a refresh token. The refresh token
// itself is not rotated and stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", errors.Kindf(errors.KindValidation, "session: missing refresh token").
			WithPublicMessage("refreshToken is required")
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		logging.Debugw(ctx, "refresh token rejected", "error", err)
		return "", err
	}

	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logging.Warnw(ctx, "refresh for unknown user", "userId", claims.UserID)
		}
		return "", err
	}
	return s.tokens.IssueAccessToken(u)
}

// CurrentUser resolves the principal of a verified access token.
func (s *Service) CurrentUser(ctx context.Context, claims *token.AccessClaims) (identity.PublicUser, error) {
	if claims == nil {
		return identity.PublicUser{}, errors.Kindf(errors.KindUnauthenticated, "session: no claims on request").
			WithPublicMessage("access token required")
	}
	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		return identity.PublicUser{}, err
	}
	return u.Public(), nil
}

// Logout succeeds unconditionally. Tokens are not persisted so there is
// nothing to revoke; the client discards its pair.
func (s *Service) Logout(ctx context.Context, claims *token.AccessClaims) error {
	if claims != nil {
		logging.Infow(ctx, "user logged out", "userId", claims.UserID)
	}
	return nil
}
