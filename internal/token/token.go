// Package token issues and verifies the access / refresh token pair handed to
// clients after login.
//
// Both token classes are HS256 JWTs bound to a single user ID. They are signed
// with distinct secrets and carry distinct audiences, so a token of one class
// never verifies as the other. Tokens are not stored server side: validity is
// decided by signature and expiry alone.
package token

import (
	"context"
	"time"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "googleauth"

	audienceAccess  = "access"
	audienceRefresh = "refresh"
)

var signingMethod = jwt.SigningMethodHS256

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set of a refresh token.
type RefreshClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides the default token lifetimes.
func WithTTL(access, refresh time.Duration) Option {
	return func(s *Service) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithIssuer sets the `iss` claim written to and required from tokens.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		s.issuer = issuer
	}
}

// WithClock replaces time.Now, used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service signs and verifies tokens. It holds no mutable state and is safe for
// concurrent use.
type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// New returns a token service. The secrets must be non-empty and must differ.
func New(accessSecret, refreshSecret string, opts ...Option) (*Service, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.NewK("token: access and refresh secrets are required", errors.KindInternal)
	}
	if accessSecret == refreshSecret {
		return nil, errors.NewK("token: access and refresh secrets must differ", errors.KindInternal)
	}
	s := &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		issuer:        DefaultIssuer,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.accessTTL <= 0 || s.refreshTTL <= 0 {
		return nil, errors.NewK("token: lifetimes must be positive", errors.KindInternal)
	}
	return s, nil
}

// AccessTTL returns the lifetime of issued access tokens.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the lifetime of issued refresh tokens.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs an access token for the user.
func (s *Service) IssueAccessToken(u *identity.User) (string, error) {
	claims := &AccessClaims{
		UserID:           u.ID,
		Email:            u.Email,
		Name:             u.Name,
		RegisteredClaims: s.registered(u.ID, audienceAccess, s.accessTTL),
	}
	return s.sign(claims, s.accessSecret)
}

// IssueRefreshToken signs a refresh token for the user.
func (s *Service) IssueRefreshToken(u *identity.User) (string, error) {
	claims := &RefreshClaims{
		UserID:           u.ID,
		RegisteredClaims: s.registered(u.ID, audienceRefresh, s.refreshTTL),
	}
	return s.sign(claims, s.refreshSecret)
}

// VerifyAccessToken checks signature, issuer, audience and expiry of an access
// token. Every failure is reported as KindInvalidToken; the cause is only
// available to logs.
func (s *Service) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret, audienceAccess); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, invalidToken(errors.New("token: user binding mismatch"))
	}
	return claims, nil
}

// VerifyRefreshToken is the refresh token counterpart of VerifyAccessToken.
func (s *Service) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret, audienceRefresh); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, invalidToken(errors.New("token: user binding mismatch"))
	}
	return claims, nil
}

func (s *Service) registered(userID, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *Service) sign(claims jwt.Claims, secret []byte) (string, error) {
	ss, err := jwt.NewWithClaims(signingMethod, claims).SignedString(secret)
	if err != nil {
		return "", errors.WrapPrefix(err, "token: signing failed", 0).WithKind(errors.KindInternal)
	}
	return ss, nil
}

func (s *Service) parse(tokenString string, claims jwt.Claims, secret []byte, audience string) error {
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return invalidToken(err)
	}
	return nil
}

func invalidToken(cause error) *errors.Error {
	return errors.NewK(cause, errors.KindInvalidToken).WithPublicMessage("invalid or expired token")
}

type claimsKey struct{}

// NewContext attaches verified access claims to ctx.
func NewContext(ctx context.Context, claims *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the access claims attached by NewContext.
func FromContext(ctx context.Context) (*AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*AccessClaims)
	return c, ok && c != nil
}
