package verifier

import (
	"context"
	"strings"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"github.com/example/googleauth/internal/logging"
	"google.golang.org/api/idtoken"
)

// ValidateFunc matches idtoken.Validate.
type ValidateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// GoogleOption configures a Google verifier.
type GoogleOption func(*Google)

// WithValidateFunc replaces idtoken.Validate, e.g. with a validator built by
// idtoken.NewValidator using a custom HTTP client.
func WithValidateFunc(fn ValidateFunc) GoogleOption {
	return func(g *Google) {
		g.validate = fn
	}
}

// Google verifies Google Sign-In ID tokens for a single OAuth client ID.
type Google struct {
	clientID string
	validate ValidateFunc
}

// NewGoogle returns a verifier accepting ID tokens whose audience is clientID.
func NewGoogle(clientID string, opts ...GoogleOption) (*Google, error) {
	if clientID == "" {
		return nil, errors.NewK("verifier: google client id is required", errors.KindInternal)
	}
	g := &Google{
		clientID: clientID,
		validate: idtoken.Validate,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Verify validates the ID token signature, issuer, expiry and audience.
func (g *Google) Verify(ctx context.Context, credential string) (*identity.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, invalidCredential(errors.New("verifier: empty credential"))
	}

	payload, err := g.validate(ctx, credential, g.clientID)
	if err != nil {
		logging.Warnw(ctx, "verifier: google id token rejected", "error", err)
		return nil, invalidCredential(err)
	}
	if payload.Audience != g.clientID {
		return nil, invalidCredential(errors.Errorf("verifier: unexpected audience %q", payload.Audience))
	}
	if payload.Issuer != GoogleIssuer && payload.Issuer != strings.TrimPrefix(GoogleIssuer, "https://") {
		return nil, invalidCredential(errors.Errorf("verifier: unexpected issuer %q", payload.Issuer))
	}
	if payload.Claims == nil {
		payload.Claims = map[string]interface{}{}
	}
	if _, ok := payload.Claims["sub"]; !ok && payload.Subject != "" {
		payload.Claims["sub"] = payload.Subject
	}
	return IdentityFromClaims(payload.Claims)
}
