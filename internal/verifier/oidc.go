package verifier

import (
	"context"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"github.com/example/googleauth/internal/logging"
)

// OIDC verifies ID tokens using the issuer's discovery document and JWKS.
type OIDC struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDC discovers issuer and returns a verifier for tokens minted for
// clientID. Discovery performs a network round-trip.
func NewOIDC(ctx context.Context, issuer, clientID string) (*OIDC, error) {
	if clientID == "" {
		return nil, errors.NewK("verifier: oidc client id is required", errors.KindInternal)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.WrapPrefix(err, "verifier: oidc discovery failed", 0).WithKind(errors.KindInternal)
	}
	return NewOIDCFromVerifier(provider.Verifier(&oidc.Config{ClientID: clientID})), nil
}

// NewOIDCFromVerifier wraps an already configured go-oidc verifier.
func NewOIDCFromVerifier(v *oidc.IDTokenVerifier) *OIDC {
	return &OIDC{verifier: v}
}

func (o *OIDC) Verify(ctx context.Context, credential string) (*identity.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, invalidCredential(errors.New("verifier: empty credential"))
	}

	tok, err := o.verifier.Verify(ctx, credential)
	if err != nil {
		logging.Warnw(ctx, "verifier: oidc id token rejected", "error", err)
		return nil, invalidCredential(err)
	}

	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, invalidCredential(err)
	}
	return IdentityFromClaims(claims)
}
