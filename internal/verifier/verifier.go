// Package verifier validates credentials issued by the external identity
// provider (Google) and normalizes them into an identity.Identity.
//
// Two implementations are provided. Google validates ID tokens with
// google.golang.org/api/idtoken against Google's published certificates. OIDC
// performs discovery against the issuer and validates with go-oidc. Both report
// every failure as errors.KindInvalidCredential with the same public message,
// so clients cannot tell a bad signature from an audience mismatch.
package verifier

import (
	"context"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
)

// GoogleIssuer is the OIDC issuer for Google accounts.
const GoogleIssuer = "https://accounts.google.com"

// PublicMessage is returned to clients for any rejected credential.
const PublicMessage = "invalid Google credential"

// Verifier validates an opaque credential and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*identity.Identity, error)
}

// Func adapts a function to the Verifier interface.
type Func func(ctx context.Context, credential string) (*identity.Identity, error)

func (f Func) Verify(ctx context.Context, credential string) (*identity.Identity, error) {
	return f(ctx, credential)
}

func invalidCredential(cause error) *errors.Error {
	return errors.NewK(cause, errors.KindInvalidCredential).WithPublicMessage(PublicMessage)
}

// IdentityFromClaims maps decoded ID token claims to an Identity. `sub` and
// `email` are required.
func IdentityFromClaims(c map[string]interface{}) (*identity.Identity, error) {
	id := &identity.Identity{}
	var err error
	if id.ExternalID, err = claimsString("sub", c, true); err != nil {
		return nil, err
	}
	if id.Email, err = claimsString("email", c, true); err != nil {
		return nil, err
	}
	id.Name, _ = claimsString("name", c, false)
	id.GivenName, _ = claimsString("given_name", c, false)
	id.FamilyName, _ = claimsString("family_name", c, false)
	id.Picture, _ = claimsString("picture", c, false)

	switch v := c["email_verified"].(type) {
	case bool:
		id.EmailVerified = v
	case string:
		// Older Google tokens encode the flag as a string.
		id.EmailVerified = v == "true"
	}
	return id, nil
}

func claimsString(key string, c map[string]interface{}, required bool) (string, error) {
	if v, ok := c[key].(string); ok && v != "" {
		return v, nil
	}
	if !required {
		return "", nil
	}
	return "", invalidCredential(errors.Errorf("verifier: missing '%s' claim", key))
}
