package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/identity"
	"github.com/example/googleauth/internal/logging"
	"github.com/example/googleauth/internal/store"
	"github.com/example/googleauth/internal/token"
	"github.com/example/googleauth/internal/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGoogle accepts credentials of the form "good:<sub>".
var fakeGoogle = verifier.Func(func(ctx context.Context, credential string) (*identity.Identity, error) {
	sub := strings.TrimPrefix(credential, "good:")
	if sub == credential || sub == "" {
		return nil, errors.NewK("bad credential", errors.KindInvalidCredential).
			WithPublicMessage(verifier.PublicMessage)
	}
	return &identity.Identity{
		ExternalID:    sub,
		Email:         sub + "@example.com",
		EmailVerified: true,
		Name:          "User " + sub,
		Picture:       "https://example.com/" + sub + ".png",
	}, nil
})

type testApp struct {
	*App
	handler http.Handler
	store   *store.Memory
}

func newTestApp(t *testing.T, opts AppOptions) *testApp {
	t.Helper()
	tokens, err := token.New("access-secret", "refresh-secret")
	require.NoError(t, err)
	mem := store.NewMemory()
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "http://localhost:5173"
	}
	app := NewApp(fakeGoogle, mem, tokens, logging.NewNopLogger(), opts)
	return &testApp{App: app, handler: app.Router(), store: mem}
}

func (a *testApp) do(t *testing.T, method, path, body, bearer string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (a *testApp) login(t *testing.T, sub string) map[string]interface{} {
	t.Helper()
	rec, out := a.do(t, "POST", "/auth/google", fmt.Sprintf(`{"idToken":"good:%s"}`, sub), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return out
}

// tamper changes one character in the middle of the signature segment.
func tamper(tok string) string {
	i := strings.LastIndex(tok, ".") + 1
	i += (len(tok) - i) / 2
	c := byte('A')
	if tok[i] == 'A' {
		c = 'B'
	}
	return tok[:i] + string(c) + tok[i+1:]
}

func TestLoginThenMe(t *testing.T) {
	a := newTestApp(t, AppOptions{})

	out := a.login(t, "110169484474386276334")
	assert.Equal(t, true, out["success"])
	access, _ := out["accessToken"].(string)
	refresh, _ := out["refreshToken"].(string)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	user, ok := out["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "110169484474386276334", user["id"])
	assert.Equal(t, "110169484474386276334@example.com", user["email"])
	assert.NotContains(t, user, "createdAt")

	rec, me := a.do(t, "GET", "/auth/me", "", access)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, me["success"])
	meUser := me["user"].(map[string]interface{})
	assert.Equal(t, user["id"], meUser["id"])
	assert.NotContains(t, meUser, "createdAt")
}

func TestAPIPrefix(t *testing.T) {
	a := newTestApp(t, AppOptions{})
	rec, out := a.do(t, "POST", "/api/auth/google", `{"idToken":"good:7"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(t, "GET", "/api/auth/me", "", out["accessToken"].(string))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginErrors(t *testing.T) {
	a := newTestApp(t, AppOptions{})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"MissingField", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"EmptyToken", `{"idToken":""}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"MalformedBody", `{"idToken":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"NoBody", ``, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"InvalidCredential", `{"idToken":"forged"}`, http.StatusUnauthorized, "INVALID_CREDENTIAL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, out := a.do(t, "POST", "/auth/google", tc.body, "")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tc.code, out["code"])
			assert.NotContains(t, out, "stack")
		})
	}

	_, out := a.do(t, "POST", "/auth/google", `{"idToken":"forged"}`, "")
	assert.Equal(t, verifier.PublicMessage, out["error"])
	assert.Equal(t, 0, a.store.Len())
}

func TestRefresh(t *testing.T) {
	a := newTestApp(t, AppOptions{})
	out := a.login(t, "42")

	rec, ref := a.do(t, "POST", "/auth/refresh", fmt.Sprintf(`{"refreshToken":%q}`, out["refreshToken"]), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, ref["success"])
	assert.NotContains(t, ref, "refreshToken")

	access := ref["accessToken"].(string)
	claims, err := a.Tokens.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)

	rec, _ = a.do(t, "GET", "/auth/me", "", access)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshTampered(t *testing.T) {
	a := newTestApp(t, AppOptions{})
	out := a.login(t, "42")

	bad := tamper(out["refreshToken"].(string))
	rec, body := a.do(t, "POST", "/auth/refresh", fmt.Sprintf(`{"refreshToken":%q}`, bad), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", body["code"])
	assert.Equal(t, "invalid or expired token", body["error"])
}

func TestRefreshErrors(t *testing.T) {
	a := newTestApp(t, AppOptions{})
	out := a.login(t, "42")
	orphan, err := a.Tokens.IssueRefreshToken(&identity.User{ID: "ghost"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"Missing", `{}`, http.StatusBadRequest},
		{"AccessTokenUsed", fmt.Sprintf(`{"refreshToken":%q}`, out["accessToken"]), http.StatusForbidden},
		{"UnknownUser", fmt.Sprintf(`{"refreshToken":%q}`, orphan), http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := a.do(t, "POST", "/auth/refresh", tc.body, "")
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMeWithoutToken(t *testing.T) {
	a := newTestApp(t, AppOptions{})

	rec, body := a.do(t, "GET", "/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", body["code"])
	assert.Equal(t, false, body["success"])
}

func TestMeErrors(t *testing.T) {
	a := newTestApp(t, AppOptions{})
	out := a.login(t, "5")
	access := out["accessToken"].(string)
	orphan, err := a.Tokens.IssueAccessToken(&identity.User{ID: "ghost", Email: "g@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		auth   string
		status int
	}{
		{"Tampered", "Bearer " + tamper(access), http.StatusForbidden},
		{"RefreshTokenUsed", "Bearer " + out["refreshToken"].(string), http.StatusForbidden},
		{"Garbage", "Bearer garbage", http.StatusForbidden},
		{"WrongScheme", "Basic " + access, http.StatusUnauthorized},
		{"SchemeOnly", "Bearer", http.StatusUnauthorized},
		{"LowercaseScheme", "bearer " + access, http.StatusOK},
		{"UnknownUser", "Bearer " + orphan, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/auth/me", nil)
			req.Header.Set("Authorization", tc.auth)
			rec := httptest.NewRecorder()
			a.handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestLogout(t *testing.T) {
	a := newTestApp(t, AppOptions{})
	out := a.login(t, "8")

	rec, body := a.do(t, "POST", "/auth/logout", "", out["accessToken"].(string))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "logged out", body["message"])

	rec, _ = a.do(t, "POST", "/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	a := newTestApp(t, AppOptions{})

	rec, body := a.do(t, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = a.do(t, "GET", "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ready"])
}

type downStore struct{ *store.Memory }

func (downStore) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestReadyStoreDown(t *testing.T) {
	tokens, err := token.New("a", "b")
	require.NoError(t, err)
	app := NewApp(fakeGoogle, downStore{store.NewMemory()}, tokens, logging.NewNopLogger(), AppOptions{})

	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ready":false}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	a := newTestApp(t, AppOptions{})
	rec, body := a.do(t, "GET", "/auth/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}
