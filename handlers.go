package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/logging"
	"github.com/example/googleauth/internal/token"
)

// maxBodyBytes bounds JSON request bodies. Google ID tokens are a few KB.
const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewK(err, errors.KindValidation).WithPublicMessage("invalid request body")
	}
	return nil
}

func (a *App) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IDToken string `json:"idToken"`
	}
	if err := decodeBody(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	res, err := a.Sessions.Login(r.Context(), in.IDToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"accessToken":  res.AccessToken,
		"refreshToken": res.RefreshToken,
		"user":         res.User,
	})
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	access, err := a.Sessions.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"accessToken": access,
	})
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := token.FromContext(r.Context())
	u, err := a.Sessions.CurrentUser(r.Context(), claims)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    u,
	})
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := token.FromContext(r.Context())
	if err := a.Sessions.Logout(r.Context(), claims); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "logged out",
	})
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		logging.Warnw(r.Context(), "store not ready", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
