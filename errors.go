package main

import (
	"encoding/json"
	"net/http"

	"github.com/example/googleauth/internal/errors"
	"github.com/example/googleauth/internal/logging"
)

// APIError is the JSON error envelope.
type APIError struct {
	Success bool   `json:"success"`
	Message string `json:"error"`
	Code    string `json:"code"`
	Stack   string `json:"stack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status code and public message. The internal
// cause is logged and never written to the client; outside production the
// stack of server errors is included.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatusCode(err)
	body := APIError{
		Success: false,
		Message: errors.PublicMessage(err),
		Code:    codeFor(err, status),
	}

	ctx := r.Context()
	if status >= http.StatusInternalServerError {
		e := errors.Wrap(err, 1)
		logging.Errorw(ctx, "request failed", "status", status, "error", err, "stack", string(e.Stack()))
		if !a.production {
			body.Stack = e.ErrorStack()
		}
	} else {
		logging.Infow(ctx, "request rejected", "status", status, "code", body.Code, "error", err)
	}

	writeJSON(w, status, body)
}

func codeFor(err error, status int) string {
	if k := errors.KindOf(err); k != errors.KindUnknown {
		return k.String()
	}
	switch status {
	case http.StatusTooManyRequests:
		return "RATE_LIMIT_EXCEEDED"
	case http.StatusBadRequest:
		return errors.KindValidation.String()
	}
	return errors.KindInternal.String()
}
