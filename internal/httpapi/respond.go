package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Kind   apperr.Kind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
	Field  string      `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

// writeError renders err as {"error":{"kind","reason","field"}}. Errors
// without a kind are logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		slog.Error("unhandled request error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": errorBody{Kind: "internal", Reason: "internal error"},
		})
		return
	}
	writeJSON(w, apperr.HTTPStatus(err), map[string]any{
		"error": errorBody{Kind: ae.Kind, Reason: ae.Reason, Field: ae.Field},
	})
}

// decode reads a JSON request body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("body", "invalid JSON body")
	}
	return nil
}
