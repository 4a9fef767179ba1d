// Package httputil centralizes JSON encoding and domain error translation for
// HTTP handlers so every endpoint returns the same error envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "swiftclaim/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies; claim payloads are small.
const maxBodyBytes = 1 << 20

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Coded is implemented by module-specific typed errors that carry their own
// wire code and HTTP status (validator rejections, lifecycle state errors).
type Coded interface {
	error
	WireCode() string
	HTTPStatus() int
}

// WriteError translates an error chain into the JSON error envelope.
// Internal errors never leak their description to the caller.
func WriteError(w http.ResponseWriter, err error) {
	var coded Coded
	if errors.As(err, &coded) {
		WriteJSON(w, coded.HTTPStatus(), map[string]string{
			"error":             coded.WireCode(),
			"error_description": coded.Error(),
		})
		return
	}

	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body["error_description"] = de.Message
		}
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON request body into T, rejecting unknown fields and
// oversized payloads. The second return is false when a response was already
// written.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if logger != nil {
			logger.DebugContext(r.Context(), "request decode failed", "error", err)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return req, false
	}
	return req, true
}
