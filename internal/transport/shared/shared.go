// Package shared holds the JSON envelope helpers every handler uses so
// error translation stays in one place.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "libreria/pkg/domain-errors"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a coded domain error into the JSON error envelope.
// Non-coded errors surface as internal_error with a generic message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":  string(code),
		"detail": dErrors.MessageOf(err),
	})
}
