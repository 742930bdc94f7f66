package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrDuplicateItem is returned by DraftManager.AddItem when the book is
// already on the draft. The call is rejected before any request is sent.
var ErrDuplicateItem = errors.New("book is already on the draft")

// TransportError wraps a network-level failure (origin or relay unreachable,
// timeout, connection reset). No request semantics can be inferred from it.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx answer from the origin, decoded from its error body.
type APIError struct {
	Status int
	Code   string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Detail)
}

// IsUnauthorized reports whether err is a 401 from the origin.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusUnauthorized
}

// IsForbidden reports whether err is a 403 from the origin.
func IsForbidden(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 from the origin.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// IsValidation reports whether err is a 400 from the origin.
func IsValidation(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusBadRequest
}

func isCSRFRejection(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusForbidden && ae.Detail == "csrf_failed"
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func decodeAPIError(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			ae.Code = eb.Error
			ae.Detail = eb.Detail
		}
	}
	if ae.Detail == "" {
		ae.Detail = http.StatusText(resp.StatusCode)
	}
	return ae
}
