// ABOUTME: Domain error taxonomy for the chat data-access layer
// ABOUTME: Maps store-level failures onto APIError with HTTP-like status codes

package chatapi

import (
	"errors"
	"fmt"

	"github.com/2389/agentchat/internal/store"
)

// ErrNoAccessToken indicates no usable credential was available when one was
// required. Fatal for the operation; no retry is attempted.
var ErrNoAccessToken = errors.New("no access token available")

// ErrUnsupportedFileInput indicates a file input that carries neither an
// in-memory reader nor a fetchable resource locator.
var ErrUnsupportedFileInput = errors.New("unsupported file input")

// APIError describes a store rejection with an HTTP-like status code:
// 401 for permission denied, 404 for not found, 500 for anything else.
type APIError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// mapStoreError translates a store failure into an APIError. The operation
// and resource name feed the message, mirroring the status-code contract.
func mapStoreError(err error, operation, resource string) error {
	switch {
	case errors.Is(err, store.ErrPermissionDenied):
		return &APIError{
			Message:    fmt.Sprintf("unauthorized access to %s", resource),
			StatusCode: 401,
			Err:        err,
		}
	case errors.Is(err, store.ErrNotFound):
		return &APIError{
			Message:    fmt.Sprintf("%s not found", resource),
			StatusCode: 404,
			Err:        err,
		}
	default:
		return &APIError{
			Message:    fmt.Sprintf("failed to %s", operation),
			StatusCode: 500,
			Err:        err,
		}
	}
}
