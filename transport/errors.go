// Package transport holds what the HTTP and WebSocket boundaries share.
package transport

import (
	"net/http"
	"quorum/errors"
)

// StatusFromError maps the error taxonomy to an HTTP status.
func StatusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errors.ErrValidation), errors.Is(err, errors.ErrUnsupportedAttachment),
		errors.Is(err, errors.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrMembershipNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrStorage), errors.Is(err, errors.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the payload of a failed call, over HTTP and over the websocket.
type ErrorBody struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Error   string `json:"error"`
}

// NewErrorBody hides the internals of server side failures.
func NewErrorBody(err error) ErrorBody {
	status := StatusFromError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		message = http.StatusText(status)
	}
	if errors.Is(err, errors.ErrStorage) {
		message = errors.ErrStorage.Error()
	}
	return ErrorBody{Success: false, Status: status, Error: message}
}
