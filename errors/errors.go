package errors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = fmt.Errorf("validation failed")
	ErrStorage               = fmt.Errorf("storage failure")
	ErrDelivery              = fmt.Errorf("delivery failed")
	ErrRegistryInconsistency = fmt.Errorf("registry indexes disagree")
	ErrUnauthorized          = fmt.Errorf("not allowed to join this group")
	ErrUnknownConnection     = fmt.Errorf("unknown connection")
	ErrConnectionExists      = fmt.Errorf("connection already registered")
	ErrSinkFull              = fmt.Errorf("connection queue is full")
	ErrSinkClosed            = fmt.Errorf("connection queue is closed")
	ErrInvalidToken          = fmt.Errorf("invalid token")
	ErrEmptyWords            = fmt.Errorf("no words have been found")
	ErrWorkerPanic           = fmt.Errorf("worker panic")
	ErrUnsupportedAttachment = fmt.Errorf("unsupported attachment")
	ErrUnknownStoreDriver    = fmt.Errorf("unknown store driver")
	ErrMembershipNotFound    = fmt.Errorf("membership not found")
	ErrInvalidPayload        = fmt.Errorf("invalid payload")
	ErrRateLimited           = fmt.Errorf("too many messages, slow down")
	ErrShuttingDown          = fmt.Errorf("server is shutting down")
)

// Is and As forward to the standard library so callers importing this
// package don't need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
