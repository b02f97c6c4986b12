package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation and permission failures are rejected
// before any state mutation and never retried; remote write failures
// are retried with backoff and surface as message status=error when
// exhausted.
var (
	ErrValidation     = errors.New("chat: validation failed")
	ErrEmptyMessage   = fmt.Errorf("%w: empty message", ErrValidation)
	ErrMessageTooLong = fmt.Errorf("%w: message too long", ErrValidation)

	ErrRemoteWrite = errors.New("chat: remote write failed")

	ErrNotFound = errors.New("chat: message not found")

	ErrPermission        = errors.New("chat: permission denied")
	ErrEditWindowExpired = fmt.Errorf("%w: edit window expired", ErrPermission)

	ErrRateLimited = errors.New("chat: rate limited")
)
