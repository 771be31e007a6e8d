package device

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("device: not found")
	ErrUnauthorized = errors.New("device: unauthorized")
	ErrInvalidInput = errors.New("device: invalid input")
)

// OwnershipError reports an attempt to act on a device the user does not
// own. It identifies the offending pair so callers can surface it, and
// unwraps to ErrUnauthorized for errors.Is checks.
type OwnershipError struct {
	UserID   string
	DeviceID string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("device: user %s does not own device %s", e.UserID, e.DeviceID)
}

func (e *OwnershipError) Unwrap() error { return ErrUnauthorized }
