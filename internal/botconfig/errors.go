package botconfig

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the reconciler.
var (
	ErrNoTemplate      = errors.New("config file and bundled example are both missing")
	ErrNotObject       = errors.New("bot config is not a JSON object")
	ErrUnknownAuth     = errors.New("unknown auth service")
	ErrMissingUsername = errors.New("username is required")
	ErrInvalidUsername = errors.New("username must not contain path separators or '..'")
)

// WalkSpeedError reports a walk speed option that is not an integer.
type WalkSpeedError struct {
	Value string
}

func (e *WalkSpeedError) Error() string {
	return fmt.Sprintf("walk speed %q is not an integer", e.Value)
}

// UserDataError reports a userdata script that does not evaluate to a usable
// userInfo object.
type UserDataError struct {
	Reason string
	Cause  error
}

func (e *UserDataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid userdata script: %s: %v", e.Reason, e.Cause)
	}
	return "invalid userdata script: " + e.Reason
}

func (e *UserDataError) Unwrap() error {
	return e.Cause
}
