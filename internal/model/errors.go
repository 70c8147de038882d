package model

import (
	"errors"
	"fmt"
)

// Configuration errors: caller mistakes the transport layer maps to
// client-side failures.
var (
	ErrUnknownRole    = errors.New("unknown model role")
	ErrRoleNotDefined = errors.New("role not defined in active profile")
	ErrUnknownProfile = errors.New("unknown model profile")
)

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrUnknownRole) ||
		errors.Is(err, ErrRoleNotDefined) ||
		errors.Is(err, ErrUnknownProfile)
}

// LoadError indicates the load procedure itself failed. The cache is left
// unchanged, so a retry is possible.
type LoadError struct {
	Role    Role
	ModelID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s model from %s: %v", e.Role, e.ModelID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
