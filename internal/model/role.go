// Package model owns the lifecycle of synthesis model instances: role
// resolution through the active size profile, at-most-one-load-per-role
// caching with single-flight loading, and cache invalidation on profile
// changes.
package model

import "fmt"

// Role names the synthesis capability a model instance serves. The set is
// fixed; roles are not user-extensible at runtime.
type Role string

const (
	// RoleCustomVoice serves pre-built voices.
	RoleCustomVoice Role = "custom_voice"

	// RoleVoiceDesign serves voices described in natural language.
	RoleVoiceDesign Role = "voice_design"

	// RoleVoiceClone serves reference-audio voice cloning.
	RoleVoiceClone Role = "voice_clone"
)

// Roles returns every defined role.
func Roles() []Role {
	return []Role{RoleCustomVoice, RoleVoiceDesign, RoleVoiceClone}
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomVoice, RoleVoiceDesign, RoleVoiceClone:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q, available: %v", ErrUnknownRole, s, Roles())
	}
}
