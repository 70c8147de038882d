package env

import (
	"os"
	"strings"

	"github.com/resona-team/resona/internal/envvar"
)

// Environment identifies the runtime environment the process operates in.
type Environment string

const (
	// Development is the default environment.
	Development Environment = "development"

	// Production enables JSON logging and quieter defaults.
	Production Environment = "production"
)

// FromEnv resolves the environment from RESONA_ENV. Unknown values fall
// back to Development.
func FromEnv() Environment {
	switch strings.ToLower(os.Getenv(envvar.ResonaEnv)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
