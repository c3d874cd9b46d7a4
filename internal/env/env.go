package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/leafsight/internal/envvar"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	// Development enables colored console logs at debug level.
	Development Environment = "development"

	// Production emits JSON logs at info level.
	Production Environment = "production"

	// Test is used by test binaries.
	Test Environment = "test"
)

// FromEnv reads the environment from LEAFSIGHT_ENV, defaulting to Development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.LeafsightEnv))
}

// Parse maps a raw string to an Environment. Unknown values fall back to Development.
func Parse(s string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Production, "prod":
		return Production
	case Test:
		return Test
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}
