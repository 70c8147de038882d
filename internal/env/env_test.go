package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("RESONA_ENV", "")
	assert.Equal(t, Development, FromEnv())

	t.Setenv("RESONA_ENV", "production")
	assert.Equal(t, Production, FromEnv())

	t.Setenv("RESONA_ENV", "PROD")
	assert.Equal(t, Production, FromEnv())

	t.Setenv("RESONA_ENV", "staging")
	assert.Equal(t, Development, FromEnv())
}

func TestIsProduction(t *testing.T) {
	assert.True(t, Production.IsProduction())
	assert.False(t, Development.IsProduction())
}
