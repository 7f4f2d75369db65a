package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvConfigTypedGetters(t *testing.T) {
	t.Setenv("ATR_MAX_CONTENT_LENGTH", "1024")
	t.Setenv("ATR_ALLOW_TESTS", "true")
	t.Setenv("ATR_POLL_INTERVAL", "250ms")
	t.Setenv("ATR_ADMIN_USERS", "alice, bob ,carol")

	ec := NewEnvConfig("ATR")
	assert.Equal(t, int64(1024), ec.GetInt64("MAX_CONTENT_LENGTH", 0))
	assert.True(t, ec.GetBool("ALLOW_TESTS", false))
	assert.Equal(t, 250*time.Millisecond, ec.GetDuration("POLL_INTERVAL", time.Second))
	assert.Equal(t, []string{"alice", "bob", "carol"}, ec.GetStringSlice("ADMIN_USERS", nil))
	assert.Equal(t, "fallback", ec.GetString("NOT_SET", "fallback"))
	assert.Equal(t, 7, ec.GetInt("NOT_SET", 7))
}

func TestMustGetStringPanicsWhenMissing(t *testing.T) {
	ec := NewEnvConfig("ATR")
	assert.Panics(t, func() { ec.MustGetString("DEFINITELY_NOT_SET") })
}

func TestValidatorAccumulatesAllErrors(t *testing.T) {
	v := NewValidator()
	v.RequireString("DATABASE_URL", "")
	v.RequireAbsPath("STATE_DIR", "relative/path")
	v.RequirePositiveInt64("MAX_CONTENT_LENGTH", 0)

	assert.False(t, v.IsValid())
	err := v.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "STATE_DIR must be an absolute path")
	assert.Contains(t, err.Error(), "MAX_CONTENT_LENGTH must be positive")
}

func TestRequireAbsPathEmptyIsMissingNotRelative(t *testing.T) {
	v := NewValidator()
	v.RequireAbsPath("STATE_DIR", "")
	assert.Equal(t, "STATE_DIR is required", v.ErrorString())
}

func TestLoadRejectsRelativeStateDir(t *testing.T) {
	t.Setenv("ATR_STATE_DIR", "var/atr")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATE_DIR must be an absolute path")
}

func TestLoadAppliesDefaultsAndMergesAdminSets(t *testing.T) {
	t.Setenv("ATR_STATE_DIR", "/var/atr")
	t.Setenv("ATR_ADMIN_USERS", "alice,bob")
	t.Setenv("ATR_ADMIN_USERS_ADDITIONAL", "carol")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/atr", cfg.StateDir)
	assert.Equal(t, "postgres://localhost:5432/atr?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, int64(512*1024*1024), cfg.MaxContentLength)
	assert.True(t, cfg.IsAdmin("alice"))
	assert.True(t, cfg.IsAdmin("bob"))
	assert.True(t, cfg.IsAdmin("carol"))
	assert.False(t, cfg.IsAdmin("mallory"))
}
