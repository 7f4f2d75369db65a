// Package config loads the ATR configuration surface from the environment
// into one immutable struct at startup. Pattern follows the teacher's
// EnvConfig/Validator pair: typed getters with defaults, a validator that
// accumulates errors instead of failing on the first one, and a single
// loader that builds and validates the whole struct in one call.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvConfig reads environment variables under an optional prefix.
type EnvConfig struct {
	prefix string
}

func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{prefix: prefix}
}

func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

func (ec *EnvConfig) GetString(key, defaultValue string) string {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		return v
	}
	return defaultValue
}

func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	v := os.Getenv(fullKey)
	if v == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return v
}

func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func (ec *EnvConfig) GetInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(ec.buildKey(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	v := os.Getenv(ec.buildKey(key))
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validator accumulates validation errors instead of failing on the first one.
type Validator struct {
	errors []string
}

func NewValidator() *Validator { return &Validator{errors: make([]string, 0)} }

func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

func (v *Validator) RequireAbsPath(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	if !strings.HasPrefix(value, "/") {
		v.errors = append(v.errors, fmt.Sprintf("%s must be an absolute path", field))
	}
}

func (v *Validator) RequirePositiveInt64(field string, value int64) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

func (v *Validator) ErrorString() string { return strings.Join(v.errors, "; ") }

func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
	}
	return nil
}

// Config is the complete, immutable ATR configuration surface (§6). Loaded
// once at startup and passed by reference; never mutated afterward.
type Config struct {
	// Filesystem layout.
	StateDir string // STATE_DIR, absolute.

	// Database.
	DatabaseURL string // Postgres DSN replacing SQLITE_DB_PATH (see DESIGN.md).

	AllowTests bool // ALLOW_TESTS

	AppHost string // APP_HOST
	SSHHost string // SSH_HOST
	SSHPort int    // SSH_PORT

	JWTSecretKey string // JWT_SECRET_KEY
	SecretKey    string // SECRET_KEY

	MaxContentLength int64 // MAX_CONTENT_LENGTH, bytes
	MaxExtractSize   int64 // MAX_EXTRACT_SIZE, bytes
	ExtractChunkSize int64 // EXTRACT_CHUNK_SIZE, bytes

	ApacheRATJarPath string // APACHE_RAT_JAR_PATH

	AdminUsers map[string]struct{} // ADMIN_USERS + ADMIN_USERS_ADDITIONAL, merged

	DisableCheckCache bool // DISABLE_CHECK_CACHE

	RedisURL string // PUBSUB_* equivalent transport for wake-up pub/sub
	SVNToken string // SVN_TOKEN
}

// IsAdmin reports whether uid is in the configured foundation-admin set.
func (c *Config) IsAdmin(uid string) bool {
	_, ok := c.AdminUsers[uid]
	return ok
}

// Load reads the ATR configuration surface from the environment (prefix
// "ATR") and validates it. A validation failure is a Fatal-kind condition at
// the call site per §7; Load itself just returns the error.
func Load() (*Config, error) {
	env := NewEnvConfig("ATR")

	admins := make(map[string]struct{})
	for _, u := range env.GetStringSlice("ADMIN_USERS", nil) {
		admins[u] = struct{}{}
	}
	for _, u := range env.GetStringSlice("ADMIN_USERS_ADDITIONAL", nil) {
		admins[u] = struct{}{}
	}

	cfg := &Config{
		StateDir:          env.GetString("STATE_DIR", ""),
		DatabaseURL:       env.GetString("DATABASE_URL", "postgres://localhost:5432/atr?sslmode=disable"),
		AllowTests:        env.GetBool("ALLOW_TESTS", false),
		AppHost:           env.GetString("APP_HOST", "0.0.0.0"),
		SSHHost:           env.GetString("SSH_HOST", "0.0.0.0"),
		SSHPort:           env.GetInt("SSH_PORT", 2222),
		JWTSecretKey:      env.GetString("JWT_SECRET_KEY", ""),
		SecretKey:         env.GetString("SECRET_KEY", ""),
		MaxContentLength:  env.GetInt64("MAX_CONTENT_LENGTH", 512*1024*1024),
		MaxExtractSize:    env.GetInt64("MAX_EXTRACT_SIZE", 2*1024*1024*1024),
		ExtractChunkSize:  env.GetInt64("EXTRACT_CHUNK_SIZE", 4*1024*1024),
		ApacheRATJarPath:  env.GetString("APACHE_RAT_JAR_PATH", ""),
		AdminUsers:        admins,
		DisableCheckCache: env.GetBool("DISABLE_CHECK_CACHE", false),
		RedisURL:          env.GetString("REDIS_URL", "redis://localhost:6379/0"),
		SVNToken:          env.GetString("SVN_TOKEN", ""),
	}

	v := NewValidator()
	v.RequireAbsPath("STATE_DIR", cfg.StateDir)
	v.RequireString("DATABASE_URL", cfg.DatabaseURL)
	v.RequirePositiveInt64("MAX_CONTENT_LENGTH", cfg.MaxContentLength)
	v.RequirePositiveInt64("MAX_EXTRACT_SIZE", cfg.MaxExtractSize)
	v.RequirePositiveInt64("EXTRACT_CHUNK_SIZE", cfg.ExtractChunkSize)
	if err := v.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
