package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds service configuration from environment.
type Config struct {
	HTTPPort    int    `env:"SOHO_HTTP_PORT" env-default:"8000"`
	CORSOrigins string `env:"CORS_ALLOWED_ORIGINS" env-default:"*"`

	// LogLevel: debug, info, warn, error. Argument traces are only visible at debug.
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	// HTTP server timeouts (seconds). Protect against slowloris and hung connections.
	ReadHeaderTimeoutSec int `env:"SOHO_READ_HEADER_TIMEOUT_SEC" env-default:"10"` // max time to read request headers
	ReadTimeoutSec       int `env:"SOHO_READ_TIMEOUT_SEC" env-default:"30"`        // max time to read full request (headers + body)
	WriteTimeoutSec      int `env:"SOHO_WRITE_TIMEOUT_SEC" env-default:"30"`       // max time to write response
	IdleTimeoutSec       int `env:"SOHO_IDLE_TIMEOUT_SEC" env-default:"60"`        // max idle time between requests (keep-alive); 0 = disabled

	// Intercepted namespaces, comma separated ("controller..*" = every exported method under controller).
	WeblogSelector string `env:"WEBLOG_SELECTOR" env-default:"controller..*"`
	// Method-name prefixes whose first argument is traced as "id".
	WeblogTracePrefixes string `env:"WEBLOG_TRACE_PREFIXES" env-default:"FindByID"`

	// Upstream device registry. Empty = in-memory devices.
	RegistryURL        string `env:"REGISTRY_URL"`
	RegistryTimeoutSec int    `env:"REGISTRY_TIMEOUT_SEC" env-default:"10"`

	// Session store. Empty RedisAddr = in-memory sessions.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	SessionCookie string `env:"SESSION_COOKIE" env-default:"SOHOSESSION"`
	SessionTTLSec int    `env:"SESSION_TTL_SEC" env-default:"1800"`
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	var c Config
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("SOHO_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if strings.TrimSpace(c.SessionCookie) == "" {
		return fmt.Errorf("SESSION_COOKIE must not be empty")
	}
	if c.SessionTTLSec <= 0 {
		return fmt.Errorf("SESSION_TTL_SEC must be positive, got %d", c.SessionTTLSec)
	}
	if c.RegistryTimeoutSec <= 0 {
		return fmt.Errorf("REGISTRY_TIMEOUT_SEC must be positive, got %d", c.RegistryTimeoutSec)
	}
	return nil
}

// TracePrefixes splits WeblogTracePrefixes.
func (c *Config) TracePrefixes() []string {
	var out []string
	for _, p := range strings.Split(c.WeblogTracePrefixes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SessionTTL returns SessionTTLSec as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

// RegistryTimeout returns RegistryTimeoutSec as a duration.
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.RegistryTimeoutSec) * time.Second
}
