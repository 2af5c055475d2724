package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notedex/internal/index"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Vault VaultConfig       `yaml:"vault"`
	Index IndexConfig       `yaml:"index"`
	Watch WatchConfig       `yaml:"watch"`
	Auth  AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds the note index database configuration.
type IndexConfig struct {
	Path string `yaml:"path"`
	// Driver is the database/sql driver name: "sqlite" (pure Go) or
	// "sqlite3" (cgo, built with -tags sqlite_fts5).
	Driver        string `yaml:"driver"`
	MaxConns      int    `yaml:"max_conns"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = index.DriverModernc
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Driver, validation.In(index.DriverModernc, index.DriverMattn)),
		validation.Field(&c.MaxConns, validation.Min(0), validation.Max(64)),
		validation.Field(&c.BusyTimeoutMS, validation.Min(0)),
	)
}

// BusyTimeout returns the configured lock wait.
func (c *IndexConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// RegistryOptions translates the configuration into registry options.
// Zero values leave the registry defaults in place.
func (c *IndexConfig) RegistryOptions() []index.RegistryOption {
	opts := []index.RegistryOption{index.WithDriver(c.Driver)}
	if c.MaxConns > 0 {
		opts = append(opts, index.WithMaxConns(c.MaxConns))
	}
	if c.BusyTimeoutMS > 0 {
		opts = append(opts, index.WithBusyTimeout(c.BusyTimeout()))
	}
	return opts
}

// WatchConfig controls live re-indexing of vault changes.
type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
	// ReconcileDelayMS debounces the full resync scheduled after deletions.
	ReconcileDelayMS int `yaml:"reconcile_delay_ms"`
	// SSEThrottleMS is the minimum interval between index.changed events.
	SSEThrottleMS int `yaml:"sse_throttle_ms"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReconcileDelayMS, validation.Min(0)),
		validation.Field(&c.SSEThrottleMS, validation.Min(0)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Index: IndexConfig{
			Path:          "./notedex.db",
			Driver:        index.DriverModernc,
			MaxConns:      index.DefaultMaxConns,
			BusyTimeoutMS: 5000,
		},
		Watch: WatchConfig{
			Enabled:          true,
			ReconcileDelayMS: 200,
			SSEThrottleMS:    2000,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
