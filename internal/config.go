package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Archive  ArchiveConfig     `yaml:"archive"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Versions VersionsConfig    `yaml:"versions"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Versions.Validate()
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

// ArchiveConfig holds the path to the documentation archive directory.
type ArchiveConfig struct {
	Path string `yaml:"path"`
	// NavigatorThrottle coalesces navigation.updated events.
	NavigatorThrottle time.Duration `yaml:"navigator_throttle"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
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

// Interface languages a navigator index may carry ledgers for.
const (
	LanguageSwift = "swift"
	LanguageObjC  = "occ"
)

// VersionsConfig controls how historical versions are served.
type VersionsConfig struct {
	// Strict rejects explicit version requests for unversioned documents.
	Strict bool `yaml:"strict"`
	// DefaultLanguage picks the change ledger when neither the request nor
	// the document names an interface language.
	DefaultLanguage string `yaml:"default_language"`
	// ShowAPIChanges annotates document reads with API changes.
	ShowAPIChanges bool `yaml:"show_api_changes"`
}

// Validate validates the versions configuration.
func (c *VersionsConfig) Validate() error {
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = LanguageSwift
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultLanguage, validation.In(LanguageSwift, LanguageObjC)),
	)
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
		Archive: ArchiveConfig{
			Path:              "./archive",
			NavigatorThrottle: 2 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "./perthro.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Versions: VersionsConfig{
			DefaultLanguage: LanguageSwift,
			ShowAPIChanges:  true,
		},
	}
}
