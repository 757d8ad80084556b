package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/overturetool/tempo-plotting-tool/internal/errors"
	"github.com/overturetool/tempo-plotting-tool/internal/jsoncodec"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "tempo.json"

	// DefaultAddress is the default listen address.
	DefaultAddress = ":8080"

	// DefaultEndpoint is the WebSocket subscription path.
	DefaultEndpoint = "/subscription"

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = "10s"

	// DefaultModelSource is the model file loaded when none is configured.
	DefaultModelSource = "model.go"
)

// Cycle guard names accepted in model.cycleGuard.
const (
	GuardPath = "path"
	GuardSelf = "self"
)

// Config represents the complete tempo.json configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Model   ModelConfig   `json:"model"`
	Log     LogConfig     `json:"log"`
	Metrics MetricsConfig `json:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains the WebSocket server settings.
type ServerConfig struct {
	// Address is the listen address.
	Address string `json:"address,omitempty"`

	// Endpoint is the subscription path.
	Endpoint string `json:"endpoint,omitempty"`

	// IdleTimeout closes connections that send nothing for this long.
	// Empty or "0" means connections never idle out.
	IdleTimeout string `json:"idleTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`

	// AllowedOrigins lists accepted Origin headers. "*" accepts any origin;
	// empty means same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// MaxConnections limits concurrent connections. 0 means unlimited.
	MaxConnections int `json:"maxConnections,omitempty"`

	// TrustedProxies lists proxy IPs or CIDRs allowed to set forwarding
	// headers.
	TrustedProxies []string `json:"trustedProxies,omitempty"`
}

// ModelConfig describes the model loaded into the interpreter.
type ModelConfig struct {
	// Source is a file path or s3://bucket/key URI.
	Source string `json:"source,omitempty"`

	// Root optionally preselects the root class at startup.
	Root string `json:"root,omitempty"`

	// CycleGuard is "path" (default) or "self".
	CycleGuard string `json:"cycleGuard,omitempty"`

	// MaxDepth bounds the structure walk. 0 uses the builder default.
	MaxDepth int `json:"maxDepth,omitempty"`

	// AllowedImports replaces the interpreter import allowlist.
	AllowedImports []string `json:"allowedImports,omitempty"`

	// S3Endpoint overrides the S3 endpoint (LocalStack, MinIO).
	S3Endpoint string `json:"s3Endpoint,omitempty"`

	// S3Region sets the AWS region for s3:// sources.
	S3Region string `json:"s3Region,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// ValidationError reports one invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	cfg.applyDefaults()
	return cfg
}

// Load reads tempo.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a configuration file and fills in defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("T101").
				WithDetail("Looked for " + path).
				Wrap(err)
		}
		return nil, errors.New("T101").Wrap(err)
	}

	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	if err := jsoncodec.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("T102").
			WithDetail("In " + path).
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when it does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := jsoncodec.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("T102").Wrap(err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.New("T101").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return "."
	}
	return filepath.Dir(c.configPath)
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.Endpoint == "" {
		c.Server.Endpoint = DefaultEndpoint
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Model.Source == "" {
		c.Model.Source = DefaultModelSource
	}
	if c.Model.CycleGuard == "" {
		c.Model.CycleGuard = GuardPath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, reason string) {
		errs = append(errs, &ValidationError{Field: field, Reason: reason})
	}

	if c.Server.Address == "" {
		invalid("server.address", "must not be empty")
	}
	if !strings.HasPrefix(c.Server.Endpoint, "/") {
		invalid("server.endpoint", "must start with /")
	}
	if _, err := parseDuration(c.Server.IdleTimeout); err != nil {
		invalid("server.idleTimeout", err.Error())
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		invalid("server.shutdownTimeout", err.Error())
	}
	if c.Server.MaxConnections < 0 {
		invalid("server.maxConnections", "must not be negative")
	}
	if c.Model.Source == "" {
		invalid("model.source", "must not be empty")
	}
	if c.Model.CycleGuard != GuardPath && c.Model.CycleGuard != GuardSelf {
		invalid("model.cycleGuard", fmt.Sprintf("must be %q or %q", GuardPath, GuardSelf))
	}
	if c.Model.MaxDepth < 0 {
		invalid("model.maxDepth", "must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		invalid("log.level", "must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		invalid("log.format", "must be text or json")
	}

	if len(errs) == 0 {
		return nil
	}
	err := errors.New("T103").Wrap(stderrors.Join(errs...))
	if c.configPath != "" {
		err.WithDetail("In " + c.configPath)
	}
	return err
}

// IdleTimeout returns the parsed idle timeout. Zero means none.
func (c *Config) IdleTimeout() time.Duration {
	d, _ := parseDuration(c.Server.IdleTimeout)
	return d
}

// ShutdownTimeout returns the parsed shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// Exists reports whether dir contains a tempo.json.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
