package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/overturetool/tempo-plotting-tool/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultAddress)
	}
	if cfg.Server.Endpoint != DefaultEndpoint {
		t.Errorf("Server.Endpoint = %q, want %q", cfg.Server.Endpoint, DefaultEndpoint)
	}
	if cfg.IdleTimeout() != 0 {
		t.Errorf("IdleTimeout = %v, want 0", cfg.IdleTimeout())
	}
	if cfg.ShutdownTimeout() != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout())
	}
	if cfg.Model.CycleGuard != GuardPath {
		t.Errorf("Model.CycleGuard = %q, want %q", cfg.Model.CycleGuard, GuardPath)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics should be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `{
  "server": {
    "address": "127.0.0.1:9000",
    "idleTimeout": "5m",
    "allowedOrigins": ["*"],
    "maxConnections": 10
  },
  "model": {
    "source": "s3://models/plant.go",
    "root": "Plant",
    "cycleGuard": "self",
    "maxDepth": 8
  },
  "log": {"level": "debug", "format": "json"},
  "metrics": {"enabled": false}
}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Server.Endpoint != DefaultEndpoint {
		t.Errorf("Server.Endpoint = %q, want default", cfg.Server.Endpoint)
	}
	if cfg.IdleTimeout() != 5*time.Minute {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout())
	}
	if cfg.Model.Source != "s3://models/plant.go" || cfg.Model.Root != "Plant" {
		t.Errorf("Model = %+v", cfg.Model)
	}
	if cfg.Model.CycleGuard != GuardSelf || cfg.Model.MaxDepth != 8 {
		t.Errorf("Model guard = %q depth = %d", cfg.Model.CycleGuard, cfg.Model.MaxDepth)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	if cfg.Path() != filepath.Join(dir, ConfigFileName) || cfg.Dir() != dir {
		t.Errorf("Path = %q, Dir = %q", cfg.Path(), cfg.Dir())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	var te *errors.TempoError
	if !stderrors.As(err, &te) || te.Code != "T101" {
		t.Fatalf("err = %v, want T101", err)
	}
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Error("missing config should wrap os.ErrNotExist")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	_, err := Load(writeConfig(t, `{"server": {"address": }`))
	var te *errors.TempoError
	if !stderrors.As(err, &te) || te.Code != "T102" {
		t.Fatalf("err = %v, want T102", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), ConfigFileName))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := Default()
	cfg.Model.Root = "Plant"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Model.Root != "Plant" {
		t.Errorf("Model.Root = %q", loaded.Model.Root)
	}

	if err := Default().Save(); err == nil {
		t.Error("Save without path should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"empty endpoint", func(c *Config) { c.Server.Endpoint = "" }, "server.endpoint"},
		{"relative endpoint", func(c *Config) { c.Server.Endpoint = "sub" }, "server.endpoint"},
		{"negative idle timeout", func(c *Config) { c.Server.IdleTimeout = "-1s" }, "server.idleTimeout"},
		{"bad shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = "soon" }, "server.shutdownTimeout"},
		{"negative max connections", func(c *Config) { c.Server.MaxConnections = -1 }, "server.maxConnections"},
		{"unknown guard", func(c *Config) { c.Model.CycleGuard = "none" }, "model.cycleGuard"},
		{"negative depth", func(c *Config) { c.Model.MaxDepth = -2 }, "model.maxDepth"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			var verr *ValidationError
			if !stderrors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Server.Endpoint = ""
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.endpoint", "log.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestExists(t *testing.T) {
	if Exists(t.TempDir()) {
		t.Error("Exists on empty dir = true")
	}
	if !Exists(writeConfig(t, "{}")) {
		t.Error("Exists with tempo.json = false")
	}
}
