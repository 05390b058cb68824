package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "objbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Client.Addr != "127.0.0.1:4827" {
		t.Errorf("client addr: %s", cfg.Client.Addr)
	}
	if cfg.Client.ConnectTimeout != 500*time.Millisecond {
		t.Errorf("connect timeout: %v", cfg.Client.ConnectTimeout)
	}
	if !cfg.Client.ConvertCamelCase {
		t.Error("camel case conversion must default to on")
	}
	if cfg.Server.Version != "2.5.0" {
		t.Errorf("server version: %s", cfg.Server.Version)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
client:
  addr: 10.0.0.2:5000
  call_timeout: 3s
  codec: msgpack
server:
  rate_limit: 50
log:
  level: debug
  development: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.Addr != "10.0.0.2:5000" || cfg.Client.CallTimeout != 3*time.Second {
		t.Errorf("client section: %+v", cfg.Client)
	}
	// keys missing from the file keep their defaults
	if cfg.Client.ConnectTimeout != 500*time.Millisecond || !cfg.Client.ConvertCamelCase {
		t.Errorf("defaults lost: %+v", cfg.Client)
	}
	if cfg.Server.RateLimit != 50 || cfg.Server.Version != "2.5.0" {
		t.Errorf("server section: %+v", cfg.Server)
	}

	opts, err := cfg.ClientOptions(zap.NewNop())
	if err != nil || len(opts) == 0 {
		t.Fatalf("client options: %v", err)
	}
	if n := len(cfg.ServerOptions(zap.NewNop())); n != 3 {
		t.Errorf("expect logger, version and rate limit options, got %d", n)
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug level not applied")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad codec", "client:\n  codec: protobuf\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"negative rate", "server:\n  rate_limit: -1\n"},
		{"bad yaml", "client: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Fatal("expect error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expect error for missing file")
	}
}
