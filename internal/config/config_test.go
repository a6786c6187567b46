package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load consults so tests are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		envVarListenAddr,
		envVarLogFormat,
		envVarLogLevel,
		envVarShutdownTimeout,
		envVarAllowedOrigins,
		envVarWriteTimeout,
		envVarMaxMessageBytes,
		envVarMaxMessagesPerSecond,
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("listen addr=%q", cfg.ListenAddr)
	}
	if cfg.LogFormat != LogFormatText || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("log format=%q level=%v", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Fatalf("shutdown timeout=%v", cfg.ShutdownTimeout)
	}
	if cfg.MaxMessageBytes != DefaultMaxMessageBytes || cfg.MaxMessagesPerSecond != DefaultMaxMessagesPerSecond {
		t.Fatalf("limits=%d/%d", cfg.MaxMessageBytes, cfg.MaxMessagesPerSecond)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("origins=%v, want none", cfg.AllowedOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envVarListenAddr, "0.0.0.0:9000")
	t.Setenv(envVarLogFormat, "json")
	t.Setenv(envVarLogLevel, "debug")
	t.Setenv(envVarAllowedOrigins, "https://a.example, https://b.example ,")
	t.Setenv(envVarMaxMessagesPerSecond, "7")
	t.Setenv(envVarWriteTimeout, "250ms")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Fatalf("listen addr=%q", cfg.ListenAddr)
	}
	if cfg.LogFormat != LogFormatJSON || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log format=%q level=%v", cfg.LogFormat, cfg.LogLevel)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins=%v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessagesPerSecond != 7 || cfg.WriteTimeout != 250*time.Millisecond {
		t.Fatalf("limits=%d timeout=%v", cfg.MaxMessagesPerSecond, cfg.WriteTimeout)
	}
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envVarListenAddr, "0.0.0.0:9000")

	cfg, err := Load([]string{"-listen-addr", "127.0.0.1:7777"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7777" {
		t.Fatalf("listen addr=%q, want flag value", cfg.ListenAddr)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_TEST_PORT", "6060")

	path := filepath.Join(t.TempDir(), "relay.yaml")
	body := `
listen_addr: "127.0.0.1:${RELAY_TEST_PORT}"
allowed_origins:
  - https://app.example
shutdown_timeout: 30s
log:
  format: json
  level: warn
signaling:
  write_timeout: 2s
  max_message_bytes: 1024
  max_messages_per_second: 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:6060" {
		t.Fatalf("listen addr=%q, want env expansion applied", cfg.ListenAddr)
	}
	if cfg.ShutdownTimeout != 30*time.Second || cfg.WriteTimeout != 2*time.Second {
		t.Fatalf("durations=%v/%v", cfg.ShutdownTimeout, cfg.WriteTimeout)
	}
	if cfg.LogFormat != LogFormatJSON || cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("log format=%q level=%v", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.MaxMessageBytes != 1024 || cfg.MaxMessagesPerSecond != 5 {
		t.Fatalf("limits=%d/%d", cfg.MaxMessageBytes, cfg.MaxMessagesPerSecond)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(envVarListenAddr, "0.0.0.0:9000")

	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: 127.0.0.1:1111\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Fatalf("listen addr=%q, want env value", cfg.ListenAddr)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	for _, tc := range []struct {
		name  string
		env   string
		value string
	}{
		{"bad log format", envVarLogFormat, "xml"},
		{"bad log level", envVarLogLevel, "loud"},
		{"bad duration", envVarShutdownTimeout, "soon"},
		{"bad int", envVarMaxMessagesPerSecond, "many"},
		{"non-positive limit", envVarMaxMessageBytes, "0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.env, tc.value)
			if _, err := Load(nil); err == nil {
				t.Fatalf("expected error for %s=%q", tc.env, tc.value)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load([]string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
