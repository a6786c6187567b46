package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML config file schema. Unset fields keep whatever
// value the caller already resolved. Durations are strings in Go duration
// syntax ("15s", "500ms").
type fileConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	ShutdownTimeout string `yaml:"shutdown_timeout"`

	Log struct {
		Format string `yaml:"format"`
		Level  string `yaml:"level"`
	} `yaml:"log"`

	Signaling struct {
		WriteTimeout         string `yaml:"write_timeout"`
		MaxMessageBytes      int64  `yaml:"max_message_bytes"`
		MaxMessagesPerSecond int    `yaml:"max_messages_per_second"`
	} `yaml:"signaling"`
}

// applyFile reads a YAML config file, expanding ${VAR} environment
// variables before parsing.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.ShutdownTimeout != "" {
		if cfg.ShutdownTimeout, err = parseFileDuration("shutdown_timeout", fc.ShutdownTimeout); err != nil {
			return err
		}
	}
	if fc.Log.Format != "" {
		format, err := parseLogFormat(fc.Log.Format)
		if err != nil {
			return err
		}
		cfg.LogFormat = format
	}
	if fc.Log.Level != "" {
		var level slog.Level
		if level, err = parseLogLevel(fc.Log.Level); err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if fc.Signaling.WriteTimeout != "" {
		if cfg.WriteTimeout, err = parseFileDuration("signaling.write_timeout", fc.Signaling.WriteTimeout); err != nil {
			return err
		}
	}
	if fc.Signaling.MaxMessageBytes > 0 {
		cfg.MaxMessageBytes = fc.Signaling.MaxMessageBytes
	}
	if fc.Signaling.MaxMessagesPerSecond > 0 {
		cfg.MaxMessagesPerSecond = fc.Signaling.MaxMessagesPerSecond
	}
	return nil
}

func parseFileDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}
