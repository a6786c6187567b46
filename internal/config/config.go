// Package config loads relay configuration from an optional YAML file,
// environment variables and flags, in increasing order of precedence.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envVarListenAddr      = "SIGNALING_RELAY_LISTEN_ADDR"
	envVarLogFormat       = "SIGNALING_RELAY_LOG_FORMAT"
	envVarLogLevel        = "SIGNALING_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "SIGNALING_RELAY_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// WebSocket inbound hardening.
	envVarWriteTimeout         = "WS_WRITE_TIMEOUT"
	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"

	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultWriteTimeout         = 1 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config is the resolved runtime configuration.
type Config struct {
	ListenAddr      string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins restricts websocket upgrades by Origin header. Empty
	// means all origins are accepted (dev posture).
	AllowedOrigins []string

	WriteTimeout         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
}

// Load resolves configuration from args, the environment and an optional
// -config YAML file. Flag values win over env vars, which win over file
// values, which win over defaults.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("signaling-relay", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to optional YAML config file")
	listenAddr := fs.String("listen-addr", "", "listen address (host:port)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:           DefaultListenAddr,
		LogFormat:            LogFormatText,
		LogLevel:             slog.LevelInfo,
		ShutdownTimeout:      DefaultShutdownTimeout,
		WriteTimeout:         DefaultWriteTimeout,
		MaxMessageBytes:      DefaultMaxMessageBytes,
		MaxMessagesPerSecond: DefaultMaxMessagesPerSecond,
	}

	if *configPath != "" {
		if err := applyFile(&cfg, *configPath); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxMessageBytes)
	}
	if c.MaxMessagesPerSecond <= 0 {
		return fmt.Errorf("%s must be positive", envVarMaxMessagesPerSecond)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%s must be positive", envVarWriteTimeout)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(envVarListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envVarLogFormat); v != "" {
		format, err := parseLogFormat(v)
		if err != nil {
			return err
		}
		cfg.LogFormat = format
	}
	if v := os.Getenv(envVarLogLevel); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv(envVarAllowedOrigins); v != "" {
		cfg.AllowedOrigins = splitOrigins(v)
	}

	var err error
	if cfg.ShutdownTimeout, err = envDuration(envVarShutdownTimeout, cfg.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.WriteTimeout, err = envDuration(envVarWriteTimeout, cfg.WriteTimeout); err != nil {
		return err
	}
	if v := os.Getenv(envVarMaxMessageBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envVarMaxMessageBytes, err)
		}
		cfg.MaxMessageBytes = n
	}
	if v := os.Getenv(envVarMaxMessagesPerSecond); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", envVarMaxMessagesPerSecond, err)
		}
		cfg.MaxMessagesPerSecond = n
	}
	return nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

func parseLogFormat(v string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(v)) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported log format %q", v)
	}
}

func parseLogLevel(v string) (slog.Level, error) {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", v)
	}
}

func splitOrigins(v string) []string {
	parts := strings.Split(v, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// NewLogger constructs the process logger from the configured format and
// level.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
