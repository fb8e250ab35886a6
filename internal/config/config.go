package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarHost       = "HOST"
	envVarPort       = "PORT"
	envVarTLSEnabled = "TLS_ENABLED"
	envVarTLSPort    = "TLS_PORT"
	envVarCertPath   = "CERT_PATH"
	envVarKeyPath    = "KEY_PATH"
	envVarStaticDir  = "STATIC_DIR"

	envVarLogFormat       = "LOG_FORMAT"
	envVarLogLevel        = "LOG_LEVEL"
	envVarShutdownTimeout = "SHUTDOWN_TIMEOUT"

	// Liveness policy knobs. Tunable, not protocol-visible.
	envVarHeartbeatInterval = "HEARTBEAT_INTERVAL"
	envVarIdleTimeout       = "IDLE_TIMEOUT"
	envVarIdleCheckInterval = "IDLE_CHECK_INTERVAL"

	envVarMaxSignalingMessageBytes = "MAX_SIGNALING_MESSAGE_BYTES"

	// ICE servers handed to clients via /api/turn-credentials.
	envVarSTUNURLs       = "STUN_URLS"
	envVarTURNURLs       = "TURN_URLS"
	envVarTURNUsername   = "TURN_USERNAME"
	envVarTURNCredential = "TURN_CREDENTIAL"

	// coturn TURN REST (ephemeral) credentials. When the shared secret is set,
	// static TURN credentials are ignored and per-request credentials are
	// minted instead.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"
)

const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 3030
	DefaultTLSPort   = 3443
	DefaultStaticDir = "www"

	DefaultShutdownTimeout = 15 * time.Second

	DefaultHeartbeatInterval = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultIdleCheckInterval = 30 * time.Second

	DefaultMaxSignalingMessageBytes = int64(64 * 1024)

	DefaultSTUNURL = "stun:stun.l.google.com:19302"

	DefaultTURNRESTTTLSeconds     int64 = 3600
	DefaultTURNRESTUsernamePrefix       = "decay"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	Host       string
	Port       int
	TLSEnabled bool
	TLSPort    int
	CertPath   string
	KeyPath    string
	StaticDir  string

	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	IdleCheckInterval time.Duration

	MaxSignalingMessageBytes int64

	STUNURLs       []string
	TURNURLs       []string
	TURNUsername   string
	TURNCredential string

	TURNRESTSharedSecret   string
	TURNRESTTTLSeconds     int64
	TURNRESTUsernamePrefix string
}

// ListenAddr is the plain HTTP listen address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TLSListenAddr is the HTTPS listen address, meaningful only when TLSEnabled.
func (c Config) TLSListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.TLSPort))
}

// TURNRESTEnabled reports whether ephemeral TURN credentials are configured.
func (c Config) TURNRESTEnabled() bool {
	return c.TURNRESTSharedSecret != ""
}

// ICEServers builds the ICE server list handed to clients. TURN entries carry
// the static username/credential; when TURN REST is enabled the caller
// substitutes ephemeral credentials per request.
func (c Config) ICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 2)
	if len(c.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNURLs})
	}
	if len(c.TURNURLs) > 0 {
		server := webrtc.ICEServer{URLs: c.TURNURLs}
		if !c.TURNRESTEnabled() {
			server.Username = c.TURNUsername
			server.Credential = c.TURNCredential
		}
		servers = append(servers, server)
	}
	return servers
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	cfg := Config{
		Host:                     envOrDefault(lookup, envVarHost, DefaultHost),
		StaticDir:                envOrDefault(lookup, envVarStaticDir, DefaultStaticDir),
		CertPath:                 envOrDefault(lookup, envVarCertPath, ""),
		KeyPath:                  envOrDefault(lookup, envVarKeyPath, ""),
		ShutdownTimeout:          DefaultShutdownTimeout,
		HeartbeatInterval:        DefaultHeartbeatInterval,
		IdleTimeout:              DefaultIdleTimeout,
		IdleCheckInterval:        DefaultIdleCheckInterval,
		MaxSignalingMessageBytes: DefaultMaxSignalingMessageBytes,
		TURNUsername:             envOrDefault(lookup, envVarTURNUsername, ""),
		TURNCredential:           envOrDefault(lookup, envVarTURNCredential, ""),
		TURNRESTSharedSecret:     envOrDefault(lookup, envVarTURNRESTSharedSecret, ""),
		TURNRESTTTLSeconds:       DefaultTURNRESTTTLSeconds,
		TURNRESTUsernamePrefix:   envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix),
	}

	var err error
	if cfg.Port, err = envIntOrDefault(lookup, envVarPort, DefaultPort); err != nil {
		return Config{}, err
	}
	if cfg.TLSPort, err = envIntOrDefault(lookup, envVarTLSPort, DefaultTLSPort); err != nil {
		return Config{}, err
	}
	if cfg.TLSEnabled, err = envBoolOrDefault(lookup, envVarTLSEnabled, false); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval, err = envDurationOrDefault(lookup, envVarHeartbeatInterval, DefaultHeartbeatInterval); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = envDurationOrDefault(lookup, envVarIdleTimeout, DefaultIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.IdleCheckInterval, err = envDurationOrDefault(lookup, envVarIdleCheckInterval, DefaultIdleCheckInterval); err != nil {
		return Config{}, err
	}

	maxMsgBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSignalingMessageBytes = int64(maxMsgBytes)

	cfg.STUNURLs = splitURLList(envOrDefault(lookup, envVarSTUNURLs, DefaultSTUNURL))
	cfg.TURNURLs = splitURLList(envOrDefault(lookup, envVarTURNURLs, ""))

	if raw, ok := lookup(envVarTURNRESTTTLSeconds); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarTURNRESTTTLSeconds, raw, err)
		}
		cfg.TURNRESTTTLSeconds = n
	}

	logFormat, err := parseLogFormat(envOrDefault(lookup, envVarLogFormat, string(LogFormatText)))
	if err != nil {
		return Config{}, err
	}
	cfg.LogFormat = logFormat

	logLevel, err := parseLogLevel(envOrDefault(lookup, envVarLogLevel, "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = logLevel

	fs := flag.NewFlagSet("decay-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "listen host (env "+envVarHost+")")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port (env "+envVarPort+")")
	fs.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory of static web assets (env "+envVarStaticDir+")")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TLSEnabled {
		if c.TLSPort <= 0 || c.TLSPort > 65535 {
			return fmt.Errorf("invalid TLS port %d", c.TLSPort)
		}
		if c.CertPath == "" || c.KeyPath == "" {
			return errors.New("TLS enabled but CERT_PATH/KEY_PATH not set")
		}
	}
	if c.HeartbeatInterval <= 0 || c.IdleTimeout <= 0 || c.IdleCheckInterval <= 0 {
		return errors.New("heartbeat/idle intervals must be positive")
	}
	if c.TURNRESTEnabled() && c.TURNRESTTTLSeconds <= 0 {
		return fmt.Errorf("invalid %s %d", envVarTURNRESTTTLSeconds, c.TURNRESTTTLSeconds)
	}
	return nil
}

// NewLogger builds the process-wide slog logger from the loaded config.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitURLList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}
