// Package config loads client and server settings from flags and the environment.
// Environment variables provide defaults, explicit flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Значения по умолчанию
const (
	DefaultAPIURL            = "http://localhost:8080"
	DefaultDestination       = "/user/queue/notifications"
	DefaultReconnectDelay    = 5 * time.Second
	DefaultHeartbeatIncoming = 10 * time.Second
	DefaultHeartbeatOutgoing = 10 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRefreshTimeout    = 15 * time.Second
)

// ClientConfig настройки CLI клиента
type ClientConfig struct {
	APIURL            string
	WSURL             string
	Destination       string
	DBPath            string
	TokenPassphrase   string
	Password          string
	PasswordFile      string
	LogLevel          string
	LogFormat         string
	ReconnectDelay    time.Duration
	HeartbeatIncoming time.Duration
	HeartbeatOutgoing time.Duration
	RequestTimeout    time.Duration
	RefreshTimeout    time.Duration
	ShowVersion       bool
}

// LoadClient разбирает аргументы командной строки клиента.
// Возвращает конфигурацию и оставшиеся позиционные аргументы (команду).
func LoadClient(args []string) (*ClientConfig, []string, error) {
	cfg := &ClientConfig{}

	fs := flag.NewFlagSet("jiucom", flag.ContinueOnError)
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.StringVar(&cfg.APIURL, "server", getEnvOrDefault("JIUCOM_API_URL", DefaultAPIURL), "Base API URL")
	fs.StringVar(&cfg.WSURL, "ws", os.Getenv("JIUCOM_WS_URL"), "WebSocket URL (derived from --server when empty)")
	fs.StringVar(&cfg.Destination, "destination", getEnvOrDefault("JIUCOM_DESTINATION", DefaultDestination), "STOMP destination for notifications, {userId} is substituted")
	fs.StringVar(&cfg.DBPath, "db", getEnvOrDefault("JIUCOM_DB", "jiucom-client.db"), "Path to local database")
	fs.StringVar(&cfg.Password, "password", "", "Account password (not recommended, use JIUCOM_PASSWORD or --password-file)")
	fs.StringVar(&cfg.PasswordFile, "password-file", "", "Path to file containing the account password")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnvOrDefault("JIUCOM_LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnvOrDefault("JIUCOM_LOG_FORMAT", "text"), "Log format (text, json)")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", getEnvDurationOrDefault("JIUCOM_RECONNECT_DELAY", DefaultReconnectDelay), "Delay between reconnect attempts")
	fs.DurationVar(&cfg.HeartbeatIncoming, "heartbeat-in", getEnvDurationOrDefault("JIUCOM_HEARTBEAT_IN", DefaultHeartbeatIncoming), "Expected server heart-beat interval (0 disables)")
	fs.DurationVar(&cfg.HeartbeatOutgoing, "heartbeat-out", getEnvDurationOrDefault("JIUCOM_HEARTBEAT_OUT", DefaultHeartbeatOutgoing), "Client heart-beat interval (0 disables)")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", getEnvDurationOrDefault("JIUCOM_TIMEOUT", DefaultRequestTimeout), "HTTP request timeout")
	fs.DurationVar(&cfg.RefreshTimeout, "refresh-timeout", getEnvDurationOrDefault("JIUCOM_REFRESH_TIMEOUT", DefaultRefreshTimeout), "Token refresh timeout")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	// Passphrase только из окружения, чтобы не светить в истории shell
	cfg.TokenPassphrase = os.Getenv("JIUCOM_TOKEN_PASSPHRASE")

	if cfg.WSURL == "" {
		wsURL, err := DeriveWSURL(cfg.APIURL)
		if err != nil {
			return nil, nil, err
		}
		cfg.WSURL = wsURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, fs.Args(), nil
}

// Validate проверяет согласованность настроек клиента
func (c *ClientConfig) Validate() error {
	var errs []error

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid API URL %q", c.APIURL))
	}
	if u, err := url.Parse(c.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid WebSocket URL %q", c.WSURL))
	}
	if c.Destination == "" {
		errs = append(errs, errors.New("destination cannot be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path cannot be empty"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("reconnect delay must be positive"))
	}
	if c.HeartbeatIncoming < 0 || c.HeartbeatOutgoing < 0 {
		errs = append(errs, errors.New("heart-beat intervals cannot be negative"))
	}
	if c.RequestTimeout <= 0 || c.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}

	return errors.Join(errs...)
}

// DeriveWSURL строит адрес STOMP endpoint по адресу API:
// http://host/api -> ws://host/ws/websocket
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported API URL scheme %q", u.Scheme)
	}
	u.Path = "/ws/websocket"
	u.RawQuery = ""

	return u.String(), nil
}

// ServerConfig настройки dev backend
type ServerConfig struct {
	Addr              string
	DBPath            string
	JWTSecret         string
	LogLevel          string
	LogFormat         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	ShutdownTimeout   time.Duration
	HeartbeatInterval time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
	ShowVersion       bool
}

// LoadServer разбирает аргументы командной строки сервера
func LoadServer(args []string) (*ServerConfig, error) {
	cfg := &ServerConfig{}

	fs := flag.NewFlagSet("jiucom-server", flag.ContinueOnError)
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.StringVar(&cfg.Addr, "addr", getEnvOrDefault("JIUCOM_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", getEnvOrDefault("JIUCOM_SERVER_DB", "jiucom-server.db"), "Path to SQLite database")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnvOrDefault("JIUCOM_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnvOrDefault("JIUCOM_LOG_FORMAT", "json"), "Log format (text, json)")
	fs.DurationVar(&cfg.AccessTokenTTL, "access-ttl", getEnvDurationOrDefault("JIUCOM_ACCESS_TTL", 15*time.Minute), "Access token lifetime")
	fs.DurationVar(&cfg.RefreshTokenTTL, "refresh-ttl", getEnvDurationOrDefault("JIUCOM_REFRESH_TTL", 14*24*time.Hour), "Refresh token lifetime")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", getEnvDurationOrDefault("JIUCOM_SHUTDOWN_TIMEOUT", 10*time.Second), "Graceful shutdown timeout")
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", getEnvDurationOrDefault("JIUCOM_HEARTBEAT", 10*time.Second), "STOMP heart-beat interval offered to clients")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit", getEnvFloatOrDefault("JIUCOM_RATE_LIMIT", 20), "Requests per second per client IP")
	fs.IntVar(&cfg.RateLimitBurst, "rate-burst", getEnvIntOrDefault("JIUCOM_RATE_BURST", 40), "Rate limiter burst")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Секрет только из окружения
	cfg.JWTSecret = os.Getenv("JIUCOM_JWT_SECRET")

	if cfg.ShowVersion {
		return cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет настройки сервера
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("listen address cannot be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path cannot be empty"))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JIUCOM_JWT_SECRET must be set and at least 32 bytes long"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		errs = append(errs, errors.New("access token lifetime must be shorter than refresh token lifetime"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit values must be positive"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
