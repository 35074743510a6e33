package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// HTTPKey is the configuration section for the HTTP server.
	HTTPKey = "http"
	// LegacyHTTPKey is accepted when HTTPKey is absent.
	LegacyHTTPKey = "express"
	// ODMKey is the configuration section that enables the document mapper.
	ODMKey = "odm"
	// LoggingKey is the configuration section for the logger.
	LoggingKey = "logging"

	DefaultPort = 3000
)

// HTTPConfig configures the HTTP server and the middleware attached to it.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	// Port 0 binds an ephemeral port.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`

	// BodyParser selects the request body parser: json, text, raw or urlencoded. Empty attaches
	// none. The kind is checked when the server is set up.
	BodyParser        string         `mapstructure:"bodyParser"`
	BodyParserOptions map[string]any `mapstructure:"bodyParserOptions"`

	ReadTimeout     time.Duration `mapstructure:"readTimeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" validate:"gte=0"`

	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	BasicAuth BasicAuthConfig `mapstructure:"basicAuth"`

	MetricsPath string `mapstructure:"metricsPath"`
	HealthPath  string `mapstructure:"healthPath"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// RateLimitConfig limits requests per client IP. When RedisAddr is set the limit is shared by all
// instances through a fixed window in Redis.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Requests  int           `mapstructure:"requests" validate:"required_if=Enabled true,gte=0"`
	Window    time.Duration `mapstructure:"window" validate:"required_if=Enabled true,gte=0"`
	Burst     int           `mapstructure:"burst" validate:"gte=0"`
	RedisAddr string        `mapstructure:"redisAddr" validate:"omitempty,hostname_port"`
	RedisDB   int           `mapstructure:"redisDB" validate:"gte=0"`
	// TrustProxy honours X-Forwarded-For when resolving the client IP.
	TrustProxy bool `mapstructure:"trustProxy"`
}

// BasicAuthConfig protects every route except the health check. Users maps a username to a
// bcrypt hash.
type BasicAuthConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	Realm   string            `mapstructure:"realm"`
	Users   map[string]string `mapstructure:"users" validate:"required_if=Enabled true"`
}

// ODMConfig holds the connection options handed to the document mapper. Its presence in the
// configuration is what enables the ODM.
type ODMConfig struct {
	Driver         string        `mapstructure:"driver" validate:"required"`
	URI            string        `mapstructure:"uri"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	Database       string        `mapstructure:"database" validate:"required"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	AuthSource     string        `mapstructure:"authSource"`
	AppName        string        `mapstructure:"appName"`
	MaxPoolSize    uint64        `mapstructure:"maxPoolSize"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console json"`
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Port:            DefaultPort,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
		},
		BasicAuth:   BasicAuthConfig{Realm: "foundry"},
		MetricsPath: "/metrics",
		HealthPath:  "/health",
	}
}

func DefaultODMConfig() ODMConfig {
	return ODMConfig{
		ConnectTimeout: 10 * time.Second,
	}
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "console"}
}

var validate = validator.New()

// HTTP decodes the HTTP section, falling back to the legacy "express" key.
func (s *Store) HTTP() (HTTPConfig, error) {
	cfg := DefaultHTTPConfig()
	key := HTTPKey
	if !s.IsSet(HTTPKey) && s.IsSet(LegacyHTTPKey) {
		key = LegacyHTTPKey
	}
	if err := s.UnmarshalKey(key, &cfg); err != nil {
		return HTTPConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return HTTPConfig{}, fmt.Errorf("invalid %s configuration: %w", key, err)
	}
	return cfg, nil
}

// HasODM reports whether the configuration declares an ODM section.
func (s *Store) HasODM() bool {
	return s.IsSet(ODMKey)
}

func (s *Store) ODM() (ODMConfig, error) {
	cfg := DefaultODMConfig()
	if err := s.UnmarshalKey(ODMKey, &cfg); err != nil {
		return ODMConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return ODMConfig{}, fmt.Errorf("invalid %s configuration: %w", ODMKey, err)
	}
	if cfg.URI == "" && cfg.Host == "" {
		return ODMConfig{}, fmt.Errorf("invalid %s configuration: either uri or host must be set", ODMKey)
	}
	return cfg, nil
}

func (s *Store) Logging() (LoggingConfig, error) {
	cfg := DefaultLoggingConfig()
	if err := s.UnmarshalKey(LoggingKey, &cfg); err != nil {
		return LoggingConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return LoggingConfig{}, fmt.Errorf("invalid %s configuration: %w", LoggingKey, err)
	}
	return cfg, nil
}
