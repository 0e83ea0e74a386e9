package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/Clark-Hu/movie-catalog/internal/logging"
)

const (
	// ConfigPathEnvVar points at an optional YAML file layered under the environment.
	ConfigPathEnvVar = "CONFIG_PATH"

	EnvDevelopment = "development"
	EnvProduction  = "production"

	minSecretLength = 32
)

// DefaultConfigPaths are searched when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "/etc/movie-catalog/config.yaml"}

// Config captures all runtime configuration. Keys are the lower-cased
// environment variable names, so DB_URL and a YAML "db_url" set the same field.
type Config struct {
	Port        string `koanf:"port"`
	Environment string `koanf:"environment"`

	DBURL              string `koanf:"db_url"`
	DBMaxConns         int    `koanf:"db_max_conns"`
	DBMinConns         int    `koanf:"db_min_conns"`
	DBMaxIdleSecs      int    `koanf:"db_max_conn_idle_secs"`
	DBMaxLifeSecs      int    `koanf:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs  int    `koanf:"db_conn_timeout_secs"`
	DBStatementCache   int    `koanf:"db_statement_cache_capacity"`
	DBQueryTimeoutSecs int    `koanf:"db_query_timeout_secs"`

	ReadTimeoutSecs  int `koanf:"server_read_timeout"`
	WriteTimeoutSecs int `koanf:"server_write_timeout"`
	IdleTimeoutSecs  int `koanf:"server_idle_timeout"`

	JWTSecret    string `koanf:"jwt_secret"`
	TokenTTLSecs int    `koanf:"token_ttl_secs"`
	BcryptCost   int    `koanf:"bcrypt_cost"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	CORSAllowedOrigins      []string `koanf:"cors_allowed_origins"`
	AuthRateLimitRequests   int      `koanf:"auth_rate_limit_requests"`
	AuthRateLimitWindowSecs int      `koanf:"auth_rate_limit_window_secs"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Development reports whether internal error detail may be echoed to clients.
func (c Config) Development() bool {
	return c.Environment == EnvDevelopment
}

func defaults() Config {
	return Config{
		Port:                    "8080",
		Environment:             EnvProduction,
		DBMaxConns:              20,
		DBMinConns:              2,
		DBMaxIdleSecs:           300,
		DBMaxLifeSecs:           3600,
		DBConnTimeoutSecs:       10,
		DBStatementCache:        256,
		DBQueryTimeoutSecs:      5,
		ReadTimeoutSecs:         15,
		WriteTimeoutSecs:        15,
		IdleTimeoutSecs:         60,
		TokenTTLSecs:            3600,
		BcryptCost:              12,
		CORSAllowedOrigins:      []string{"*"},
		AuthRateLimitRequests:   20,
		AuthRateLimitWindowSecs: 60,
		LogLevel:                "info",
		LogFormat:               "json",
	}
}

// Load layers defaults, an optional YAML file and environment variables, then
// validates the result.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := splitList(k, "cors_allowed_origins"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	if c.TokenTTLSecs <= 0 {
		return fmt.Errorf("TOKEN_TTL_SECS must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("ENVIRONMENT must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if c.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if c.DBQueryTimeoutSecs <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT_SECS must be positive")
	}
	if c.AuthRateLimitRequests <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_REQUESTS must be positive")
	}
	if c.AuthRateLimitWindowSecs <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT_WINDOW_SECS must be positive")
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, disabled")
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("LOG_FORMAT must be %q or %q", "json", "console")
	}
	return nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// splitList turns a comma-separated env value into a slice. YAML lists are
// left untouched.
func splitList(k *koanf.Koanf, key string) error {
	raw, ok := k.Get(key).(string)
	if !ok {
		return nil
	}
	parts := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(key, parts); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
