package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort        = 8000
	defaultEnv         = "development"
	defaultFrontendURL = "http://localhost:3000"
	defaultDBDriver    = "mysql"
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "future_of_work"
	defaultRedisURL    = "redis://localhost:6379/0"
	defaultSMTPPort    = 587
	defaultGoogleURL   = "https://www.googleapis.com/oauth2/v3/userinfo"

	devSecret = "fow-dev-secret-change-me"
)

// AppConfig holds runtime startup configuration loaded from YAML and the environment.
type AppConfig struct {
	Port           int      `yaml:"port"            env:"FOW_PORT,overwrite"`
	Env            string   `yaml:"env"             env:"FOW_ENV,overwrite"`
	FrontendURL    string   `yaml:"frontend_url"    env:"FOW_FRONTEND_URL,overwrite"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"FOW_ALLOWED_ORIGINS,overwrite"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"FOW_TRUSTED_PROXIES,overwrite"`

	Database  DatabaseConfig    `yaml:"database"`
	Redis     RedisConfig       `yaml:"redis"`
	JWT       JWTConfig         `yaml:"jwt"`
	Tokens    TokenConfig       `yaml:"tokens"`
	Mail      MailConfig        `yaml:"mail"`
	OAuth     OAuthConfig       `yaml:"oauth"`
	Account   AccountConfig     `yaml:"account"`
	Security  SecurityConfig    `yaml:"security"`
	Throttles map[string]string `yaml:"throttles"`
	Log       LogConfig         `yaml:"log"`
	Metrics   MetricsConfig     `yaml:"metrics"`
}

type DatabaseConfig struct {
	Driver   string            `yaml:"driver"   env:"FOW_DB_DRIVER,overwrite"`
	DSN      string            `yaml:"dsn"      env:"FOW_DB_DSN,overwrite"`
	Host     string            `yaml:"host"     env:"FOW_DB_HOST,overwrite"`
	Port     int               `yaml:"port"     env:"FOW_DB_PORT,overwrite"`
	User     string            `yaml:"user"     env:"FOW_DB_USER,overwrite"`
	Password string            `yaml:"password" env:"FOW_DB_PASSWORD,overwrite"`
	Name     string            `yaml:"name"     env:"FOW_DB_NAME,overwrite"`
	Params   map[string]string `yaml:"params"`
	// AutoMigrate runs gorm AutoMigrate on startup.
	AutoMigrate bool `yaml:"auto_migrate" env:"FOW_DB_AUTO_MIGRATE,overwrite"`
}

type RedisConfig struct {
	URL string `yaml:"url" env:"FOW_REDIS_URL,overwrite"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret"      env:"FOW_JWT_SECRET,overwrite"`
	AccessTTL  time.Duration `yaml:"access_ttl"  env:"FOW_JWT_ACCESS_TTL,overwrite"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"FOW_JWT_REFRESH_TTL,overwrite"`
}

// TokenConfig configures the single-purpose account tokens sent by email.
type TokenConfig struct {
	Secret string        `yaml:"secret" env:"FOW_TOKEN_SECRET,overwrite"`
	TTL    time.Duration `yaml:"ttl"    env:"FOW_TOKEN_TTL,overwrite"`
}

type MailConfig struct {
	Enable bool   `yaml:"enable" env:"FOW_MAIL_ENABLE,overwrite"`
	Host   string `yaml:"host"   env:"FOW_MAIL_HOST,overwrite"`
	Port   int    `yaml:"port"   env:"FOW_MAIL_PORT,overwrite"`
	User   string `yaml:"user"   env:"FOW_MAIL_USER,overwrite"`
	Pass   string `yaml:"pass"   env:"FOW_MAIL_PASS,overwrite"`
	From   string `yaml:"from"   env:"FOW_MAIL_FROM,overwrite"`
}

type OAuthConfig struct {
	Google GoogleConfig `yaml:"google"`
}

type GoogleConfig struct {
	Enable      bool   `yaml:"enable"       env:"FOW_GOOGLE_ENABLE,overwrite"`
	UserInfoURL string `yaml:"userinfo_url" env:"FOW_GOOGLE_USERINFO_URL,overwrite"`
}

type AccountConfig struct {
	GracePeriod    time.Duration `yaml:"grace_period"    env:"FOW_ACCOUNT_GRACE_PERIOD,overwrite"`
	UpdateCooldown time.Duration `yaml:"update_cooldown" env:"FOW_ACCOUNT_UPDATE_COOLDOWN,overwrite"`
	ResendLimit    int           `yaml:"resend_limit"    env:"FOW_ACCOUNT_RESEND_LIMIT,overwrite"`
	ResendWindow   time.Duration `yaml:"resend_window"   env:"FOW_ACCOUNT_RESEND_WINDOW,overwrite"`
	BcryptCost     int           `yaml:"bcrypt_cost"     env:"FOW_ACCOUNT_BCRYPT_COST,overwrite"`
}

type SecurityConfig struct {
	SweepInterval      time.Duration `yaml:"sweep_interval"      env:"FOW_SECURITY_SWEEP_INTERVAL,overwrite"`
	SuspiciousWindow   time.Duration `yaml:"suspicious_window"   env:"FOW_SECURITY_SUSPICIOUS_WINDOW,overwrite"`
	SuspiciousRequests int64         `yaml:"suspicious_requests" env:"FOW_SECURITY_SUSPICIOUS_REQUESTS,overwrite"`
	BlacklistWindow    time.Duration `yaml:"blacklist_window"    env:"FOW_SECURITY_BLACKLIST_WINDOW,overwrite"`
	BlacklistRequests  int64         `yaml:"blacklist_requests"  env:"FOW_SECURITY_BLACKLIST_REQUESTS,overwrite"`
	ActivityRetention  time.Duration `yaml:"activity_retention"  env:"FOW_SECURITY_ACTIVITY_RETENTION,overwrite"`
	Bark               BarkConfig    `yaml:"bark"`
}

// BarkConfig enables push alerts when the sweep blacklists an address.
type BarkConfig struct {
	Key       string `yaml:"key"        env:"FOW_BARK_KEY,overwrite"`
	ServerURL string `yaml:"server_url" env:"FOW_BARK_SERVER_URL,overwrite"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"FOW_LOG_LEVEL,overwrite"`
	Dir   string `yaml:"dir"   env:"FOW_LOG_DIR,overwrite"`
}

// MetricsConfig controls the separate Prometheus listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"FOW_METRICS_ADDR,overwrite"`
}

// Load reads the YAML file at configPath, then applies .env and FOW_* overrides.
// A missing file is only an error when the caller asked for a non-default path.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	explicit := path != "" && path != DefaultConfigPath
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, fmt.Errorf("parse env vars: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port:        defaultPort,
		Env:         defaultEnv,
		FrontendURL: defaultFrontendURL,
		Database: DatabaseConfig{
			Driver:      defaultDBDriver,
			Host:        defaultDBHost,
			Port:        defaultDBPort,
			User:        defaultDBUser,
			Password:    defaultDBPassword,
			Name:        defaultDBName,
			AutoMigrate: true,
		},
		Redis: RedisConfig{URL: defaultRedisURL},
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Tokens: TokenConfig{TTL: 72 * time.Hour},
		Mail:   MailConfig{Port: defaultSMTPPort},
		OAuth: OAuthConfig{Google: GoogleConfig{
			Enable:      true,
			UserInfoURL: defaultGoogleURL,
		}},
		Account: AccountConfig{
			GracePeriod:    30 * 24 * time.Hour,
			UpdateCooldown: 90 * 24 * time.Hour,
			ResendLimit:    5,
			ResendWindow:   time.Hour,
			BcryptCost:     12,
		},
		Security: SecurityConfig{
			SweepInterval:      time.Minute,
			SuspiciousWindow:   2 * time.Minute,
			SuspiciousRequests: 75,
			BlacklistWindow:    3 * time.Minute,
			BlacklistRequests:  100,
			ActivityRetention:  30 * 24 * time.Hour,
		},
		Throttles: map[string]string{
			"login":               "10/minute",
			"register":            "5/hour",
			"verify_email":        "10/hour",
			"resend_verification": "5/hour",
			"password_reset":      "5/hour",
			"change_password":     "5/hour",
			"account_update":      "10/hour",
			"account_deactivate":  "3/hour",
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Addr: ":8081"},
	}
}

func (c *AppConfig) normalize() {
	c.Env = normalizeEnv(c.Env)
	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")
	c.AllowedOrigins = normalizeOrigins(c.AllowedOrigins)
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.JWT.Secret == "" && c.IsDev() {
		c.JWT.Secret = devSecret
	}
	if c.Tokens.Secret == "" {
		c.Tokens.Secret = c.JWT.Secret
	}
}

func (c *AppConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", c.Port)
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required outside development")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt ttl values must be positive")
	}
	if c.Account.ResendLimit < 1 {
		return fmt.Errorf("invalid account.resend_limit %d, expected >= 1", c.Account.ResendLimit)
	}
	if c.Security.SuspiciousRequests < 1 || c.Security.BlacklistRequests < 1 {
		return errors.New("security request thresholds must be positive")
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development"
}

// Addr returns the listen address for http.Server.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return "production"
	case "test":
		return "test"
	default:
		return defaultEnv
	}
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	seen := map[string]struct{}{}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
