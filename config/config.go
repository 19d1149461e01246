package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Mail drivers.
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config holds all configuration for the service.
type Config struct {
	Environment string

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	SQLite   SQLiteConfig
	Store    StoreConfig
	OTP      OTPConfig
	Session  SessionConfig
	Mail     MailConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Janitor  JanitorConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	KeyPrefix    string
}

// SQLiteConfig holds the single-node store configuration.
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Driver  string
	Timeout time.Duration
}

// OTPConfig holds challenge issuance and verification settings.
type OTPConfig struct {
	TTL                  time.Duration
	MaxAttempts          int
	ResendCooldown       time.Duration
	SingleActivePerEmail bool
	// Pepper keys the code hash. Must be at least 32 bytes in production.
	Pepper string
}

// SessionConfig holds session token settings.
type SessionConfig struct {
	Secret        string
	Issuer        string
	TTL           time.Duration
	CookieName    string
	TouchInterval time.Duration
}

// MailConfig holds outbound mail settings.
type MailConfig struct {
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	Timeout  time.Duration
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	AllowedOrigins   []string
	SecureCookies    bool
	CookieDomain     string
	RateLimitEnabled bool
	RateLimitRPS     int
	RateLimitBurst   int
	AuthRateRPS      int
	AuthRateBurst    int

	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the socket peer is the client.
	TrustedProxies []string
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level        string
	RevealEmails bool
}

// JanitorConfig holds expired-challenge cleanup settings.
type JanitorConfig struct {
	Enabled  bool
	Interval time.Duration
}

// source resolves a key from the environment first, then the optional file overlay.
type source struct {
	file map[string]string
}

// Load loads configuration from environment variables. When path is not empty
// the YAML file at path supplies values for keys missing from the environment.
func Load(path string) (*Config, error) {
	src := &source{file: map[string]string{}}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &src.file); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return src.load(), nil
}

func (s *source) load() *Config {
	return &Config{
		Environment: s.getEnv("ENV", "development"),
		Server: ServerConfig{
			Host:            s.getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            s.getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     s.getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    s.getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     s.getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: s.getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            s.getEnv("DB_HOST", "localhost"),
			Port:            s.getEnvInt("DB_PORT", 5432),
			User:            s.getEnv("DB_USER", "cypress"),
			Password:        s.getEnv("DB_PASSWORD", ""),
			Database:        s.getEnv("DB_NAME", "cypress_auth"),
			SSLMode:         s.getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    s.getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    s.getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: s.getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     s.getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:         s.getEnv("REDIS_HOST", "localhost"),
			Port:         s.getEnvInt("REDIS_PORT", 6379),
			Password:     s.getEnv("REDIS_PASSWORD", ""),
			DB:           s.getEnvInt("REDIS_DB", 0),
			PoolSize:     s.getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: s.getEnvInt("REDIS_MIN_IDLE_CONNS", 5),
			KeyPrefix:    s.getEnv("REDIS_KEY_PREFIX", "cypress:"),
		},
		SQLite: SQLiteConfig{
			Path:        s.getEnv("SQLITE_PATH", "cypress_auth.db"),
			BusyTimeout: s.getEnvDuration("SQLITE_BUSY_TIMEOUT", 5*time.Second),
		},
		Store: StoreConfig{
			Driver:  strings.ToLower(s.getEnv("STORE_DRIVER", DriverPostgres)),
			Timeout: s.getEnvDuration("STORE_TIMEOUT", 3*time.Second),
		},
		OTP: OTPConfig{
			TTL:                  s.getEnvDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts:          s.getEnvInt("OTP_MAX_ATTEMPTS", 5),
			ResendCooldown:       s.getEnvDuration("OTP_RESEND_COOLDOWN", 0),
			SingleActivePerEmail: s.getEnvBool("OTP_SINGLE_ACTIVE_PER_EMAIL", false),
			Pepper:               s.getEnv("OTP_PEPPER", ""),
		},
		Session: SessionConfig{
			Secret:        s.getEnv("SESSION_SECRET", ""),
			Issuer:        s.getEnv("SESSION_ISSUER", "cypressresort"),
			TTL:           s.getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			CookieName:    s.getEnv("SESSION_COOKIE_NAME", "cypress_session"),
			TouchInterval: s.getEnvDuration("SESSION_TOUCH_INTERVAL", 5*time.Minute),
		},
		Mail: MailConfig{
			Driver:   strings.ToLower(s.getEnv("MAIL_DRIVER", MailDriverLog)),
			Host:     s.getEnv("SMTP_HOST", ""),
			Port:     s.getEnvInt("SMTP_PORT", 587),
			Username: s.getEnv("SMTP_USERNAME", ""),
			Password: s.getEnv("SMTP_PASSWORD", ""),
			From:     s.getEnv("MAIL_FROM", "Cypress Resort <no-reply@cypressresort.com>"),
			Subject:  s.getEnv("MAIL_SUBJECT", "Your Cypress Resort sign-in code"),
			Timeout:  s.getEnvDuration("MAIL_TIMEOUT", 10*time.Second),
		},
		Security: SecurityConfig{
			AllowedOrigins:   s.getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			SecureCookies:    s.getEnvBool("SECURE_COOKIES", true),
			CookieDomain:     s.getEnv("COOKIE_DOMAIN", ""),
			RateLimitEnabled: s.getEnvBool("RATE_LIMIT_ENABLED", true),
			RateLimitRPS:     s.getEnvInt("RATE_LIMIT_RPS", 100),
			RateLimitBurst:   s.getEnvInt("RATE_LIMIT_BURST", 200),
			AuthRateRPS:      s.getEnvInt("AUTH_RATE_LIMIT_RPS", 10),
			AuthRateBurst:    s.getEnvInt("AUTH_RATE_LIMIT_BURST", 20),
			TrustedProxies:   s.getEnvSlice("TRUSTED_PROXIES", nil),
		},
		Logging: LoggingConfig{
			Level:        s.getEnv("LOG_LEVEL", "info"),
			RevealEmails: s.getEnvBool("LOG_REVEAL_EMAILS", false),
		},
		Janitor: JanitorConfig{
			Enabled:  s.getEnvBool("JANITOR_ENABLED", true),
			Interval: s.getEnvDuration("JANITOR_INTERVAL", 10*time.Minute),
		},
	}
}

// MinSecretLength is the shortest accepted SESSION_SECRET and OTP_PEPPER.
const MinSecretLength = 32

// EnsureDevelopmentSecrets fills an empty SESSION_SECRET or OTP_PEPPER with a
// random per-process value outside production and returns the keys it filled.
// Sessions signed with a generated secret do not survive a restart.
func (c *Config) EnsureDevelopmentSecrets() ([]string, error) {
	if c.IsProduction() {
		return nil, nil
	}

	var generated []string
	for _, target := range []struct {
		key   string
		value *string
	}{
		{"SESSION_SECRET", &c.Session.Secret},
		{"OTP_PEPPER", &c.OTP.Pepper},
	} {
		if *target.value != "" {
			continue
		}
		buf := make([]byte, MinSecretLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", target.key, err)
		}
		*target.value = hex.EncodeToString(buf)
		generated = append(generated, target.key)
	}
	return generated, nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate reports configuration that would make the service unsafe or unusable.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("STORE_DRIVER %q is not one of postgres, sqlite, memory", c.Store.Driver))
	}
	switch c.Mail.Driver {
	case MailDriverSMTP:
		if c.Mail.Host == "" {
			problems = append(problems, "SMTP_HOST is required when MAIL_DRIVER=smtp")
		}
	case MailDriverLog:
	default:
		problems = append(problems, fmt.Sprintf("MAIL_DRIVER %q is not one of smtp, log", c.Mail.Driver))
	}

	if c.OTP.TTL <= 0 {
		problems = append(problems, "OTP_TTL must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		problems = append(problems, "OTP_MAX_ATTEMPTS must be positive")
	}
	if c.OTP.ResendCooldown < 0 {
		problems = append(problems, "OTP_RESEND_COOLDOWN must not be negative")
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	if c.Session.CookieName == "" {
		problems = append(problems, "SESSION_COOKIE_NAME must not be empty")
	}
	if c.Store.Timeout <= 0 {
		problems = append(problems, "STORE_TIMEOUT must be positive")
	}
	if c.Janitor.Enabled && c.Janitor.Interval <= 0 {
		problems = append(problems, "JANITOR_INTERVAL must be positive")
	}
	if len(c.Session.Secret) < MinSecretLength {
		problems = append(problems, fmt.Sprintf("SESSION_SECRET must be at least %d bytes", MinSecretLength))
	}
	if len(c.OTP.Pepper) < MinSecretLength {
		problems = append(problems, fmt.Sprintf("OTP_PEPPER must be at least %d bytes", MinSecretLength))
	}
	for _, p := range c.Security.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				problems = append(problems, fmt.Sprintf("TRUSTED_PROXIES entry %q is not an IP or CIDR", p))
			}
		}
	}

	if c.IsProduction() {
		if c.Store.Driver == DriverMemory {
			problems = append(problems, "STORE_DRIVER=memory is not allowed in production")
		}
		if c.Mail.Driver == MailDriverLog {
			problems = append(problems, "MAIL_DRIVER=log is not allowed in production")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// Helper functions for environment variable parsing

func (s *source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s *source) getEnv(key, defaultValue string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (s *source) getEnvInt(key string, defaultValue int) int {
	if value := s.lookup(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (s *source) getEnvBool(key string, defaultValue bool) bool {
	if value := s.lookup(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (s *source) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := s.lookup(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func (s *source) getEnvSlice(key string, defaultValue []string) []string {
	if value := s.lookup(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
