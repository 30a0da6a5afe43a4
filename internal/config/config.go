package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	TrustProxyHeaders       bool

	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	DBAutoMigrate  bool
	TokenCleanup   time.Duration
	RedisURL       string
	MetricsEnabled bool

	JWTSecret     string
	JWTIssuer     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	ResetTokenSecret     string
	ResetTokenTTL        time.Duration
	ResetUniformResponse bool
	FrontendURL          string

	PasswordHasher         string
	BcryptCost             int
	PasswordMinLength      int
	PasswordMinCharClasses int

	MailDriver         string
	MailFrom           string
	MailRetryAttempts  uint64
	MailRetryBaseDelay time.Duration
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
	SMTPStartTLS       bool
	SESRegion          string

	CORSOrigins []string
	LogLevel    string
	LogFormat   string
}

var defaults = map[string]any{
	"SERVER_PORT":                "8080",
	"SERVER_READ_HEADER_TIMEOUT": 10 * time.Second,
	"SERVER_WRITE_TIMEOUT":       30 * time.Second,
	"SERVER_IDLE_TIMEOUT":        120 * time.Second,
	"REQUEST_TIMEOUT":            30 * time.Second,
	"TRUST_PROXY_HEADERS":        false,
	"DATABASE_URL":               "",
	"DB_MAX_CONNS":               10,
	"DB_MIN_CONNS":               1,
	"DB_AUTO_MIGRATE":            true,
	"TOKEN_CLEANUP_INTERVAL":     time.Hour,
	"REDIS_URL":                  "",
	"METRICS_ENABLED":            true,
	"JWT_SECRET":                 "",
	"JWT_ISSUER":                 "go-auth-service",
	"JWT_ACCESS_TTL":             15 * time.Minute,
	"JWT_REFRESH_TTL":            168 * time.Hour,
	"RESET_TOKEN_SECRET":         "",
	"RESET_TOKEN_TTL":            time.Hour,
	"RESET_UNIFORM_RESPONSE":     false,
	"FRONTEND_URL":               "http://localhost:3000",
	"PASSWORD_HASHER":            "bcrypt",
	"BCRYPT_COST":                12,
	"PASSWORD_MIN_LENGTH":        8,
	"PASSWORD_MIN_CHAR_CLASSES":  3,
	"MAIL_DRIVER":                "log",
	"MAIL_FROM":                  "no-reply@localhost",
	"MAIL_RETRY_ATTEMPTS":        3,
	"MAIL_RETRY_BASE_DELAY":      200 * time.Millisecond,
	"SMTP_HOST":                  "localhost",
	"SMTP_PORT":                  587,
	"SMTP_USERNAME":              "",
	"SMTP_PASSWORD":              "",
	"SMTP_STARTTLS":              true,
	"SES_REGION":                 "",
	"CORS_ORIGINS":               "*",
	"LOG_LEVEL":                  "info",
	"LOG_FORMAT":                 "text",
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServerPort:              strings.TrimSpace(v.GetString("SERVER_PORT")),
		ServerReadHeaderTimeout: v.GetDuration("SERVER_READ_HEADER_TIMEOUT"),
		ServerWriteTimeout:      v.GetDuration("SERVER_WRITE_TIMEOUT"),
		ServerIdleTimeout:       v.GetDuration("SERVER_IDLE_TIMEOUT"),
		RequestTimeout:          v.GetDuration("REQUEST_TIMEOUT"),
		TrustProxyHeaders:       v.GetBool("TRUST_PROXY_HEADERS"),

		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		DBMaxConns:     v.GetInt32("DB_MAX_CONNS"),
		DBMinConns:     v.GetInt32("DB_MIN_CONNS"),
		DBAutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
		TokenCleanup:   v.GetDuration("TOKEN_CLEANUP_INTERVAL"),
		RedisURL:       strings.TrimSpace(v.GetString("REDIS_URL")),
		MetricsEnabled: v.GetBool("METRICS_ENABLED"),

		JWTSecret:     strings.TrimSpace(v.GetString("JWT_SECRET")),
		JWTIssuer:     strings.TrimSpace(v.GetString("JWT_ISSUER")),
		JWTAccessTTL:  v.GetDuration("JWT_ACCESS_TTL"),
		JWTRefreshTTL: v.GetDuration("JWT_REFRESH_TTL"),

		ResetTokenSecret:     strings.TrimSpace(v.GetString("RESET_TOKEN_SECRET")),
		ResetTokenTTL:        v.GetDuration("RESET_TOKEN_TTL"),
		ResetUniformResponse: v.GetBool("RESET_UNIFORM_RESPONSE"),
		FrontendURL:          strings.TrimRight(strings.TrimSpace(v.GetString("FRONTEND_URL")), "/"),

		PasswordHasher:         strings.ToLower(strings.TrimSpace(v.GetString("PASSWORD_HASHER"))),
		BcryptCost:             v.GetInt("BCRYPT_COST"),
		PasswordMinLength:      v.GetInt("PASSWORD_MIN_LENGTH"),
		PasswordMinCharClasses: v.GetInt("PASSWORD_MIN_CHAR_CLASSES"),

		MailDriver:         strings.ToLower(strings.TrimSpace(v.GetString("MAIL_DRIVER"))),
		MailFrom:           strings.TrimSpace(v.GetString("MAIL_FROM")),
		MailRetryAttempts:  v.GetUint64("MAIL_RETRY_ATTEMPTS"),
		MailRetryBaseDelay: v.GetDuration("MAIL_RETRY_BASE_DELAY"),
		SMTPHost:           strings.TrimSpace(v.GetString("SMTP_HOST")),
		SMTPPort:           v.GetInt("SMTP_PORT"),
		SMTPUsername:       v.GetString("SMTP_USERNAME"),
		SMTPPassword:       v.GetString("SMTP_PASSWORD"),
		SMTPStartTLS:       v.GetBool("SMTP_STARTTLS"),
		SESRegion:          strings.TrimSpace(v.GetString("SES_REGION")),

		CORSOrigins: splitCSV(v.GetString("CORS_ORIGINS")),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFormat:   strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
	}

	if cfg.ResetTokenSecret == "" {
		cfg.ResetTokenSecret = cfg.JWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDatabaseURL reads only what the migrate command needs.
func LoadDatabaseURL() (string, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	url := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if url == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return url, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("RESET_TOKEN_TTL must be positive")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, and DB_MAX_CONNS positive")
	}

	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher)
	}

	if c.PasswordMinCharClasses < 0 || c.PasswordMinCharClasses > 4 {
		return fmt.Errorf("PASSWORD_MIN_CHAR_CLASSES must be between 0 and 4")
	}

	switch c.MailDriver {
	case "log", "smtp", "ses":
	default:
		return fmt.Errorf("MAIL_DRIVER must be log, smtp or ses, got %q", c.MailDriver)
	}

	if c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM cannot be empty")
	}

	if c.FrontendURL == "" {
		return fmt.Errorf("FRONTEND_URL cannot be empty")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
