package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	MigrationsDir string   `mapstructure:"MIGRATIONS_DIR"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

	FileStoreDir string `mapstructure:"FILE_STORE_DIR"`
	ResetURL     string `mapstructure:"RESET_URL"`

	OCRLanguage string        `mapstructure:"OCR_LANGUAGE"`
	OCRTimeout  time.Duration `mapstructure:"OCR_TIMEOUT"`
	ParserMode  string        `mapstructure:"PARSER_MODE"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("JWT_ISSUER", "healthvault")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("FILE_STORE_DIR", "")
	v.SetDefault("RESET_URL", "http://localhost:3000/reset-password")
	v.SetDefault("OCR_LANGUAGE", "eng")
	v.SetDefault("OCR_TIMEOUT", "60s")
	v.SetDefault("PARSER_MODE", "lines")
	v.SetDefault("REQUEST_TIMEOUT", "120s")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"DEFAULT_TENANT", "CORS_ORIGINS", "MIGRATIONS_DIR",
		"JWT_SECRET", "JWT_ISSUER", "TOKEN_TTL",
		"FILE_STORE_DIR", "RESET_URL",
		"OCR_LANGUAGE", "OCR_TIMEOUT", "PARSER_MODE",
		"REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a real JWT secret is mandatory: there is no unauthenticated mode in
// production.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
		}
	}

	switch c.ParserMode {
	case "lines", "document":
	default:
		return fmt.Errorf("PARSER_MODE must be \"lines\" or \"document\", got %q", c.ParserMode)
	}

	if c.OCRTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive, got %v", c.OCRTimeout)
	}

	return nil
}
