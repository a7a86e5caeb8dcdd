package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage and blob drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBadger   = "badger"

	BlobMemory = "memory"
	BlobGCS    = "gcs"
)

// Auth modes.
const (
	AuthDevelopment = "development"
	AuthJWT         = "jwt"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"ENV"`
	PublicURL      string `mapstructure:"PUBLIC_URL"`
	AuthMode       string `mapstructure:"AUTH_MODE"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	BadgerPath  string `mapstructure:"BADGER_PATH"`

	BlobDriver         string        `mapstructure:"BLOB_DRIVER"`
	GCSBucket          string        `mapstructure:"GCS_BUCKET"`
	GCSCredentialsFile string        `mapstructure:"GCS_CREDENTIALS_FILE"`
	BlobURLSecret      string        `mapstructure:"BLOB_URL_SECRET"`
	BlobURLTTL         time.Duration `mapstructure:"BLOB_URL_TTL"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	RiskMatrixFile        string `mapstructure:"RISK_MATRIX_FILE"`
	TrainingMaxReopens    int    `mapstructure:"TRAINING_MAX_REOPENS"`
	ExamExpiryWarningDays int    `mapstructure:"EXAM_EXPIRY_WARNING_DAYS"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "PUBLIC_URL", "AUTH_MODE", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"STORE_DRIVER", "DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS", "BADGER_PATH",
	"BLOB_DRIVER", "GCS_BUCKET", "GCS_CREDENTIALS_FILE", "BLOB_URL_SECRET", "BLOB_URL_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"RISK_MATRIX_FILE", "TRAINING_MAX_REOPENS", "EXAM_EXPIRY_WARNING_DAYS",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

// Load reads the environment and an optional .env file. It does not validate;
// call Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("DB_SCHEMA", "sst")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("BADGER_PATH", "./data/badger")
	v.SetDefault("BLOB_DRIVER", BlobMemory)
	v.SetDefault("BLOB_URL_TTL", "5m")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("TRAINING_MAX_REOPENS", 1)
	v.SetDefault("EXAM_EXPIRY_WARNING_DAYS", 30)

	// Bind explicitly so Unmarshal sees variables without defaults.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:" + cfg.Port
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development servers
// trust the X-Dev-* headers and everything else verifies JWTs.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthDevelopment
	}
	return AuthJWT
}

// ExamExpiryWarning is EXAM_EXPIRY_WARNING_DAYS as a duration.
func (c *Config) ExamExpiryWarning() time.Duration {
	return time.Duration(c.ExamExpiryWarningDays) * 24 * time.Hour
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE %q is not allowed in production", mode)
		}
	case AuthJWT:
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when AUTH_MODE is %q", mode)
		}
		if c.IsProduction() && c.AuthSigningKey != "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is for development and tests only")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthDevelopment, AuthJWT, mode)
	}

	switch c.StoreDriver {
	case StoreMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE_DRIVER %q is not allowed in production", c.StoreDriver)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StorePostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case StoreBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required when STORE_DRIVER is %q", StoreBadger)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be memory, postgres or badger, got %q", c.StoreDriver)
	}

	switch c.BlobDriver {
	case BlobMemory:
		if c.IsProduction() {
			return fmt.Errorf("BLOB_DRIVER %q is not allowed in production", c.BlobDriver)
		}
		if !c.IsDev() && len(c.BlobURLSecret) < 32 {
			return fmt.Errorf("BLOB_URL_SECRET must be at least 32 bytes")
		}
	case BlobGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when BLOB_DRIVER is %q", BlobGCS)
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be memory or gcs, got %q", c.BlobDriver)
	}
	if c.BlobURLTTL <= 0 || c.BlobURLTTL > time.Hour {
		return fmt.Errorf("BLOB_URL_TTL must be within (0, 1h], got %s", c.BlobURLTTL)
	}

	if c.TrainingMaxReopens < 0 {
		return fmt.Errorf("TRAINING_MAX_REOPENS must not be negative")
	}
	if c.ExamExpiryWarningDays < 1 {
		return fmt.Errorf("EXAM_EXPIRY_WARNING_DAYS must be at least 1")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
