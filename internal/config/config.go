package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
)

// fixed timeouts
const (
	ServerShutdownTimeout = 10 * time.Second
	// MinSigningTxTimeout is the lower bound for SIGNING_TX_TIMEOUT
	MinSigningTxTimeout = 30 * time.Second
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=60s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBodyBytes   int64         `env:"MAX_REQUEST_BODY_BYTES,default=26214400"`

	// database settings
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`
	DatabaseURL         string        `env:"DATABASE_URL,required=true"`

	// signing settings
	SigningTxTimeout       time.Duration `env:"SIGNING_TX_TIMEOUT,default=30s"`
	DefaultDateFormat      string        `env:"DEFAULT_DATE_FORMAT,default=yyyy-MM-dd hh:mm a"`
	DefaultTimezone        string        `env:"DEFAULT_TIMEZONE,default=UTC"`
	MaxSignatureImageBytes int           `env:"MAX_SIGNATURE_IMAGE_BYTES,default=2097152"`
	PublicBaseURL          string        `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`

	// the service account that owns self-serve envelopes. Self-serve is disabled when unset.
	ServiceAccountUserID string `env:"SERVICE_ACCOUNT_USER_ID"`

	// document storage: bytes64 stores documents in the database, local stores them under FILE_STORE_DIR
	FileStore    string `env:"FILE_STORE,default=bytes64"`
	FileStoreDir string `env:"FILE_STORE_DIR,default=./data/documents"`

	// mail: log writes mail to the application log, smtp delivers it
	Mailer       string `env:"MAILER,default=log"`
	MailFrom     string `env:"MAIL_FROM,default=no-reply@esign.example.com"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	// the Ed25519 private key (JWK) used to sign audit certificates
	CertificateSigningKeyPath string `env:"CERTIFICATE_SIGNING_KEY_PATH,required=true"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validFileStores = map[string]bool{
	"bytes64": true,
	"local":   true,
}

var validMailers = map[string]bool{
	"log":  true,
	"smtp": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil

}

// MigrateEnvironment holds the settings needed to apply database migrations.
type MigrateEnvironment struct {
	DatabaseURL         string        `env:"DATABASE_URL,required=true"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`
	LogLevel            string        `env:"LOG_LEVEL,default=info"`
	Environment         string        `env:"ENVIRONMENT,default=dev"`
}

// NewMigrateConfig loads the migration settings from the environment.
func NewMigrateConfig() (*MigrateEnvironment, error) {
	var cfg MigrateEnvironment
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}
	if !validEnvs[cfg.Environment] {
		return nil, fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	return &cfg, nil
}

// ServiceAccountID returns the parsed SERVICE_ACCOUNT_USER_ID, or uuid.Nil when it is not set.
func (cfg *ServerEnvironment) ServiceAccountID() uuid.UUID {
	id, err := uuid.Parse(cfg.ServiceAccountUserID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if cfg.SigningTxTimeout < MinSigningTxTimeout {
		return fmt.Errorf("SIGNING_TX_TIMEOUT must be at least %s, got %s", MinSigningTxTimeout, cfg.SigningTxTimeout)
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}
	if cfg.MaxSignatureImageBytes < 0 {
		return fmt.Errorf("MAX_SIGNATURE_IMAGE_BYTES must be 0 or greater")
	}
	if cfg.MaxRequestBodyBytes < 1 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be at least 1")
	}

	if cfg.ServiceAccountUserID != "" {
		if _, err := uuid.Parse(cfg.ServiceAccountUserID); err != nil {
			return fmt.Errorf("SERVICE_ACCOUNT_USER_ID must be a UUID: %w", err)
		}
	}

	if !validFileStores[cfg.FileStore] {
		return fmt.Errorf("invalid FILE_STORE: %s (use bytes64 or local)", cfg.FileStore)
	}
	if cfg.FileStore == "local" && cfg.FileStoreDir == "" {
		return fmt.Errorf("FILE_STORE_DIR is required when FILE_STORE=local")
	}

	if !validMailers[cfg.Mailer] {
		return fmt.Errorf("invalid MAILER: %s (use log or smtp)", cfg.Mailer)
	}
	if cfg.Mailer == "smtp" && cfg.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when MAILER=smtp")
	}

	return nil
}
