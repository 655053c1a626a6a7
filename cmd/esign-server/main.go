package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/information-sharing-networks/esign-demo/internal/config"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/information-sharing-networks/esign-demo/internal/database"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/server"
	"github.com/information-sharing-networks/esign-demo/internal/services"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/information-sharing-networks/esign-demo/internal/store"
	"github.com/information-sharing-networks/esign-demo/internal/version"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

//	@title			esign-server
//	@description	esign-server runs the envelope signing workflow: recipients open their signing link,
//	@description	fill in and sign their fields, and the service stamps the values into the PDF.
//	@description
//	@description	## Common Error Responses
//	@description	All endpoints may return:
//	@description	- `413` Request body exceeds size limit
//	@description	- `429` Rate limit exceeded
//	@description	- `500` Internal server error
//	@description
//	@description	## Request Limits
//	@description	- **Rate limiting**: requests per second (RATE_LIMIT_RPS) - default 100 rps (set to 0 to disable)
//	@description	- **Request size limits**: MAX_REQUEST_BODY_BYTES - default 25MB
//	@description
//	@description	## Authentication & Authorization
//	@description	Recipient endpoints are authorized by the secret token in the signing link.
//	@description	The admin endpoints are unprotected and for use in development and testing only.
//	@license.name	MIT

//	@servers.url			http://localhost:8080
//	@servers.description	Development server

//	@accept		json
//	@produce	json

//	@tag.name			Signing
//	@tag.description	Recipient signing endpoints, addressed by signing token

//	@tag.name			SelfServe
//	@tag.description	Self-serve envelope creation

//	@tag.name			Common
//	@tag.description	Server API endpoints (jwks, health, readiness, version)

//	@tag.name			Admin
//	@tag.description	Envelope authoring and exports. Unprotected, development and testing only.

func main() {
	var migrateOnStart bool

	cmd := &cobra.Command{
		Use:   "esign-server",
		Short: "Envelope signing server",
		Long:  `esign-server serves the recipient signing API and the admin API used to author envelopes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(migrateOnStart)
		},
	}
	cmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply database migrations before starting")

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	})

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newPool(ctx context.Context, cfg *config.ServerEnvironment) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.DBMaxConnections
	poolConfig.MinConns = cfg.DBMinConnections
	poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database via pool: %w", err)
	}
	return pool, nil
}

func runMigrate() error {
	cfg, err := config.NewMigrateConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}
	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DatabasePingTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		appLogger.Error("Unable to create connection pool", slog.String("error", err.Error()))
		return err
	}
	defer pool.Close()

	if err := database.Migrate(context.Background(), pool); err != nil {
		appLogger.Error("Migration failed", slog.String("error", err.Error()))
		return err
	}

	schemaVersion, err := database.MigrationVersion(context.Background(), pool)
	if err != nil {
		appLogger.Warn("could not read schema version", slog.String("error", err.Error()))
	}
	appLogger.Info("migrations applied", slog.Int64("version", schemaVersion))
	return nil
}

func run(migrateOnStart bool) error {
	cfg, err := config.NewServerConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("FILE_STORE", cfg.FileStore),
		slog.String("MAILER", cfg.Mailer),
		slog.String("PUBLIC_BASE_URL", cfg.PublicBaseURL),
		slog.String("DEFAULT_TIMEZONE", cfg.DefaultTimezone),
		slog.Duration("SIGNING_TX_TIMEOUT", cfg.SigningTxTimeout),
		slog.Bool("SELF_SERVE_ENABLED", cfg.ServiceAccountUserID != ""),
	)

	certificateKey, err := crypto.ReadSigningKeyFromJWKFile(cfg.CertificateSigningKeyPath)
	if err != nil {
		appLogger.Error("Failed to load certificate signing key", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), cfg.DatabasePingTimeout)
	defer dbCancel()

	pool, err := newPool(dbCtx, cfg)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("connected to PostgreSQL")

	if migrateOnStart {
		if err := database.Migrate(context.Background(), pool); err != nil {
			appLogger.Error("Migration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("migrations applied")
	}

	// get the sqlc generated database queries
	queries := database.New(pool)

	svcs, err := services.NewServices(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialise services", slog.String("error", err.Error()))
		os.Exit(1)
	}

	signingService := signing.NewService(
		store.NewPostgres(pool, queries),
		svcs.FileStore,
		svcs.Mailer,
		signing.Config{
			DefaultDateFormat:      cfg.DefaultDateFormat,
			DefaultTimezone:        cfg.DefaultTimezone,
			MaxSignatureImageBytes: cfg.MaxSignatureImageBytes,
			TxTimeout:              cfg.SigningTxTimeout,
			ServiceAccountUserID:   cfg.ServiceAccountID(),
			MailFrom:               cfg.MailFrom,
			PublicBaseURL:          cfg.PublicBaseURL,
		},
	)

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(
		pool,
		queries,
		cfg,
		appLogger,
		signingService,
		certificateKey,
	)
	if err != nil {
		appLogger.Error("Failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer srv.DatabaseShutdown()

	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}
