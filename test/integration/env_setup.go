//go:build integration

package integration

// Test environment setup and server lifecycle management.
//
// The integration tests start the esign-server HTTP server with a temporary database and run tests against it.
// Each test creates an empty temporary database and applies all the migrations so the schema reflects the latest code.
// The database is dropped after each test.
//
// A fresh certificate signing key is generated for each server, and a service account user is created
// so that the self-serve endpoint is enabled.
//
// By default the server logs are not included in the test output, you can enable them with:
//
//	ENABLE_SERVER_LOGS=true go test -tags=integration -v ./test/integration
//

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/config"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/information-sharing-networks/esign-demo/internal/database"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/server"
	"github.com/information-sharing-networks/esign-demo/internal/services"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/information-sharing-networks/esign-demo/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// testEnv provides access to test db and server for integration tests
type testEnv struct {
	baseURL          string
	cfg              *config.ServerEnvironment
	pool             *pgxpool.Pool
	queries          *database.Queries
	publicKey        jwk.Key
	serviceAccountID uuid.UUID
	shutdown         func()
}

// startInProcessServer starts esign-server in-process for testing - returns the base URL for the API and a shutdown function
func startInProcessServer(t *testing.T) *testEnv {
	t.Helper()

	testEnv := &testEnv{}

	t.Log("Starting in-process server...")

	// server config
	var (
		ctx          = context.Background()
		host         = "localhost"
		port         = findFreePort(t)
		rateLimitRPS = 0
		environment  = "test"
		logLevel     = logger.ParseLogLevel("none")
		keysDir      = t.TempDir()
	)

	enableServerLogs := false
	if os.Getenv("ENABLE_SERVER_LOGS") == "true" {
		enableServerLogs = true
		logLevel = logger.ParseLogLevel("debug")
	}

	// certificate signing key
	privateKey, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}
	keyID, err := crypto.GenerateKeyIDFromEd25519Key(privateKey.Public().(ed25519.PublicKey))
	if err != nil {
		t.Fatalf("failed to generate key id: %v", err)
	}
	if err := crypto.SaveEd25519PrivateKeyToJWKFile(privateKey, keyID, keysDir, "certificate.private.jwk"); err != nil {
		t.Fatalf("failed to save signing key: %v", err)
	}
	testEnv.publicKey, err = crypto.Ed25519PublicKeyToJWK(privateKey.Public().(ed25519.PublicKey), keyID)
	if err != nil {
		t.Fatalf("failed to create public JWK: %v", err)
	}

	// configure db
	testEnv.pool = setupTestDatabase(t)
	testEnv.queries = database.New(testEnv.pool)
	testDatabaseURL := testEnv.pool.Config().ConnString()

	// the service account owns self-serve envelopes
	testEnv.serviceAccountID = uuid.New()
	if err := testEnv.queries.CreateUser(ctx, database.CreateUserParams{
		ID:        testEnv.serviceAccountID,
		Email:     "service@esign.example.com",
		Name:      "Self-serve",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("failed to create service account: %v", err)
	}

	// Set environment variables before calling NewServerConfig
	testEnvVars := map[string]string{
		"HOST":           host,
		"RATE_LIMIT_RPS": fmt.Sprintf("%d", rateLimitRPS),

		"DATABASE_URL": testDatabaseURL,
		"ENVIRONMENT":  environment,
		"LOG_LEVEL":    logLevel.String(),
		"PORT":         fmt.Sprintf("%d", port),

		"CERTIFICATE_SIGNING_KEY_PATH": keysDir + "/certificate.private.jwk",
		"SERVICE_ACCOUNT_USER_ID":      testEnv.serviceAccountID.String(),
		"PUBLIC_BASE_URL":              fmt.Sprintf("http://localhost:%d", port),
		"DEFAULT_DATE_FORMAT":          "yyyy-MM-dd",
		"FILE_STORE":                   "bytes64",
		"MAILER":                       "log",
	}

	// Save original env vars and set test values
	originalEnvVars := make(map[string]string)
	for key, value := range testEnvVars {
		originalEnvVars[key] = os.Getenv(key)
		os.Setenv(key, value)
	}

	// Restore original environment variables when test completes
	t.Cleanup(func() {
		for key, original := range originalEnvVars {
			if original != "" {
				os.Setenv(key, original)
			} else {
				os.Unsetenv(key)
			}
		}
	})

	cfg, err := config.NewServerConfig()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel = logger.ParseLogLevel("none")
	if enableServerLogs {
		logLevel = logger.ParseLogLevel("debug")
	}
	appLogger := logger.InitLogger(logLevel, "test")

	certificateKey, err := crypto.ReadSigningKeyFromJWKFile(cfg.CertificateSigningKeyPath)
	if err != nil {
		t.Fatalf("Failed to read signing key: %v", err)
	}

	svcs, err := services.NewServices(cfg, appLogger)
	if err != nil {
		t.Fatalf("Failed to create services: %v", err)
	}

	signingService := signing.NewService(
		store.NewPostgres(testEnv.pool, testEnv.queries),
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

	serverInstance, err := server.NewServer(
		testEnv.pool,
		testEnv.queries,
		cfg,
		appLogger,
		signingService,
		certificateKey,
	)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	// Create a cancellable context for server shutdown
	serverCtx, serverCancel := context.WithCancel(ctx)

	// Start server
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := serverInstance.Start(serverCtx); err != nil {
			serverDone <- err
		}
	}()

	// Create shutdown function to be called by the test
	testEnv.shutdown = func() {
		t.Log("Stopping server...")

		// Cancel the server context to trigger graceful shutdown
		serverCancel()

		// Wait for server to shut down gracefully with timeout
		select {
		case err := <-serverDone:
			if err != nil {
				t.Logf("❌ Server shutdown with error: %v", err)
			} else {
				t.Log("✅ Server shut down gracefully")
			}
		case <-time.After(5 * time.Second):
			t.Log("⚠️ Server shutdown timeout")
		}

		// Ensure database connections are closed
		serverInstance.DatabaseShutdown()
	}

	testEnv.baseURL = fmt.Sprintf("http://localhost:%d", port)
	t.Logf("Starting in-process server at %s", testEnv.baseURL)

	testEnv.cfg = cfg

	// Wait for server to be ready
	if !waitForServer(t, testEnv.baseURL+"/health/ready", 30*time.Second) {
		t.Fatal("Server failed to start within timeout")
	}

	t.Log("✅ Server started")
	return testEnv
}

func findFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) bool {
	t.Helper()

	client := &http.Client{Timeout: 1 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return true
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// Test database configuration

type databaseConfig struct {
	userAndPassword string
	dbname          string
	host            string
	port            int
}

func (d *databaseConfig) connectionURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=disable",
		d.userAndPassword, d.host, d.port, d.dbname)
}

func (d *databaseConfig) WithDatabase(dbname string) *databaseConfig {
	return &databaseConfig{
		userAndPassword: d.userAndPassword,
		host:            d.host,
		port:            d.port,
		dbname:          dbname,
	}
}

func localDatabaseConfig() *databaseConfig {
	return &databaseConfig{
		userAndPassword: "esign-dev",
		dbname:          "tmp_esign_integration_test",
		host:            "localhost",
		port:            15433,
	}
}

func ciDatabaseConfig() *databaseConfig {
	return &databaseConfig{
		userAndPassword: "postgres:postgres",
		dbname:          "tmp_esign_integration_test",
		host:            "localhost",
		port:            5432,
	}
}

// setupTestDatabase creates an empty test db, applies migrations and returns a connection pool
// the function auto-detetcs if it is running in CI (github actions) and uses the appropriate database config
func setupTestDatabase(t *testing.T) *pgxpool.Pool {

	ctx := context.Background()
	config := databaseConfig{}

	if os.Getenv("GITHUB_ACTIONS") == "true" {
		config = *ciDatabaseConfig()
	} else {
		config = *localDatabaseConfig()
	}

	postgresConfig := config.WithDatabase("postgres")

	// connect to the postgres database to create the test database
	postgresConnectionURL := postgresConfig.connectionURL()

	// Check PostgreSQL server connectivity
	// Note: We manually manage this pool's lifecycle (not using setupDatabaseConn)
	// because we need it to stay open until after we drop the test database in cleanup
	postgresPoolConfig, err := pgxpool.ParseConfig(postgresConnectionURL)
	if err != nil {
		t.Fatalf("Failed to parse postgres database URL: %v", err)
	}

	postgresPool, err := pgxpool.NewWithConfig(ctx, postgresPoolConfig)
	if err != nil {
		t.Fatalf("Unable to create postgres connection pool: %v", err)
	}

	if err := postgresPool.Ping(ctx); err != nil {
		t.Fatalf("Can't ping PostgreSQL server %s", postgresConnectionURL)
	}

	_, err = postgresPool.Exec(ctx, "DROP DATABASE IF EXISTS "+config.dbname)
	if err != nil {
		t.Fatalf("DROP DATABASE IF EXISTS Failed : %v", err)
	}

	_, err = postgresPool.Exec(ctx, "CREATE DATABASE "+config.dbname)
	if err != nil {
		t.Fatalf("CREATE DATABASE Failed : %v", err)
	}

	// Close the postgres pool
	t.Cleanup(func() {
		postgresPool.Close()
	})

	// drop the test database when the test is complete
	t.Cleanup(func() {
		_, err := postgresPool.Exec(ctx, "DROP DATABASE "+config.dbname)
		if err != nil {
			t.Fatalf("Failed to drop test database: %v", err)
		}
	})

	// connect to the new database
	testDatabaseURL := config.connectionURL()
	testDatabasePool := setupDatabaseConn(t, testDatabaseURL)

	// Apply database migrations
	if err := database.Migrate(ctx, testDatabasePool); err != nil {
		t.Fatalf("Failed to apply database migrations: %v", err)
	}

	t.Logf("Database ready: %s", config.dbname)

	return testDatabasePool
}

func setupDatabaseConn(t *testing.T, databaseURL string) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		t.Fatalf("Failed to parse database URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("Unable to create connection pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}
