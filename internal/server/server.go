package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/information-sharing-networks/esign-demo/internal/config"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/server/handlers"
	esignmiddleware "github.com/information-sharing-networks/esign-demo/internal/server/middleware"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/information-sharing-networks/esign-demo/internal/version"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

type Server struct {
	pool      *pgxpool.Pool
	readiness handlers.ReadinessChecker
	config    *config.ServerEnvironment
	logger    *slog.Logger
	router    *chi.Mux
	signing   *signing.Service

	// certificateKey signs envelope certificates; its public half is served by certificateKeys
	certificateKey  jwk.Key
	certificateKeys http.HandlerFunc
}

// NewServer wires the router. pool may be nil (tests using the in-memory store); readiness is
// then reported by the supplied checker alone.
func NewServer(
	pool *pgxpool.Pool,
	readiness handlers.ReadinessChecker,
	cfg *config.ServerEnvironment,
	logger *slog.Logger,
	signingService *signing.Service,
	certificateKey jwk.Key,
) (*Server, error) {
	if certificateKey == nil {
		return nil, fmt.Errorf("a certificate signing key is required")
	}

	jwkSet, err := crypto.PublicKeySet(certificateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK set: %w", err)
	}
	certificateKeys, err := handlers.HandleCertificateKeys(jwkSet)
	if err != nil {
		return nil, fmt.Errorf("failed to publish certificate keys: %w", err)
	}

	server := &Server{
		pool:            pool,
		readiness:       readiness,
		config:          cfg,
		logger:          logger,
		router:          chi.NewRouter(),
		signing:         signingService,
		certificateKey:  certificateKey,
		certificateKeys: certificateKeys,
	}

	server.setupMiddleware()
	server.registerRoutes()

	return server, nil
}

// Router returns the HTTP handler (used by tests to drive the server without a listener)
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logger.RequestLogging(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(esignmiddleware.SecurityHeaders(s.config.Environment))
	s.router.Use(esignmiddleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	s.router.Use(esignmiddleware.RequestSizeLimit(s.config.MaxRequestBodyBytes))
}

func (s *Server) registerRoutes() {
	svc := s.signing

	s.router.Get("/health/live", handlers.HandleHealth)
	if s.readiness != nil {
		s.router.Get("/health/ready", handlers.HandleReadiness(s.readiness))
	}
	s.router.Get("/version", handlers.HandleVersion(version.Get()))
	s.router.Get("/.well-known/jwks.json", s.certificateKeys)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/sign/{token}", func(r chi.Router) {
			r.Use(esignmiddleware.SigningLinkHeaders())

			r.Get("/", handlers.HandleOpenDocument(svc))
			r.Get("/items/{itemID}/pdf", handlers.HandleGetSigningDocument(svc))
			r.Put("/fields/{fieldID}", handlers.HandleSignField(svc))
			r.Delete("/fields/{fieldID}", handlers.HandleRemoveSignedField(svc))
			r.Post("/complete", handlers.HandleCompleteSigning(svc))
			r.Post("/reject", handlers.HandleRejectEnvelope(svc))
		})

		r.Post("/self-serve/envelopes", handlers.HandleCreateSelfServeEnvelope(svc))
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Post("/users", handlers.HandleCreateUser(svc))
		r.Get("/users/{userID}", handlers.HandleGetUser(svc))

		r.Post("/envelopes", handlers.HandleCreateEnvelope(svc))
		r.Route("/envelopes/{envelopeID}", func(r chi.Router) {
			r.Get("/", handlers.HandleGetEnvelope(svc))
			r.Delete("/", handlers.HandleDeleteEnvelope(svc))
			r.Post("/send", handlers.HandleSendEnvelope(svc))
			r.Post("/recipients", handlers.HandleAddRecipient(svc))
			r.Post("/recipients/{recipientID}/reset", handlers.HandleResetRecipient(svc))
			r.Post("/fields", handlers.HandleAddField(svc))
			r.Delete("/fields/{fieldID}", handlers.HandleDeleteField(svc))
			r.Get("/items/{itemID}/pdf", handlers.HandleGetEnvelopeDocument(svc))
			r.Get("/audit-log", handlers.HandleGetAuditLog(svc))
			r.Get("/certificate", handlers.HandleGetCertificate(svc, s.certificateKey))
		})
	})
}

func (s *Server) Start(ctx context.Context) error {
	serverAddr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("service listening",
			slog.String("environment", s.config.Environment),
			slog.String("address", serverAddr))

		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownTimeout := s.config.ServerShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = config.ServerShutdownTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	s.logger.Info("shutting down HTTP server")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("HTTP server shutdown error",
			slog.String("error", err.Error()))
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) DatabaseShutdown() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
}
