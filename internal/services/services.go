package services

// services provides the external collaborators of the signing service: document storage and mail delivery.

import (
	"fmt"
	"log/slog"

	"github.com/information-sharing-networks/esign-demo/internal/config"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// Services aggregates all external service integrations used by the esign server.
type Services struct {
	FileStore signing.FileStore
	Mailer    signing.Mailer
}

// NewServices creates service implementations based on configuration.
// This is the single entry point for initializing all external service integrations.
func NewServices(cfg *config.ServerEnvironment, logger *slog.Logger) (*Services, error) {
	s := &Services{}

	switch cfg.FileStore {
	case "bytes64":
		s.FileStore = NewBytes64Store()
	case "local":
		fs, err := NewLocalFileStore(cfg.FileStoreDir)
		if err != nil {
			return nil, err
		}
		s.FileStore = fs
	default:
		return nil, fmt.Errorf("unsupported file store: %s", cfg.FileStore)
	}

	switch cfg.Mailer {
	case "log":
		s.Mailer = NewLogMailer(logger)
	case "smtp":
		s.Mailer = NewSMTPMailer(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	default:
		return nil, fmt.Errorf("unsupported mailer: %s", cfg.Mailer)
	}

	return s, nil
}
