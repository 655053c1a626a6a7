// Package cli implements esign-cli, a client for the esign-server admin API.
package cli

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/version"
	"github.com/spf13/cobra"
)

// ClientEnvironment holds the CLI settings read from the environment. Flags override them.
type ClientEnvironment struct {
	ServerURL      string        `env:"ESIGN_SERVER_URL,default=http://localhost:8080"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	RequestTimeout time.Duration `env:"ESIGN_REQUEST_TIMEOUT,default=30s"`
}

var (
	clientCfg ClientEnvironment
	appLogger = slog.Default()
	client    *Client

	serverURL string
)

var rootCmd = &cobra.Command{
	Use:               "esign-cli",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "esign-server admin client",
	Long:              `esign-cli creates envelopes from manifests, reports their status and verifies completion certificates`,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := env.UnmarshalFromEnviron(&clientCfg); err != nil {
			log.Printf("failed to load configuration: %v", err.Error())
			return err
		}
		if serverURL == "" {
			serverURL = clientCfg.ServerURL
		}

		appLogger = logger.InitLogger(logger.ParseLogLevel(clientCfg.LogLevel), "dev")

		var err error
		client, err = NewClient(serverURL, clientCfg.RequestTimeout)
		return err
	},
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "esign-server base URL (default $ESIGN_SERVER_URL)")

	rootCmd.AddCommand(envelopeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditLogCmd)
	rootCmd.AddCommand(certificateCmd)
}
