package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

var (
	waitForOutcome bool
	waitTimeout    time.Duration
	pollInterval   time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <envelope-id>",
	Short: "Show the status of an envelope and its recipients",
	Long: `Show the status of an envelope and its recipients.

With --wait the command polls until the envelope is completed or rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseEnvelopeID(args[0])
		if err != nil {
			return err
		}

		var env api.EnvelopeResponse
		if waitForOutcome {
			ctx, cancel := context.WithTimeout(cmd.Context(), waitTimeout)
			defer cancel()
			env, err = WaitForOutcome(ctx, client, id, pollInterval)
		} else {
			env, err = client.GetEnvelope(cmd.Context(), id)
		}
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), env)
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&waitForOutcome, "wait", "w", false, "Wait until the envelope is completed or rejected")
	statusCmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Minute, "How long to wait with --wait")
	statusCmd.Flags().DurationVar(&pollInterval, "interval", 2*time.Second, "Initial poll interval with --wait")
}

var errStillPending = errors.New("envelope is still pending")

// WaitForOutcome polls the envelope until it is completed or rejected, backing off up to a
// minute between polls. Transient server errors are retried.
func WaitForOutcome(ctx context.Context, c *Client, envelopeID uuid.UUID, interval time.Duration) (api.EnvelopeResponse, error) {
	backoff := retry.WithCappedDuration(time.Minute, retry.NewExponential(interval))

	var env api.EnvelopeResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		env, err = c.GetEnvelope(ctx, envelopeID)
		if err != nil {
			if isRetryable(err) {
				appLogger.Warn("status poll failed", slog.String("error", err.Error()))
				return retry.RetryableError(err)
			}
			return err
		}
		switch env.Envelope.Status {
		case signing.EnvelopeStatusCompleted, signing.EnvelopeStatusRejected:
			return nil
		case signing.EnvelopeStatusDraft:
			return fmt.Errorf("envelope %s has not been sent", envelopeID)
		}
		if env.Envelope.Deleted() {
			return fmt.Errorf("envelope %s was deleted", envelopeID)
		}
		appLogger.Debug("waiting for envelope", slog.String("status", string(env.Envelope.Status)))
		return retry.RetryableError(errStillPending)
	})
	if err != nil {
		return env, err
	}
	return env, nil
}

func printStatus(w io.Writer, env api.EnvelopeResponse) error {
	renderHeading(w, "envelope", env.Envelope.ID.String())
	renderHeading(w, "title", env.Envelope.Title)
	renderHeading(w, "status", string(env.Envelope.Status))
	if env.Envelope.CompletedAt != nil {
		renderHeading(w, "completed", env.Envelope.CompletedAt.Format(time.RFC3339))
	}
	if env.Envelope.RejectedAt != nil {
		renderHeading(w, "rejected", env.Envelope.RejectedAt.Format(time.RFC3339))
		renderHeading(w, "reason", env.Envelope.RejectionReason)
	}

	rows := make([][]string, 0, len(env.Recipients))
	for _, r := range env.Recipients {
		signedAt := ""
		if r.SignedAt != nil {
			signedAt = r.SignedAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{r.Email, string(r.Role), string(r.SendStatus), string(r.ReadStatus), string(r.SigningStatus), signedAt})
	}
	return renderTable(w, []string{"RECIPIENT", "ROLE", "SENT", "READ", "SIGNING", "SIGNED AT"}, rows, 2, 3, 4)
}
