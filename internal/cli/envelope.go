package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/spf13/cobra"
)

var envelopeCmd = &cobra.Command{
	Use:   "envelope",
	Short: "Create and manage envelopes",
}

var (
	manifestPath string
	sendOnCreate bool
	outputPath   string
)

var envelopeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an envelope from a manifest",
	Long: `Create an envelope, its recipients and their fields from a YAML manifest.

Example:
  esign-cli envelope create -f contract.yaml --send`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		env, err := CreateFromManifest(cmd.Context(), client, m, sendOnCreate)
		if err != nil {
			return err
		}
		appLogger.Info("envelope created",
			slog.String("envelope_id", env.Envelope.ID.String()),
			slog.String("status", string(env.Envelope.Status)),
		)
		return printEnvelope(cmd.OutOrStdout(), env)
	},
}

var envelopeSendCmd = &cobra.Command{
	Use:   "send <envelope-id>",
	Short: "Send a draft envelope to its recipients",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseEnvelopeID(args[0])
		if err != nil {
			return err
		}
		env, err := client.SendEnvelope(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printEnvelope(cmd.OutOrStdout(), env)
	},
}

var envelopeDeleteCmd = &cobra.Command{
	Use:   "delete <envelope-id>",
	Short: "Delete an envelope and revoke its signing links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseEnvelopeID(args[0])
		if err != nil {
			return err
		}
		if err := client.DeleteEnvelope(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "envelope %s deleted\n", id)
		return nil
	},
}

var envelopeDownloadCmd = &cobra.Command{
	Use:   "download <envelope-id> <item-id>",
	Short: "Download the current PDF of an envelope document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		envelopeID, err := parseEnvelopeID(args[0])
		if err != nil {
			return err
		}
		itemID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid item id %q: %w", args[1], err)
		}
		pdf, err := client.DownloadDocument(cmd.Context(), envelopeID, itemID)
		if err != nil {
			return err
		}
		path := outputPath
		if path == "" {
			path = itemID.String() + ".pdf"
		}
		if err := os.WriteFile(path, pdf, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(pdf))
		return nil
	},
}

func init() {
	envelopeCreateCmd.Flags().StringVarP(&manifestPath, "file", "f", "", "Envelope manifest (YAML) [required]")
	envelopeCreateCmd.Flags().BoolVar(&sendOnCreate, "send", false, "Send the envelope once it is created")
	envelopeCreateCmd.MarkFlagRequired("file")

	envelopeDownloadCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default <item-id>.pdf)")

	envelopeCmd.AddCommand(envelopeCreateCmd)
	envelopeCmd.AddCommand(envelopeSendCmd)
	envelopeCmd.AddCommand(envelopeDeleteCmd)
	envelopeCmd.AddCommand(envelopeDownloadCmd)
}

func parseEnvelopeID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid envelope id %q: %w", s, err)
	}
	return id, nil
}

// CreateFromManifest creates the envelope described by m and, when send is set, sends it.
// The envelope is left in place as a draft if a later step fails.
func CreateFromManifest(ctx context.Context, c *Client, m *Manifest, send bool) (api.EnvelopeResponse, error) {
	ownerID, err := manifestOwner(ctx, c, m)
	if err != nil {
		return api.EnvelopeResponse{}, err
	}

	req := api.CreateEnvelopeRequest{
		OwnerUserID:  ownerID,
		Title:        m.Title,
		SigningOrder: m.SigningOrder,
		DateFormat:   m.DateFormat,
		Timezone:     m.Timezone,
	}
	for i, d := range m.Documents {
		data, err := m.readDocument(i)
		if err != nil {
			return api.EnvelopeResponse{}, err
		}
		req.Documents = append(req.Documents, api.DocumentUploadRequest{Title: d.Title, Data: data})
	}

	env, err := c.CreateEnvelope(ctx, req)
	if err != nil {
		return api.EnvelopeResponse{}, fmt.Errorf("failed to create envelope: %w", err)
	}
	envelopeID := env.Envelope.ID

	itemIDs, err := itemsByDocument(m, env)
	if err != nil {
		return env, err
	}

	for i, r := range m.Recipients {
		recipient, err := c.AddRecipient(ctx, envelopeID, api.AddRecipientRequest{
			Email:        r.Email,
			Name:         r.Name,
			Role:         r.Role,
			SigningOrder: r.SigningOrder,
		})
		if err != nil {
			return env, fmt.Errorf("envelope %s: failed to add recipient %d (%s): %w", envelopeID, i, r.Email, err)
		}

		for j, f := range r.Fields {
			meta, err := f.FieldMeta()
			if err != nil {
				return env, err
			}
			_, err = c.AddField(ctx, envelopeID, api.AddFieldRequest{
				EnvelopeItemID: itemIDs[m.documentIndex(f.Document)],
				RecipientID:    recipient.ID,
				Type:           f.Type,
				Page:           f.Page,
				PositionX:      f.X,
				PositionY:      f.Y,
				Width:          f.Width,
				Height:         f.Height,
				FieldMeta:      meta,
			})
			if err != nil {
				return env, fmt.Errorf("envelope %s: failed to add field %d for %s: %w", envelopeID, j, r.Email, err)
			}
		}
	}

	if send {
		env, err = c.SendEnvelope(ctx, envelopeID)
		if err != nil {
			return env, fmt.Errorf("envelope %s: failed to send: %w", envelopeID, err)
		}
		return env, nil
	}
	return c.GetEnvelope(ctx, envelopeID)
}

func manifestOwner(ctx context.Context, c *Client, m *Manifest) (uuid.UUID, error) {
	if m.OwnerUserID != "" {
		return uuid.Parse(m.OwnerUserID)
	}
	user, err := c.CreateUser(ctx, api.CreateUserRequest{Email: m.Owner.Email, Name: m.Owner.Name})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create owner %s: %w", m.Owner.Email, err)
	}
	return user.ID, nil
}

// itemsByDocument returns the envelope item id of each manifest document, in manifest order.
func itemsByDocument(m *Manifest, env api.EnvelopeResponse) ([]uuid.UUID, error) {
	if len(env.Items) != len(m.Documents) {
		return nil, fmt.Errorf("envelope %s: expected %d documents, server returned %d", env.Envelope.ID, len(m.Documents), len(env.Items))
	}
	ids := make([]uuid.UUID, len(m.Documents))
	for i, d := range m.Documents {
		for _, item := range env.Items {
			if item.Title == d.Title {
				ids[i] = item.ID
				break
			}
		}
		if ids[i] == uuid.Nil {
			return nil, fmt.Errorf("envelope %s: document %q not found", env.Envelope.ID, d.Title)
		}
	}
	return ids, nil
}

func printEnvelope(w io.Writer, env api.EnvelopeResponse) error {
	renderHeading(w, "envelope", env.Envelope.ID.String())
	renderHeading(w, "title", env.Envelope.Title)
	renderHeading(w, "status", string(env.Envelope.Status))

	documents := make([][]string, 0, len(env.Items))
	for _, item := range env.Items {
		documents = append(documents, []string{item.ID.String(), item.Title})
	}
	if err := renderTable(w, []string{"DOCUMENT", "TITLE"}, documents); err != nil {
		return err
	}

	recipients := make([][]string, 0, len(env.Recipients))
	for _, r := range env.Recipients {
		recipients = append(recipients, []string{r.Email, string(r.Role), string(r.SigningStatus), r.SigningURL})
	}
	return renderTable(w, []string{"RECIPIENT", "ROLE", "SIGNING", "SIGNING URL"}, recipients, 2)
}
