package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/spf13/cobra"
)

var (
	certificateOutput string
	certificateFile   string
	jwksFile          string
)

var certificateCmd = &cobra.Command{
	Use:   "certificate",
	Short: "Export and verify certificates of completion",
}

var certificateGetCmd = &cobra.Command{
	Use:   "get <envelope-id>",
	Short: "Download the signed certificate of an envelope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseEnvelopeID(args[0])
		if err != nil {
			return err
		}
		signed, err := client.Certificate(cmd.Context(), id)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(signed, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode certificate: %w", err)
		}
		if certificateOutput == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		}
		if err := os.WriteFile(certificateOutput, b, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", certificateOutput, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", certificateOutput)
		return nil
	},
}

var certificateVerifyCmd = &cobra.Command{
	Use:   "verify [envelope-id]",
	Short: "Verify the signature of a certificate",
	Long: `Verify a certificate of completion against the server's published keys.

The certificate is fetched from the server unless --file names a saved certificate.
The keys are fetched from /.well-known/jwks.json unless --jwks names a saved key set.

Examples:
  esign-cli certificate verify 5b0c...
  esign-cli certificate verify --file cert.json --jwks jwks.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var signed audit.SignedCertificate
		switch {
		case certificateFile != "":
			b, err := os.ReadFile(certificateFile)
			if err != nil {
				return fmt.Errorf("failed to read certificate: %w", err)
			}
			if err := json.Unmarshal(b, &signed); err != nil {
				return fmt.Errorf("failed to parse certificate: %w", err)
			}
		case len(args) == 1:
			id, err := parseEnvelopeID(args[0])
			if err != nil {
				return err
			}
			if signed, err = client.Certificate(ctx, id); err != nil {
				return err
			}
		default:
			return fmt.Errorf("an envelope id or --file is required")
		}

		var set jwk.Set
		var err error
		if jwksFile != "" {
			b, readErr := os.ReadFile(jwksFile)
			if readErr != nil {
				return fmt.Errorf("failed to read JWKS: %w", readErr)
			}
			set, err = jwk.Parse(b)
		} else {
			set, err = client.PublicKeys(ctx)
		}
		if err != nil {
			return err
		}

		cert, err := VerifySignedCertificate(signed, set)
		if err != nil {
			return err
		}
		return printCertificate(cmd.OutOrStdout(), signed.KeyID, cert)
	},
}

func init() {
	certificateGetCmd.Flags().StringVarP(&certificateOutput, "output", "o", "", "Write the certificate to a file")
	certificateVerifyCmd.Flags().StringVarP(&certificateFile, "file", "f", "", "Verify a saved certificate")
	certificateVerifyCmd.Flags().StringVar(&jwksFile, "jwks", "", "Verify against a saved JWK set")

	certificateCmd.AddCommand(certificateGetCmd)
	certificateCmd.AddCommand(certificateVerifyCmd)
}

// VerifySignedCertificate checks the JWS of signed against set and that the readable certificate
// alongside it matches what was signed.
func VerifySignedCertificate(signed audit.SignedCertificate, set jwk.Set) (audit.Certificate, error) {
	cert, err := audit.VerifyCertificate(signed.JWS, set)
	if err != nil {
		return audit.Certificate{}, fmt.Errorf("certificate signature is not valid: %w", err)
	}

	signedJSON, err := crypto.CanonicalJSON(cert)
	if err != nil {
		return audit.Certificate{}, err
	}
	shownJSON, err := crypto.CanonicalJSON(signed.Certificate)
	if err != nil {
		return audit.Certificate{}, err
	}
	if !bytes.Equal(signedJSON, shownJSON) {
		return audit.Certificate{}, fmt.Errorf("certificate does not match its signature")
	}
	return cert, nil
}

func printCertificate(w io.Writer, keyID string, cert audit.Certificate) error {
	renderHeading(w, "signature", "valid (kid "+keyID+")")
	renderHeading(w, "envelope", cert.EnvelopeID)
	renderHeading(w, "title", cert.Title)
	renderHeading(w, "status", cert.Status)
	renderHeading(w, "audit events", fmt.Sprintf("%d (chain verified: %t)", cert.EventCount, cert.ChainVerified))

	documents := make([][]string, 0, len(cert.Documents))
	for _, d := range cert.Documents {
		documents = append(documents, []string{d.Title, d.Checksum})
	}
	if err := renderTable(w, []string{"DOCUMENT", "SHA-256"}, documents); err != nil {
		return err
	}

	recipients := make([][]string, 0, len(cert.Recipients))
	for _, r := range cert.Recipients {
		signedAt := ""
		if r.SignedAt != nil {
			signedAt = r.SignedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		recipients = append(recipients, []string{r.Email, r.Role, r.SigningStatus, signedAt, r.IPAddress})
	}
	return renderTable(w, []string{"RECIPIENT", "ROLE", "SIGNING", "SIGNED AT", "IP"}, recipients, 2)
}
