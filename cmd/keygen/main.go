// keygen generates the Ed25519 key pair esign-server uses to sign audit certificates.
package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"

	esigncrypto "github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/information-sharing-networks/esign-demo/internal/version"
	"github.com/spf13/cobra"
)

// file naming convention - name.public.jwk and name.private.jwk
const (
	publicKeyFileNameFormat  = "%s.public.jwk"
	privateKeyFileNameFormat = "%s.private.jwk"
)

var (
	name      string
	outputDir string
	kid       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "keygen",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Certificate signing key generator",
		Long:              "Generate an Ed25519 key pair in JWK format for signing envelope audit certificates",
	}

	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new key pair",
		Long:  "Generate a new Ed25519 key pair. Point CERTIFICATE_SIGNING_KEY_PATH at the private key file.",
		RunE:  runGenerate,
	}

	generateCmd.Flags().StringVarP(&name, "name", "n", "certificate", "Base name for the key files")
	generateCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory for generated keys [required]")
	generateCmd.Flags().StringVarP(&kid, "kid", "k", "", "Key ID (default: auto-generated from thumbprint)")
	generateCmd.MarkFlagRequired("output-dir")

	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid name %q: must be a plain file name", name)
	}

	// make the directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	fmt.Printf("Generating Ed25519 key pair: %s\n", name)

	privateKey, err := esigncrypto.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate Ed25519 key: %w", err)
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)

	keyID := kid
	if keyID == "" {
		keyID, err = esigncrypto.GenerateKeyIDFromEd25519Key(publicKey)
		if err != nil {
			return fmt.Errorf("failed to generate key ID: %w", err)
		}
	}

	publicFile := fmt.Sprintf(publicKeyFileNameFormat, name)
	if err := esigncrypto.SaveEd25519PublicKeyToJWKFile(publicKey, keyID, outputDir, publicFile); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	fmt.Printf("✓ Public JWK:  %s (kid: %s)\n", filepath.Join(outputDir, publicFile), keyID)

	privateFile := fmt.Sprintf(privateKeyFileNameFormat, name)
	if err := esigncrypto.SaveEd25519PrivateKeyToJWKFile(privateKey, keyID, outputDir, privateFile); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	fmt.Printf("✓ Private JWK: %s (kid: %s)\n", filepath.Join(outputDir, privateFile), keyID)

	return nil
}
