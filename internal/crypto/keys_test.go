package crypto

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

// generate a Ed25519 key pair, save the private and public keys to JWK files, read them back and compare
func TestSaveAndReadEd25519JWK(t *testing.T) {
	privateKey, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)

	keyID, err := GenerateKeyIDFromEd25519Key(publicKey)
	if err != nil {
		t.Fatalf("failed to generate key ID: %v", err)
	}

	tmpDir := t.TempDir()

	if err := SaveEd25519PrivateKeyToJWKFile(privateKey, keyID, tmpDir, "private.jwk"); err != nil {
		t.Fatalf("failed to save private key: %v", err)
	}
	if err := SaveEd25519PublicKeyToJWKFile(publicKey, keyID, tmpDir, "public.jwk"); err != nil {
		t.Fatalf("failed to save public key: %v", err)
	}

	loaded, err := ReadSigningKeyFromJWKFile(filepath.Join(tmpDir, "private.jwk"))
	if err != nil {
		t.Fatalf("failed to load private key: %v", err)
	}

	gotKeyID, ok := loaded.KeyID()
	if !ok || gotKeyID != keyID {
		t.Errorf("key ID = %q, want %q", gotKeyID, keyID)
	}

	var raw ed25519.PrivateKey
	if err := jwkExport(loaded, &raw); err != nil {
		t.Fatalf("failed to export loaded key: %v", err)
	}
	if !privateKey.Equal(raw) {
		t.Error("loaded private key does not match original")
	}

	// Verify file permissions
	info, err := os.Stat(filepath.Join(tmpDir, "private.jwk"))
	if err != nil {
		t.Fatalf("failed to stat private key file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("private key file permissions = %o, want 0600", info.Mode().Perm())
	}

	// a public key file cannot be used as a signing key
	if _, err := ReadSigningKeyFromJWKFile(filepath.Join(tmpDir, "public.jwk")); err == nil {
		t.Error("expected error reading a public key as a signing key")
	}
}

func TestReadSigningKeyFromJWKFileErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "empty.jwk"), []byte(`{"keys":[]}`), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "junk.jwk"), []byte(`not json`), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(tmpDir, "missing.jwk")},
		{name: "empty set", path: filepath.Join(tmpDir, "empty.jwk")},
		{name: "invalid json", path: filepath.Join(tmpDir, "junk.jwk")},
		{name: "path escapes directory", path: filepath.Join(tmpDir, "..", "x.jwk")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadSigningKeyFromJWKFile(tt.path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
