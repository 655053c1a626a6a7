package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

func jwkExport(key jwk.Key, dst any) error {
	return jwk.Export(key, dst)
}

func TestEd25519PublicKeyToJWK(t *testing.T) {
	// nil public key
	if _, err := Ed25519PublicKeyToJWK(nil, "kid"); err == nil {
		t.Fatalf("expected an error when passing nil public key, but got no error")
	}

	privateKey, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not generate an Ed25519 private key: %v", err)
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)

	// missing key ID
	if _, err := Ed25519PublicKeyToJWK(publicKey, ""); err == nil {
		t.Fatalf("expected an error when keyID is empty")
	}

	key, err := Ed25519PublicKeyToJWK(publicKey, "test-key")
	if err != nil {
		t.Fatalf("error converting Ed25519 public key to JWK: %v", err)
	}

	gotKeyID, ok := key.KeyID()
	if !ok || gotKeyID != "test-key" {
		t.Errorf("KeyID mismatch: got %q, want %q", gotKeyID, "test-key")
	}

	alg, ok := key.Algorithm()
	if !ok {
		t.Fatalf("Algorithm not set in JWK")
	}
	if alg.String() != jwa.EdDSA().String() {
		t.Errorf("Algorithm mismatch: got %q, want %q", alg.String(), jwa.EdDSA().String())
	}

	usage, ok := key.KeyUsage()
	if !ok {
		t.Fatalf("KeyUsage not set in JWK")
	}
	if usage != jwk.ForSignature.String() {
		t.Errorf("KeyUsage mismatch: got %q, want %q", usage, jwk.ForSignature.String())
	}
}

func TestPublicKeySet(t *testing.T) {
	privateKey, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not generate an Ed25519 private key: %v", err)
	}

	key, err := Ed25519PrivateKeyToJWK(privateKey, "signing-key")
	if err != nil {
		t.Fatalf("error converting Ed25519 private key to JWK: %v", err)
	}

	set, err := PublicKeySet(key)
	if err != nil {
		t.Fatalf("PublicKeySet() returned error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 key in set, got %d", set.Len())
	}

	public, ok := set.LookupKeyID("signing-key")
	if !ok {
		t.Fatal("public key not found by key ID")
	}

	var raw any
	if err := jwk.Export(public, &raw); err != nil {
		t.Fatalf("failed to export public key: %v", err)
	}
	if _, ok := raw.(ed25519.PublicKey); !ok {
		t.Errorf("expected an Ed25519 public key, got %T", raw)
	}
}

func TestGenerateKeyIDFromEd25519Key(t *testing.T) {
	privateKey, err := GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("could not generate an Ed25519 private key: %v", err)
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)

	first, err := GenerateKeyIDFromEd25519Key(publicKey)
	if err != nil {
		t.Fatalf("GenerateKeyIDFromEd25519Key() returned error: %v", err)
	}
	if len(first) != 16 {
		t.Errorf("key ID length = %d, want 16", len(first))
	}

	second, err := GenerateKeyIDFromEd25519Key(publicKey)
	if err != nil {
		t.Fatalf("GenerateKeyIDFromEd25519Key() returned error: %v", err)
	}
	if first != second {
		t.Errorf("key ID is not stable: %s != %s", first, second)
	}

	if _, err := GenerateKeyIDFromEd25519Key(publicKey[:10]); err == nil {
		t.Error("expected error for truncated public key")
	}
}
