// JWK (JSON Web Key) helpers
//
// these functions convert raw Ed25519 keys to JWK format.
// Reference: https://datatracker.ietf.org/doc/html/rfc7517 (JSON Web Key standard)
//
// the public half of the certificate signing key is published via /.well-known/jwks.json
// so that exported certificates can be verified offline (see esign-cli certificate verify).

package crypto

import (
	"crypto"
	"crypto/ed25519"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Ed25519PublicKeyToJWK converts an Ed25519 public key to JWK format
func Ed25519PublicKeyToJWK(publicKey ed25519.PublicKey, keyID string) (jwk.Key, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	return importSigningKey(publicKey, keyID)
}

// Ed25519PrivateKeyToJWK converts an Ed25519 private key to JWK format
func Ed25519PrivateKeyToJWK(privateKey ed25519.PrivateKey, keyID string) (jwk.Key, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	return importSigningKey(privateKey, keyID)
}

func importSigningKey(raw any, keyID string) (jwk.Key, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keyID is required")
	}

	key, err := jwk.Import(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK from Ed25519 key: %w", err)
	}

	// Set key ID
	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}

	// Set algorithm
	if err := key.Set(jwk.AlgorithmKey, jwa.EdDSA()); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	// Set key usage
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	return key, nil
}

// PublicKeySet returns a JWK set containing only the public half of key.
func PublicKeySet(key jwk.Key) (jwk.Set, error) {
	public, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(public); err != nil {
		return nil, fmt.Errorf("failed to add key to JWK set: %w", err)
	}
	return set, nil
}

// GenerateKeyIDFromEd25519Key generates a key ID from an Ed25519 public key using SHA-256 thumbprint.
// Returns the first 16 characters of the hex-encoded thumbprint (RFC 7638)
func GenerateKeyIDFromEd25519Key(publicKey ed25519.PublicKey) (string, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid Ed25519 public key length")
	}
	// Import to JWK to calculate thumbprint
	jwkKey, err := jwk.Import(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to import key: %w", err)
	}

	thumbprint, err := jwkKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to generate thumbprint: %w", err)
	}

	return fmt.Sprintf("%x", thumbprint)[:16], nil
}
