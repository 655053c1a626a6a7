// this file contains functions to generate and load the key pair used to sign audit certificates.
//
// Ed25519 keys are used: they are small, fast and deterministic.
// keys are saved in JWK format (RFC 7517) as single-key JWK sets.

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// GenerateEd25519KeyPair generates a new ED25519 private key
func GenerateEd25519KeyPair() (ed25519.PrivateKey, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return privateKey, nil
}

// SaveEd25519PrivateKeyToJWKFile saves an ED25519 private key to a JWK file
// note the key is not encrypted
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "private.jwk")
func SaveEd25519PrivateKeyToJWKFile(privateKey ed25519.PrivateKey, keyID, baseDir, filename string) error {
	jwkKey, err := Ed25519PrivateKeyToJWK(privateKey, keyID)
	if err != nil {
		return fmt.Errorf("failed to create JWK: %w", err)
	}
	return writeJWKSet(jwkKey, baseDir, filename, 0600)
}

// SaveEd25519PublicKeyToJWKFile saves an ED25519 public key to a JWK file
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "public.jwk")
func SaveEd25519PublicKeyToJWKFile(publicKey ed25519.PublicKey, keyID, baseDir, filename string) error {
	jwkKey, err := Ed25519PublicKeyToJWK(publicKey, keyID)
	if err != nil {
		return fmt.Errorf("failed to create JWK: %w", err)
	}
	return writeJWKSet(jwkKey, baseDir, filename, 0644)
}

func writeJWKSet(key jwk.Key, baseDir, filename string, perm os.FileMode) error {
	jwkSet := jwk.NewSet()
	if err := jwkSet.AddKey(key); err != nil {
		return fmt.Errorf("failed to add key to JWK set: %w", err)
	}

	jsonBytes, err := json.MarshalIndent(jwkSet, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JWK set: %w", err)
	}

	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	if err := root.WriteFile(filename, jsonBytes, perm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ReadSigningKeyFromJWKFile loads the Ed25519 private signing key (as a JWK with its key ID) from path.
func ReadSigningKeyFromJWKFile(path string) (jwk.Key, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open root directory %s: %w", filepath.Dir(path), err)
	}
	defer root.Close()

	jsonBytes, err := root.ReadFile(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	jwkSet, err := jwk.Parse(jsonBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWK set: %w", err)
	}

	if jwkSet.Len() == 0 {
		return nil, fmt.Errorf("JWK set is empty")
	}

	jwkKey, ok := jwkSet.Key(0)
	if !ok {
		return nil, fmt.Errorf("failed to get key from JWK set")
	}

	var raw any
	if err := jwk.Export(jwkKey, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key: %w", err)
	}

	privateKey, ok := raw.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an Ed25519 private key")
	}

	keyID, ok := jwkKey.KeyID()
	if !ok || keyID == "" {
		if keyID, err = GenerateKeyIDFromEd25519Key(privateKey.Public().(ed25519.PublicKey)); err != nil {
			return nil, err
		}
	}

	return Ed25519PrivateKeyToJWK(privateKey, keyID)
}
