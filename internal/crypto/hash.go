// this file provides the SHA-256 checksum functions used for audit log chaining,
// certificate payloads and content addressed document storage.

package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hash calculates SHA-256 checksum (hash) and returns hex string.
//
// Use this for:
// - Canonical JSON (audit entries, certificates)
// - PDF bytes
// - Any data already in memory
func Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data is empty")
	}
	hasher := sha256.New()

	if _, err := io.Copy(hasher, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to hash data: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashJSON canonicalizes v (RFC 8785) and returns the SHA-256 checksum of the result.
func HashJSON(v any) (string, error) {
	canonical, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return Hash(canonical)
}

// VerifyHash verifies that data matches the expected SHA-256 checksum.
func VerifyHash(data []byte, expectedChecksum string) bool {
	checksum, _ := Hash(data)
	return checksum == expectedChecksum
}
