// jws.go - Functions for signing and verifying JWS (JSON Web Signature)
// certificates of completion are exported as JWS compact serializations of the canonical certificate JSON,
// signed with the server's Ed25519 key (EdDSA). Verifiers resolve the key by kid from the published JWK set.
package crypto

import (
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
)

// SignJSON canonicalizes v and returns it as a JWS Compact Serialization signed with key.
// The key must carry a key ID, which is copied to the protected header.
func SignJSON(v any, key jwk.Key) (string, error) {
	if key == nil {
		return "", fmt.Errorf("signing key is nil")
	}

	keyID, ok := key.KeyID()
	if !ok || keyID == "" {
		return "", fmt.Errorf("keyID is required")
	}

	payload, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}

	headers := jws.NewHeaders()
	if err := headers.Set(jws.KeyIDKey, keyID); err != nil {
		return "", fmt.Errorf("failed to set key ID header: %w", err)
	}

	signed, err := jws.Sign(payload, jws.WithKey(jwa.EdDSA(), key, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	return string(signed), nil
}

// VerifyJWS checks the signature of a compact JWS against the keys in set and returns the payload.
func VerifyJWS(token string, set jwk.Set) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("JWS is empty")
	}
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("no verification keys")
	}

	payload, err := jws.Verify([]byte(token), jws.WithKeySet(set))
	if err != nil {
		return nil, fmt.Errorf("failed to verify signature: %w", err)
	}
	return payload, nil
}

// KeyIDFromJWS returns the kid of the first signature in a compact JWS without verifying it.
func KeyIDFromJWS(token string) (string, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return "", fmt.Errorf("failed to parse JWS: %w", err)
	}

	signatures := msg.Signatures()
	if len(signatures) == 0 {
		return "", fmt.Errorf("JWS has no signatures")
	}

	keyID, ok := signatures[0].ProtectedHeaders().KeyID()
	if !ok || keyID == "" {
		return "", fmt.Errorf("JWS header has no kid")
	}
	return keyID, nil
}
