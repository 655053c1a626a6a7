// JSON documents are canonicalized per RFC 8785 before they are hashed or signed so that
// the checksum does not depend on key order or whitespace.
// this implementation uses the gowebpki/jcs library to perform the canonicalization
package crypto

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON converts JSON to canonical form per RFC 8785
// This ensures consistent hashing/signing of JSON documents
//
// If the input is not valid JSON, an error is returned (handled by jcs library).
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	return jcs.Transform(jsonData)
}

// CanonicalJSON marshals v and returns its canonical form.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	canonical, err := CanonicalizeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize JSON: %w", err)
	}
	return canonical, nil
}
