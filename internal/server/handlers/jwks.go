package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// privateKeyParams are the JWK members that carry secret key material (RFC 7518 section 6).
var privateKeyParams = []string{"d", "p", "q", "dp", "dq", "qi", "k"}

// HandleCertificateKeys godoc
//
//	@Summary		Get certificate signing keys
//	@Description	Returns the public half of the key that signs envelope certificate exports.
//	@Description
//	@Description	Each certificate JWS returned by /admin/envelopes/{envelopeID}/certificate carries the kid
//	@Description	of the key that signed it. Match it against this set to verify the export offline
//	@Description	(esign-cli certificate verify does this for you).
//	@Description
//	@Description	The response carries an ETag derived from the published keys; a rotated key changes it.
//	@Tags			Common
//
//	@Success		200	{object}	JWKSResponse	"JWK set"
//	@Success		304	"Key set unchanged"
//
//	@Router			/.well-known/jwks.json [get]
//
// HandleCertificateKeys encodes the set once at startup. It refuses a set containing keys
// without a kid or with private key members.
func HandleCertificateKeys(keys jwk.Set) (http.HandlerFunc, error) {
	if keys == nil || keys.Len() == 0 {
		return nil, fmt.Errorf("the certificate key set is empty")
	}
	for i := range keys.Len() {
		key, _ := keys.Key(i)
		if kid, ok := key.KeyID(); !ok || kid == "" {
			return nil, fmt.Errorf("certificate key %d has no kid", i)
		}
		for _, param := range privateKeyParams {
			if key.Has(param) {
				return nil, fmt.Errorf("certificate key %d contains private key material (%q)", i, param)
			}
		}
	}

	body, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JWK set: %w", err)
	}
	digest, err := crypto.Hash(body)
	if err != nil {
		return nil, fmt.Errorf("failed to hash JWK set: %w", err)
	}
	etag := `"` + digest[:16] + `"`

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}, nil
}

// JWKSResponse is used for swaggo documentation as swaggo doesn't support the jwk.Set interface type.
type JWKSResponse struct {
	Keys []map[string]any `json:"keys"`
}
