package handlers

import (
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

func certificateKey(t *testing.T) jwk.Key {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	key, err := crypto.Ed25519PrivateKeyToJWK(priv, "cert-key-1")
	if err != nil {
		t.Fatalf("failed to convert key: %v", err)
	}
	return key
}

func TestHandleCertificateKeys(t *testing.T) {
	public, err := crypto.PublicKeySet(certificateKey(t))
	if err != nil {
		t.Fatalf("failed to build key set: %v", err)
	}
	handler, err := HandleCertificateKeys(public)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag")
	}
	if !strings.Contains(rr.Body.String(), `"kid":"cert-key-1"`) {
		t.Errorf("expected the certificate kid in %s", rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	req.Header.Set("If-None-Match", etag)
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusNotModified || rr.Body.Len() != 0 {
		t.Errorf("got %d with %d bytes, want an empty %d", rr.Code, rr.Body.Len(), http.StatusNotModified)
	}
}

func TestHandleCertificateKeysRefusesUnsafeSets(t *testing.T) {
	private := jwk.NewSet()
	if err := private.AddKey(certificateKey(t)); err != nil {
		t.Fatalf("failed to add key: %v", err)
	}

	public, err := crypto.PublicKeySet(certificateKey(t))
	if err != nil {
		t.Fatalf("failed to build key set: %v", err)
	}
	noKid, _ := public.Key(0)
	if err := noKid.Remove(jwk.KeyIDKey); err != nil {
		t.Fatalf("failed to remove kid: %v", err)
	}

	tests := []struct {
		name      string
		set       jwk.Set
		wantError string
	}{
		{"empty", jwk.NewSet(), "empty"},
		{"private key", private, "private key material"},
		{"missing kid", public, "no kid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HandleCertificateKeys(tt.set)
			if err == nil || !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("expected error containing %q, got %v", tt.wantError, err)
			}
		})
	}
}
