package cli

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/config"
	"github.com/information-sharing-networks/esign-demo/internal/crypto"
	"github.com/information-sharing-networks/esign-demo/internal/pdfstamp/pdftest"
	"github.com/information-sharing-networks/esign-demo/internal/server"
	"github.com/information-sharing-networks/esign-demo/internal/services"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/information-sharing-networks/esign-demo/internal/store"
)

type stubReadiness struct{}

func (stubReadiness) IsDatabaseRunning(context.Context) (bool, error) { return true, nil }

// newTestBackend runs an esign-server on the in-memory store and returns a client for it.
func newTestBackend(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	key, err := crypto.Ed25519PrivateKeyToJWK(priv, "cli-test")
	if err != nil {
		t.Fatalf("failed to create JWK: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := signing.NewService(store.NewMemory(), services.NewBytes64Store(), services.NewLogMailer(logger), signing.Config{
		DefaultDateFormat: "yyyy-MM-dd",
		PublicBaseURL:     "https://esign.example.com",
	})
	cfg := &config.ServerEnvironment{Environment: "test", MaxRequestBodyBytes: 10 << 20}

	srv, err := server.NewServer(nil, stubReadiness{}, cfg, logger, svc, key)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c, ts
}

func writeManifest(t *testing.T) *Manifest {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lease.pdf"), pdftest.Minimal(1), 0644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "lease.yaml")
	if err := os.WriteFile(path, []byte(validManifest), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}
	return m
}

func postJSON(t *testing.T, url string, body any, wantStatus int) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST %s: got %d, want %d: %s", url, resp.StatusCode, wantStatus, msg)
	}
}

func TestCreateFromManifestAndVerify(t *testing.T) {
	c, ts := newTestBackend(t)
	ctx := context.Background()

	env, err := CreateFromManifest(ctx, c, writeManifest(t), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Envelope.Status != signing.EnvelopeStatusPending {
		t.Fatalf("expected PENDING, got %s", env.Envelope.Status)
	}
	if len(env.Recipients) != 2 || len(env.Fields) != 2 {
		t.Fatalf("expected 2 recipients and 2 fields, got %d and %d", len(env.Recipients), len(env.Fields))
	}

	var signer api.RecipientResponse
	for _, r := range env.Recipients {
		if r.Email == "ada@example.com" {
			signer = r
		}
	}
	token := signer.SigningURL[strings.LastIndex(signer.SigningURL, "/")+1:]

	submission := api.CompleteSigningRequest{}
	for _, f := range env.Fields {
		switch f.Type {
		case signing.FieldTypeSignature:
			submission.Fields = append(submission.Fields, api.FieldSubmission{FieldID: f.ID, Value: "Ada Lovelace"})
		case signing.FieldTypeCheckbox:
			submission.Fields = append(submission.Fields, api.FieldSubmission{FieldID: f.ID, Selected: []string{"pets"}})
		}
	}
	postJSON(t, ts.URL+"/api/v1/sign/"+token+"/complete", submission, http.StatusOK)

	env, err = WaitForOutcome(ctx, c, env.Envelope.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Envelope.Status != signing.EnvelopeStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", env.Envelope.Status)
	}

	var out bytes.Buffer
	if err := printStatus(&out, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "COMPLETED") || !strings.Contains(out.String(), "ada@example.com") {
		t.Errorf("status output missing envelope details:\n%s", out.String())
	}

	entries, err := c.AuditLog(ctx, env.Envelope.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := audit.VerifyChain(entries); err != nil {
		t.Errorf("audit chain does not verify: %v", err)
	}

	signed, err := c.Certificate(ctx, env.Envelope.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, err := c.PublicKeys(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cert, err := VerifySignedCertificate(signed, set)
	if err != nil {
		t.Fatalf("certificate does not verify: %v", err)
	}
	if cert.EnvelopeID != env.Envelope.ID.String() {
		t.Errorf("certificate is for %s", cert.EnvelopeID)
	}

	signed.Certificate.Title = "Something else"
	if _, err := VerifySignedCertificate(signed, set); err == nil {
		t.Error("expected an edited certificate to be rejected")
	}

	pdf, err := c.DownloadDocument(ctx, env.Envelope.ID, env.Items[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(pdf, pdftest.Minimal(1)) || len(pdf) <= len(pdftest.Minimal(1)) {
		t.Error("expected the signed document to extend the uploaded one")
	}
}

func TestClientErrorResponse(t *testing.T) {
	c, _ := newTestBackend(t)

	_, err := c.GetEnvelope(context.Background(), uuid.New())
	respErr, ok := err.(*ResponseError)
	if !ok {
		t.Fatalf("expected *ResponseError, got %T %v", err, err)
	}
	if respErr.StatusCode != http.StatusNotFound || respErr.IsRetryable() {
		t.Errorf("unexpected error %+v", respErr)
	}
	if isRetryable(err) {
		t.Error("not found must not be retried")
	}
}

func TestWaitForOutcomeRetriesServerErrors(t *testing.T) {
	id := uuid.New()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"statusCode":503}`))
		case 2:
			json.NewEncoder(w).Encode(api.EnvelopeResponse{Envelope: signing.Envelope{ID: id, Status: signing.EnvelopeStatusPending}})
		default:
			json.NewEncoder(w).Encode(api.EnvelopeResponse{Envelope: signing.Envelope{ID: id, Status: signing.EnvelopeStatusRejected}})
		}
	}))
	defer ts.Close()

	c, err := NewClient(ts.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env, err := WaitForOutcome(ctx, c, id, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Envelope.Status != signing.EnvelopeStatusRejected || calls.Load() != 3 {
		t.Errorf("expected REJECTED after 3 polls, got %s after %d", env.Envelope.Status, calls.Load())
	}
}

func TestWaitForOutcomeDraft(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.EnvelopeResponse{Envelope: signing.Envelope{Status: signing.EnvelopeStatusDraft}})
	}))
	defer ts.Close()

	c, err := NewClient(ts.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := WaitForOutcome(context.Background(), c, uuid.New(), time.Millisecond); err == nil || !strings.Contains(err.Error(), "not been sent") {
		t.Errorf("expected a draft error, got %v", err)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"localhost:8080", "ftp://example.com", "://"} {
		if _, err := NewClient(u, time.Second); err == nil {
			t.Errorf("expected %q to be rejected", u)
		}
	}
}
