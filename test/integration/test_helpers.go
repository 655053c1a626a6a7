//go:build integration

// functions that are useful in integration tests

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/pdfstamp/pdftest"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// doJSON sends a JSON request, checks the status and decodes the response into out (when out is not nil).
func doJSON(t *testing.T, method, url string, body any, wantStatus int, out any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "integration-test")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: got status %d, want %d: %s", method, url, resp.StatusCode, wantStatus, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("%s %s: failed to decode response: %v", method, url, err)
		}
	}
}

// tokenFromURL returns the last path segment of a signing url.
func tokenFromURL(t *testing.T, url string) string {
	t.Helper()
	i := strings.LastIndex(url, "/")
	if i < 0 || i == len(url)-1 {
		t.Fatalf("unexpected signing url %q", url)
	}
	return url[i+1:]
}

// createEnvelope creates an owner and a draft envelope with one document and returns the envelope.
func createEnvelope(t *testing.T, env *testEnv, signingOrder signing.SigningOrder) api.EnvelopeResponse {
	t.Helper()

	var owner signing.User
	doJSON(t, http.MethodPost, env.baseURL+"/admin/users", api.CreateUserRequest{Email: "owner@example.com", Name: "Owner"}, http.StatusCreated, &owner)

	var created api.EnvelopeResponse
	doJSON(t, http.MethodPost, env.baseURL+"/admin/envelopes", api.CreateEnvelopeRequest{
		OwnerUserID:  owner.ID,
		Title:        "Lease",
		SigningOrder: signingOrder,
		Documents:    []api.DocumentUploadRequest{{Title: "lease.pdf", Data: pdftest.Minimal(2)}},
	}, http.StatusCreated, &created)
	return created
}

// addSigner adds a signer with a signature field and a date field on page index page.
func addSigner(t *testing.T, env *testEnv, envelope api.EnvelopeResponse, email string, order *int32, page int32) api.RecipientResponse {
	t.Helper()
	envPath := env.baseURL + "/admin/envelopes/" + envelope.Envelope.ID.String()

	var recipient api.RecipientResponse
	doJSON(t, http.MethodPost, envPath+"/recipients", api.AddRecipientRequest{Email: email, Name: email, SigningOrder: order}, http.StatusCreated, &recipient)

	for i, fieldType := range []signing.FieldType{signing.FieldTypeSignature, signing.FieldTypeDate} {
		doJSON(t, http.MethodPost, envPath+"/fields", api.AddFieldRequest{
			EnvelopeItemID: envelope.Items[0].ID,
			RecipientID:    recipient.ID,
			Type:           fieldType,
			Page:           page,
			PositionX:      0.1,
			PositionY:      0.1 + 0.2*float64(i),
			Width:          0.3,
			Height:         0.08,
		}, http.StatusCreated, nil)
	}
	return recipient
}

// signingFields returns the fields the recipient behind token is asked to fill in.
func signingFields(t *testing.T, env *testEnv, token string) []signing.Field {
	t.Helper()
	var view api.SigningViewResponse
	doJSON(t, http.MethodGet, env.baseURL+"/api/v1/sign/"+token, nil, http.StatusOK, &view)
	return view.Fields
}

// completeAll signs every signature field of the recipient with a typed name and completes signing.
func completeAll(t *testing.T, env *testEnv, token, name string, wantStatus int) api.CompleteSigningResponse {
	t.Helper()
	req := api.CompleteSigningRequest{}
	for _, f := range signingFields(t, env, token) {
		if f.Type == signing.FieldTypeSignature {
			req.Fields = append(req.Fields, api.FieldSubmission{FieldID: f.ID, Value: name})
		}
	}
	var resp api.CompleteSigningResponse
	var out any = &resp
	if wantStatus != http.StatusOK {
		out = nil
	}
	doJSON(t, http.MethodPost, env.baseURL+"/api/v1/sign/"+token+"/complete", req, wantStatus, out)
	return resp
}
