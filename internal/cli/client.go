package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/audit"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Client calls the esign-server admin API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ResponseError is returned when the server answers with an error status.
type ResponseError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.StatusCode)
	if e.Response.StatusCodeMessage != "" {
		msg += ": " + e.Response.StatusCodeMessage
	}
	for _, d := range e.Response.Errors {
		if d.FieldID != "" {
			msg += fmt.Sprintf("\n  field %s: %s", d.FieldID, d.ErrorCodeMessage)
		} else if d.ErrorCodeMessage != "" && d.ErrorCodeMessage != e.Response.StatusCodeMessage {
			msg += "\n  " + d.ErrorCodeMessage
		}
	}
	return msg
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *ResponseError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	return &Client{baseURL: u, httpClient: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respErr := &ResponseError{StatusCode: resp.StatusCode}
		// error bodies that are not JSON still produce a status-only error
		_ = json.NewDecoder(resp.Body).Decode(&respErr.Response)
		return respErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) CreateUser(ctx context.Context, req api.CreateUserRequest) (signing.User, error) {
	var user signing.User
	err := c.do(ctx, http.MethodPost, "/admin/users", req, &user)
	return user, err
}

func (c *Client) CreateEnvelope(ctx context.Context, req api.CreateEnvelopeRequest) (api.EnvelopeResponse, error) {
	var env api.EnvelopeResponse
	err := c.do(ctx, http.MethodPost, "/admin/envelopes", req, &env)
	return env, err
}

func (c *Client) AddRecipient(ctx context.Context, envelopeID uuid.UUID, req api.AddRecipientRequest) (api.RecipientResponse, error) {
	var r api.RecipientResponse
	err := c.do(ctx, http.MethodPost, "/admin/envelopes/"+envelopeID.String()+"/recipients", req, &r)
	return r, err
}

func (c *Client) AddField(ctx context.Context, envelopeID uuid.UUID, req api.AddFieldRequest) (signing.Field, error) {
	var f signing.Field
	err := c.do(ctx, http.MethodPost, "/admin/envelopes/"+envelopeID.String()+"/fields", req, &f)
	return f, err
}

func (c *Client) SendEnvelope(ctx context.Context, envelopeID uuid.UUID) (api.EnvelopeResponse, error) {
	var env api.EnvelopeResponse
	err := c.do(ctx, http.MethodPost, "/admin/envelopes/"+envelopeID.String()+"/send", nil, &env)
	return env, err
}

func (c *Client) DeleteEnvelope(ctx context.Context, envelopeID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/admin/envelopes/"+envelopeID.String(), nil, nil)
}

func (c *Client) GetEnvelope(ctx context.Context, envelopeID uuid.UUID) (api.EnvelopeResponse, error) {
	var env api.EnvelopeResponse
	err := c.do(ctx, http.MethodGet, "/admin/envelopes/"+envelopeID.String(), nil, &env)
	return env, err
}

func (c *Client) AuditLog(ctx context.Context, envelopeID uuid.UUID) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := c.do(ctx, http.MethodGet, "/admin/envelopes/"+envelopeID.String()+"/audit-log", nil, &entries)
	return entries, err
}

func (c *Client) Certificate(ctx context.Context, envelopeID uuid.UUID) (audit.SignedCertificate, error) {
	var cert audit.SignedCertificate
	err := c.do(ctx, http.MethodGet, "/admin/envelopes/"+envelopeID.String()+"/certificate", nil, &cert)
	return cert, err
}

// DownloadDocument returns the current PDF bytes of an envelope item.
func (c *Client) DownloadDocument(ctx context.Context, envelopeID, itemID uuid.UUID) ([]byte, error) {
	path := "/admin/envelopes/" + envelopeID.String() + "/items/" + itemID.String() + "/pdf"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respErr := &ResponseError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&respErr.Response)
		return nil, respErr
	}
	return io.ReadAll(resp.Body)
}

// PublicKeys fetches the server's certificate verification keys.
func (c *Client) PublicKeys(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/.well-known/jwks.json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ResponseError{StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS: %w", err)
	}
	set, err := jwk.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	return set, nil
}

// isRetryable reports whether err is a transient server or transport failure.
func isRetryable(err error) bool {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.IsRetryable()
	}
	return !errors.Is(err, context.Canceled)
}
