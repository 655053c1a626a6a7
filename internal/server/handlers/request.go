package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// decodeJSON reads the request body into dst. Size limit errors are passed through so they map to 413.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return api.WrapMalformedRequestError(err, "failed to decode request JSON")
	}
	return nil
}

// uuidParam parses the named chi URL parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	value := chi.URLParam(r, name)
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, api.NewMalformedRequestError(fmt.Sprintf("%s is not a valid id", name))
	}
	return id, nil
}

// requestMetadata captures the caller's address and user agent for the audit log.
// RemoteAddr has already been replaced by middleware.RealIP when the server is behind a proxy.
func requestMetadata(r *http.Request) signing.RequestMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return signing.RequestMetadata{IPAddress: ip, UserAgent: r.UserAgent()}
}
