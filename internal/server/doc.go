// Package server provides the HTTP server for the esign demo app.
//
// the server is configured through environment variables
// (see internal/config/config.go for details)
//
// Routes:
//   - common infrastructure handlers (health, version, jwks)
//   - /api/v1/sign/{token}: the recipient signing API
//   - /api/v1/self-serve: envelopes owned by the service account
//   - /admin: envelope authoring for development and testing
//
// handlers are in internal/server/handlers and middleware is in internal/server/middleware
package server
