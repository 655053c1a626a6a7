// Package handlers provides the HTTP handlers of the esign server.
//
//   - signing.go: the recipient API. The token in the URL is the only credential.
//   - self_serve.go: one-shot envelope creation owned by the configured service account.
//   - admin.go: users, envelope authoring, send/delete/reset and audit exports.
//     These endpoints are for development and testing only - in production authoring would
//     sit behind the platform's own authentication.
//   - health.go, version.go, jwks.go: common infrastructure handlers.
//
// Handlers decode the request, call the signing service and map failures with api.RespondWithErrorResponse.
package handlers
