// api package holds the request/response types of the signing service HTTP API
// and the mapping from lower level errors to HTTP responses.
//
// **error handling**
// the signing package returns *signing.SigningError values with a code (VALIDATION, NOT_FOUND, etc).
// Request level problems found by the handlers and middleware (bad JSON, rate limits, oversized bodies)
// are reported with *api.APIError.
// Both are converted to an ErrorResponse by MapErrorToResponse; use RespondWithErrorResponse() to create and send it.
//
// Full error details are only ever logged server side. Not found errors never reveal which
// identifier (token, envelope, recipient or field) did not match.
//
// **types**
// request and response structs are in types.go
package api
