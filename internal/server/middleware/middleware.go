package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/information-sharing-networks/esign-demo/internal/api"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
)

// RequestSizeLimit caps request bodies at maxBytes. Envelope uploads carry base64 PDFs and
// signature submissions carry base64 images, so the limit is advertised in X-Max-Request-Size.
//
// A declared Content-Length over the limit is rejected before the handler runs; otherwise the
// body is wrapped so that the handler's decode fails once the limit is crossed.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	limit := strconv.FormatInt(maxBytes, 10)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Max-Request-Size", limit)

			if r.ContentLength > maxBytes {
				err := api.NewRequestTooLargeError(
					fmt.Sprintf("Request body size (%d bytes) exceeds maximum allowed size (%d bytes)", r.ContentLength, maxBytes),
				)
				api.RespondWithErrorResponse(w, r, err)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets headers for an API that only returns JSON and PDF documents:
// nothing it serves may run scripts or be framed by another site.
func SecurityHeaders(environment string) func(http.Handler) http.Handler {
	hsts := environment == "prod" || environment == "staging"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if hsts {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SigningLinkHeaders is applied to routes that carry a recipient token in the path.
// Responses must not be cached and the token must not leak through the Referer header
// when the signing page links elsewhere.
func SigningLinkHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}

// idleClientTTL is how long a client's limiter is kept after its last request.
const idleClientTTL = 5 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client address.
type clientLimiters struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

func (c *clientLimiters) allow(client string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) > idleClientTTL {
		for addr, cl := range c.clients {
			if now.Sub(cl.lastSeen) > idleClientTTL {
				delete(c.clients, addr)
			}
		}
		c.lastSweep = now
	}

	cl, ok := c.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// clientAddress is the host part of RemoteAddr (chi's RealIP may already have replaced it with a bare IP).
func clientAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit limits requests per second for each client address. Signing links and self-serve
// creation are unauthenticated, so one client exhausting its bucket must not block other recipients.
// If requestsPerSecond <= 0, rate limiting is disabled.
func RateLimit(requestsPerSecond int32, burst int32) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiters := &clientLimiters{
		clients:   map[string]*clientLimiter{},
		rps:       rate.Limit(requestsPerSecond),
		burst:     int(burst),
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddress(r)
			if !limiters.allow(client, time.Now()) {
				logger.ContextRequestLogger(r.Context()).Warn("Rate limit exceeded",
					slog.String("component", "RateLimit"),
					slog.String("client", client),
				)
				logger.ContextWithLogAttrs(r.Context(), slog.String("client", client))

				api.RespondWithErrorResponse(w, r, api.NewRateLimitError("Too many requests. Please try again later."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
