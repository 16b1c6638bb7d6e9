// Package http provides HTTP middleware for rate limit enforcement.
package http

import (
	"net/http"
	"strconv"

	"github.com/centsible/fincore/pkg/ratelimit"
)

// TenantExtractor extracts the tenant ID from an HTTP request.
// Return empty string if the tenant cannot be determined.
type TenantExtractor func(r *http.Request) string

// IdentifierExtractor extracts the limited principal from a request,
// typically a user ID or API key. Return empty string if unknown.
type IdentifierExtractor func(r *http.Request) string

// Config holds middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *ratelimit.Limiter

	// GetTenantID extracts the tenant ID from the request (required).
	GetTenantID TenantExtractor

	// GetIdentifier extracts the limited principal (required).
	GetIdentifier IdentifierExtractor

	// RateType names the limited operation class, e.g. "api" or "sync".
	RateType string

	// Limit is the limit to enforce.
	Limit ratelimit.Limit

	// OnUnidentified is called when tenant or identifier cannot be
	// extracted. If nil, returns 401 Unauthorized.
	OnUnidentified func(w http.ResponseWriter, r *http.Request)

	// OnDenied is called when the limit is exceeded.
	// If nil, returns 429 Too Many Requests.
	OnDenied func(w http.ResponseWriter, r *http.Request, result *ratelimit.Result)
}

// Middleware creates an HTTP middleware that enforces a rate limit.
// Decision detail is exposed as X-RateLimit-* headers on every response;
// denials additionally carry Retry-After.
func Middleware(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := config.GetTenantID(r)
			identifier := config.GetIdentifier(r)
			if tenantID == "" || identifier == "" {
				if config.OnUnidentified != nil {
					config.OnUnidentified(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			allowed, result, err := config.Limiter.Check(r.Context(), tenantID, identifier, config.RateType, config.Limit)
			if err != nil {
				// Only configuration errors reach here; store failures
				// fail open inside the limiter.
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			SetHeaders(w, result)

			if !allowed {
				if config.OnDenied != nil {
					config.OnDenied(w, r, result)
				} else {
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes the standard rate limit response headers from a
// check result.
func SetHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	if result == nil {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.ResetTime.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
	}
	if !result.Allowed && result.RetryAfter > 0 {
		secs := int64(result.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		h.Set("Retry-After", strconv.FormatInt(secs, 10))
	}
}

// Common extractors for convenience.

// HeaderTenant extracts the tenant ID from a request header.
func HeaderTenant(header string) TenantExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// HeaderIdentifier extracts the identifier from a request header.
func HeaderIdentifier(header string) IdentifierExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// RemoteAddrIdentifier extracts the client address, for unauthenticated
// endpoints where the IP is the best available principal.
func RemoteAddrIdentifier() IdentifierExtractor {
	return func(r *http.Request) string {
		return r.RemoteAddr
	}
}
