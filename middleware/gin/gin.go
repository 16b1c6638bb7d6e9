// Package gin provides Gin middleware for rate limit enforcement.
package gin

import (
	"net/http"
	"strconv"

	gongin "github.com/gin-gonic/gin"

	"github.com/centsible/fincore/pkg/ratelimit"
)

// TenantExtractor extracts the tenant ID from a Gin context.
// Return empty string if the tenant cannot be determined.
type TenantExtractor func(c *gongin.Context) string

// IdentifierExtractor extracts the limited principal from a Gin context.
// Return empty string if unknown.
type IdentifierExtractor func(c *gongin.Context) string

// Config holds middleware configuration.
type Config struct {
	// Limiter is the rate limiter instance (required).
	Limiter *ratelimit.Limiter

	// GetTenantID extracts the tenant ID from the context (required).
	GetTenantID TenantExtractor

	// GetIdentifier extracts the limited principal (required).
	GetIdentifier IdentifierExtractor

	// RateType names the limited operation class, e.g. "api" or "sync".
	RateType string

	// Limit is the limit to enforce.
	Limit ratelimit.Limit

	// OnUnidentified is called when tenant or identifier cannot be
	// extracted. If nil, aborts with 401 Unauthorized.
	OnUnidentified func(c *gongin.Context)

	// OnDenied is called when the limit is exceeded.
	// If nil, aborts with a 429 JSON body carrying retry_after_seconds.
	OnDenied func(c *gongin.Context, result *ratelimit.Result)
}

// Middleware creates a Gin middleware that enforces a rate limit.
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Limiter == nil {
		panic("fincore/gin: Config.Limiter is required")
	}
	if cfg.GetTenantID == nil {
		panic("fincore/gin: Config.GetTenantID is required")
	}
	if cfg.GetIdentifier == nil {
		panic("fincore/gin: Config.GetIdentifier is required")
	}

	return func(c *gongin.Context) {
		tenantID := cfg.GetTenantID(c)
		identifier := cfg.GetIdentifier(c)
		if tenantID == "" || identifier == "" {
			if cfg.OnUnidentified != nil {
				cfg.OnUnidentified(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
			}
			return
		}

		allowed, result, err := cfg.Limiter.Check(c.Request.Context(), tenantID, identifier, cfg.RateType, cfg.Limit)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gongin.H{"error": "internal error"})
			return
		}

		setHeaders(c, result)

		if !allowed {
			if cfg.OnDenied != nil {
				cfg.OnDenied(c, result)
			} else {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gongin.H{
					"error":               "rate limit exceeded",
					"retry_after_seconds": int64(result.RetryAfter.Seconds()),
				})
			}
			return
		}

		c.Next()
	}
}

func setHeaders(c *gongin.Context, result *ratelimit.Result) {
	if result == nil {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.ResetTime.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
	}
	if !result.Allowed && result.RetryAfter > 0 {
		secs := int64(result.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
	}
}
