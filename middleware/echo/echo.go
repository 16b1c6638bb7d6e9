// Package echo provides Echo middleware for rate limit enforcement.
package echo

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/centsible/fincore/pkg/ratelimit"
)

// TenantExtractor extracts the tenant ID from an Echo context.
// Return empty string if the tenant cannot be determined.
type TenantExtractor func(c echo.Context) string

// IdentifierExtractor extracts the limited principal from an Echo
// context. Return empty string if unknown.
type IdentifierExtractor func(c echo.Context) string

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
	// extracted. If nil, returns 401 Unauthorized.
	OnUnidentified func(c echo.Context) error

	// OnDenied is called when the limit is exceeded.
	// If nil, returns a 429 JSON body carrying retry_after_seconds.
	OnDenied func(c echo.Context, result *ratelimit.Result) error
}

// Middleware creates an Echo middleware that enforces a rate limit.
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Limiter == nil {
		panic("fincore/echo: Config.Limiter is required")
	}
	if cfg.GetTenantID == nil {
		panic("fincore/echo: Config.GetTenantID is required")
	}
	if cfg.GetIdentifier == nil {
		panic("fincore/echo: Config.GetIdentifier is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := cfg.GetTenantID(c)
			identifier := cfg.GetIdentifier(c)
			if tenantID == "" || identifier == "" {
				if cfg.OnUnidentified != nil {
					return cfg.OnUnidentified(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			allowed, result, err := cfg.Limiter.Check(c.Request().Context(), tenantID, identifier, cfg.RateType, cfg.Limit)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}

			setHeaders(c, result)

			if !allowed {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, result)
				}
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":               "rate limit exceeded",
					"retry_after_seconds": int64(result.RetryAfter.Seconds()),
				})
			}

			return next(c)
		}
	}
}

func setHeaders(c echo.Context, result *ratelimit.Result) {
	if result == nil {
		return
	}
	h := c.Response().Header()
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
