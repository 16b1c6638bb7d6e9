package echo

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/fincore/keystore/memory"
	"github.com/centsible/fincore/pkg/ratelimit"
)

func newEcho(t *testing.T, limit int) *echo.Echo {
	t.Helper()

	limiter, err := ratelimit.New(ratelimit.Config{Store: memory.New()})
	require.NoError(t, err)

	e := echo.New()
	e.Use(Middleware(Config{
		Limiter:       limiter,
		GetTenantID:   func(c echo.Context) string { return c.Request().Header.Get("X-Tenant-ID") },
		GetIdentifier: func(c echo.Context) string { return c.Request().Header.Get("X-User-ID") },
		RateType:      "api",
		Limit: ratelimit.Limit{
			Strategy: ratelimit.StrategyFixedWindow,
			Limit:    limit,
			Window:   time.Minute,
		},
	}))
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func doRequest(e *echo.Echo, tenantID, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareAllowsUnderLimit(t *testing.T) {
	e := newEcho(t, 2)

	rec := doRequest(e, "t1", "user-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestMiddlewareDeniesOverLimit(t *testing.T) {
	e := newEcho(t, 1)

	assert.Equal(t, http.StatusOK, doRequest(e, "t1", "user-1").Code)

	rec := doRequest(e, "t1", "user-1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "retry_after_seconds")
}

func TestMiddlewareIsolatesTenants(t *testing.T) {
	e := newEcho(t, 1)

	assert.Equal(t, http.StatusOK, doRequest(e, "t1", "user-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(e, "t1", "user-1").Code)
	assert.Equal(t, http.StatusOK, doRequest(e, "t2", "user-1").Code)
}

func TestMiddlewareRejectsUnidentifiedRequests(t *testing.T) {
	e := newEcho(t, 1)

	assert.Equal(t, http.StatusUnauthorized, doRequest(e, "", "user-1").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(e, "t1", "").Code)
}

func TestMiddlewarePanicsWithoutLimiter(t *testing.T) {
	assert.Panics(t, func() {
		Middleware(Config{
			GetTenantID:   func(echo.Context) string { return "t1" },
			GetIdentifier: func(echo.Context) string { return "u1" },
		})
	})
}
