package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreRequired is returned by New when no keystore is provided.
	ErrStoreRequired = errors.New("ratelimit: keystore is required")

	// ErrInvalidLimit is returned when a Limit is misconfigured
	// (unknown strategy, non-positive limit, window, capacity or rate).
	ErrInvalidLimit = errors.New("ratelimit: invalid limit configuration")
)

// ExceededError is returned by Enforce when a request is denied. It
// carries RetryAfter for the caller to surface as a Retry-After header.
type ExceededError struct {
	TenantID   string
	Identifier string
	RateType   string
	RetryAfter time.Duration
	Result     *Result
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("ratelimit: %s exceeded for tenant %s identifier %s (retry after %s)",
		e.RateType, e.TenantID, e.Identifier, e.RetryAfter)
}
