package ratelimit

import (
	"time"
)

// Strategy selects the rate limiting algorithm.
type Strategy string

const (
	// StrategyFixedWindow counts requests in aligned windows. Cheapest,
	// but bursts at a window boundary can admit up to twice the limit
	// across the edge.
	StrategyFixedWindow Strategy = "fixed_window"

	// StrategySlidingWindow tracks individual request timestamps in a
	// sorted set. Accurate at the cost of O(log n) per check and one
	// stored member per admitted request.
	StrategySlidingWindow Strategy = "sliding_window"

	// StrategyTokenBucket refills a fractional token balance lazily on
	// each check. Allows controlled bursts up to the bucket capacity.
	StrategyTokenBucket Strategy = "token_bucket"
)

// Limit describes one rate limit. Limit/Window configure the window
// strategies; Capacity/RefillRate configure the token bucket.
type Limit struct {
	Strategy Strategy

	// Limit is the number of requests allowed per Window
	// (fixed and sliding window strategies).
	Limit int

	// Window is the time window for the window strategies.
	Window time.Duration

	// Capacity is the maximum token balance (token bucket).
	Capacity float64

	// RefillRate is tokens added per second (token bucket).
	RefillRate float64

	// Requested is the number of tokens this check consumes
	// (token bucket, default 1).
	Requested float64
}

// Result carries the decision detail for one check. Middleware turns it
// into X-RateLimit-* response headers.
type Result struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Limit is the configured ceiling (requests for window strategies,
	// capacity for the token bucket).
	Limit int

	// Remaining is the number of requests left in the current window,
	// or the whole tokens left in the bucket.
	Remaining int

	// ResetTime is when the current window resets or the bucket refills.
	ResetTime time.Time

	// RetryAfter is how long a denied caller should wait. Zero when allowed.
	RetryAfter time.Duration

	// Tokens is the exact fractional balance after the check
	// (token bucket only).
	Tokens float64

	// FailedOpen is set when the backing store failed and the request was
	// admitted by policy rather than by counting.
	FailedOpen bool

	// Err holds the store error behind a fail-open decision.
	Err error
}
