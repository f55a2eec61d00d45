// Package ratelimit paces every request the exporter sends to the platform.
//
// The Scheduler enforces a global minimum spacing between request starts and
// a ceiling on requests in flight, admitting callers in FIFO order. The
// Tracker remembers server throttle signals (429 with Retry-After) so that
// new admissions wait out the server's window instead of piling on.
package ratelimit

import (
	"time"
)

// Redis keys for throttle state storage. The scope (usually the API host)
// is appended so separate platforms do not share windows.
const (
	RedisKeyBlockedUntil = "ocexport:throttle:blocked_until"
	RedisKeyThrottles    = "ocexport:throttle:throttles"
	RedisKeyLastUpdate   = "ocexport:throttle:last_update"
)

const (
	// DefaultRetryAfter is used when a throttle response carries no
	// parsable Retry-After header.
	DefaultRetryAfter = 5 * time.Second

	// MaxRetryAfter caps how long a single throttle signal can block.
	MaxRetryAfter = 2 * time.Minute
)

// ThrottleState is the last throttle signal observed from the server.
type ThrottleState struct {
	// BlockedUntil is when the server said it will accept requests again.
	BlockedUntil time.Time `json:"blocked_until"`

	// Throttles counts throttle responses seen in this state's lifetime.
	Throttles int `json:"throttles"`

	// LastUpdate is when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *ThrottleState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsBlocked returns true while the server's throttle window is open.
func (s *ThrottleState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining throttle window.
// Returns 0 if the window has already passed.
func (s *ThrottleState) TimeUntilUnblocked() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}
