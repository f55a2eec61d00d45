package ratelimit

import (
	"testing"
	"time"
)

func TestThrottleState_IsBlocked(t *testing.T) {
	tests := []struct {
		name         string
		blockedUntil time.Time
		expected     bool
	}{
		{
			name:         "window open",
			blockedUntil: time.Now().Add(30 * time.Second),
			expected:     true,
		},
		{
			name:         "window passed",
			blockedUntil: time.Now().Add(-30 * time.Second),
			expected:     false,
		},
		{
			name:     "never throttled",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ThrottleState{BlockedUntil: tt.blockedUntil}
			if got := state.IsBlocked(); got != tt.expected {
				t.Errorf("IsBlocked() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestThrottleState_TimeUntilUnblocked(t *testing.T) {
	tests := []struct {
		name         string
		blockedUntil time.Time
		expected     time.Duration
		tolerance    time.Duration
	}{
		{
			name:         "window in future",
			blockedUntil: time.Now().Add(5 * time.Minute),
			expected:     5 * time.Minute,
			tolerance:    1 * time.Second,
		},
		{
			name:         "window already passed",
			blockedUntil: time.Now().Add(-5 * time.Minute),
			expected:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ThrottleState{BlockedUntil: tt.blockedUntil}
			result := state.TimeUntilUnblocked()

			diff := result - tt.expected
			if diff < 0 {
				diff = -diff
			}
			if diff > tt.tolerance {
				t.Errorf("TimeUntilUnblocked() = %v, want approximately %v (tolerance %v)", result, tt.expected, tt.tolerance)
			}
		})
	}
}

func TestThrottleState_IsStale(t *testing.T) {
	state := &ThrottleState{LastUpdate: time.Now().Add(-2 * time.Minute)}

	if !state.IsStale(time.Minute) {
		t.Error("IsStale(1m) = false, want true for 2m old state")
	}
	if state.IsStale(5 * time.Minute) {
		t.Error("IsStale(5m) = true, want false for 2m old state")
	}
}
