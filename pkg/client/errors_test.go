package client

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{401, ErrorClassAuth},
		{403, ErrorClassAuth},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := ClassifyStatus(tt.status); got != tt.expected {
				t.Errorf("ClassifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassClient, false},
		{ErrorClassAuth, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := Retryable(tt.class); got != tt.expected {
				t.Errorf("Retryable(%q) = %v, want %v", tt.class, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			err: &APIError{
				ErrorClass: ErrorClassNetwork,
				Route:      "buyers",
				Message:    "request failed",
				Err:        io.EOF,
			},
			expected: "ordercloud network error (status 0) on buyers: request failed: EOF",
		},
		{
			name: "error without wrapped error",
			err: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Route:      "products",
				Message:    "boom",
			},
			expected: "ordercloud server error (status 500) on products: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	err := fmt.Errorf("list buyers: %w", &APIError{ErrorClass: ErrorClassNetwork, Err: io.ErrUnexpectedEOF})

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is did not find the wrapped cause")
	}
	if ClassOf(err) != ErrorClassNetwork {
		t.Errorf("ClassOf() = %q, want network", ClassOf(err))
	}
	if ClassOf(io.EOF) != "" {
		t.Error("ClassOf(non-API error) should be empty")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body     string
		expected string
	}{
		{`{"Errors":[{"ErrorCode":"NotFound","Message":"missing"}]}`, "NotFound: missing"},
		{`{"Errors":[]}`, "404 Not Found"},
		{`not json`, "404 Not Found"},
	}
	for _, tt := range tests {
		if got := errorMessage("404 Not Found", []byte(tt.body)); got != tt.expected {
			t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.expected)
		}
	}
}
