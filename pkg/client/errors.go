package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of failed requests.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than auth and throttling.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 throttle responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// ErrNoToken is returned when the token source has no credential yet.
var ErrNoToken = errors.New("no access token available")

// APIError is a failed list request.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Route      string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ordercloud %s error (status %d) on %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.Route, e.Message, e.Err)
	}
	return fmt.Sprintf("ordercloud %s error (status %d) on %s: %s",
		e.ErrorClass, e.StatusCode, e.Route, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status to an error class. Non-error statuses
// return "".
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// ClassOf returns the class of an APIError anywhere in err's chain.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}

// Retryable reports whether a request failing with class may be repeated
// without changing its outcome. Client and auth errors are never retried.
func Retryable(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// errorBody is the platform's error envelope.
type errorBody struct {
	Errors []struct {
		ErrorCode string `json:"ErrorCode"`
		Message   string `json:"Message"`
	} `json:"Errors"`
}

// errorMessage extracts the first platform error from body, falling back
// to the status text.
func errorMessage(status string, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Errors) > 0 {
		first := eb.Errors[0]
		if first.ErrorCode != "" {
			return first.ErrorCode + ": " + first.Message
		}
		return first.Message
	}
	return status
}
