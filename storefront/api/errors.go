package api

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError reports a request that could not complete.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("storefront api: %s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Code implements the coder interface used by handler summaries.
func (e *NetworkError) Code() string { return "network_failure" }

// APIError reports a request that completed with a non-success status.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("storefront api: %s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Message)
	}
	return fmt.Sprintf("storefront api: %s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Code implements the coder interface used by handler summaries.
func (e *APIError) Code() string { return "api_failure" }

// Unauthorized reports whether the backend rejected the init data.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// UserMessage returns the backend-provided message carried by err, if any.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
