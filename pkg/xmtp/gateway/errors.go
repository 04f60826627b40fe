package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound matches any *APIError with status 404.
var ErrNotFound = errors.New("gateway: not found")

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "gateway error"
	}
	if e.Message == "" {
		return fmt.Sprintf("gateway: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: status=%d error=%s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
