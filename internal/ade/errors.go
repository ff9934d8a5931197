package ade

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"adekit/internal/domain"
)

// Category groups API failures the way callers react to them.
type Category string

const (
	CategoryAuth       Category = "authentication"
	CategoryParse      Category = "parse"
	CategoryExtraction Category = "extraction"
	CategoryRateLimit  Category = "rate_limit"
	CategoryServer     Category = "server"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Category   Category
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ade API error (status %d, %s): %s", e.StatusCode, e.Category, e.Message)
}

// Unwrap exposes the domain sentinel of the error's category.
func (e *APIError) Unwrap() error {
	switch e.Category {
	case CategoryAuth:
		return domain.ErrAuthentication
	case CategoryParse:
		return domain.ErrDocumentParse
	case CategoryExtraction:
		return domain.ErrExtraction
	case CategoryRateLimit:
		return domain.ErrRateLimited
	}
	return nil
}

// RateLimitError indicates the API returned HTTP 429, or that the client's
// circuit is open after an earlier 429.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
	// Advised is set when RetryAfter came from the server's Retry-After
	// header rather than the default.
	Advised    bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// NewRateLimitError creates a RateLimitError. If retryAfterSecs is 0, defaults to 60s.
func NewRateLimitError(err error, retryAfterSecs int) *RateLimitError {
	advised := retryAfterSecs > 0
	if !advised {
		retryAfterSecs = 60
	}
	return &RateLimitError{
		Err:        err,
		RetryAfter: time.Duration(retryAfterSecs) * time.Second,
		Advised:    advised,
	}
}

// JobFailedError is returned when an asynchronous parse job ends failed or cancelled.
type JobFailedError struct {
	JobID  string
	Status domain.RemoteJobStatus
	Reason string
}

func (e *JobFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("parse job %s %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("parse job %s %s: %s", e.JobID, e.Status, e.Reason)
}

func (e *JobFailedError) Unwrap() error {
	return domain.ErrDocumentParse
}

// SchemaViolationError is returned alongside a partial extraction result when
// the API reports that its output does not satisfy the requested schema.
type SchemaViolationError struct {
	Message string
}

func (e *SchemaViolationError) Error() string {
	return "extraction violates schema: " + e.Message
}

func (e *SchemaViolationError) Unwrap() error {
	return domain.ErrExtraction
}

// ParseRetryAfterHeader parses a Retry-After header value into seconds.
// Returns 0 if the value is empty or not a valid integer.
func ParseRetryAfterHeader(val string) int {
	if val == "" {
		return 0
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return secs
}

// classify maps a status code on a given endpoint family to a Category.
func classify(status int, family endpointFamily) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status >= 500:
		return CategoryServer
	case family == familyExtract:
		return CategoryExtraction
	default:
		return CategoryParse
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
