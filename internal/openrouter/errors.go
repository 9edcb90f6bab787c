package openrouter

import "fmt"

// RateLimitError is returned when every retry against a 429 has been spent.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("openrouter: 429 Too Many Requests after %d retries", e.Attempts)
}

// HTTPError represents a non-429 non-success HTTP outcome. It is never
// retried: a 500 or 400 is something retries cannot fix.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openrouter: HTTP %d: %s", e.StatusCode, e.Body)
}

// MalformedResponseError means the API answered with a success status but the
// body did not contain the expected choices/message/content shape.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("openrouter: unexpected response format: %s", e.Reason)
}

// ModelListError wraps any failure while fetching the model catalog.
type ModelListError struct {
	Err error
}

func (e *ModelListError) Error() string {
	return fmt.Sprintf("openrouter: failed to fetch models: %v", e.Err)
}

func (e *ModelListError) Unwrap() error { return e.Err }
