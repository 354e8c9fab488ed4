package completion

import (
	"fmt"

	"chatengine/internal/history"
)

type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []history.Message
}

// Result is the cleaned model text. Empty is set when the service returned no
// usable content; it is not an error.
type Result struct {
	Text             string
	Empty            bool
	PromptTokens     int
	CompletionTokens int
}

// UpstreamError is returned once retries are exhausted or the failure is not retryable.
type UpstreamError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion service failed with status %d after %d attempt(s): %v", e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("completion service failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) HTTPStatusCode() int {
	return e.StatusCode
}
