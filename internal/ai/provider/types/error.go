package types

import "fmt"

// ProviderError wraps a failure from one backend with enough context to
// decide whether the fallback chain should try the next provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Provider, e.Message, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another provider (or a retry) could plausibly
// succeed. Client-side errors like bad credentials are not retryable.
func (e *ProviderError) IsRetryable() bool {
	switch e.StatusCode {
	case 400, 401, 403, 404, 413:
		return false
	default:
		return true
	}
}

// NewProviderError creates a ProviderError wrapping err.
func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}
