package llm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrorType indicates which configuration field most likely caused the error.
type ErrorType string

const (
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeResponse ErrorType = "response"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
	Endpoint   string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, "endpoint="+host)
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

func (e *Error) withContext(model, endpoint string) *Error {
	e.Model = model
	e.Endpoint = endpoint
	return e
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// endpointHost keeps only the host so paths and query keys never reach logs.
func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

type classification struct {
	match     func(raw, lower string) bool
	errType   ErrorType
	message   string
	retryable bool
}

var classifications = []classification{
	{
		match: func(raw, lower string) bool {
			return strings.Contains(raw, "401") || strings.Contains(lower, "unauthorized") ||
				strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication_error")
		},
		errType: ErrorTypeAuth, message: "authentication failed",
	},
	{
		match: func(_, lower string) bool {
			return strings.Contains(lower, "model") &&
				(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist"))
		},
		errType: ErrorTypeModel, message: "model not found",
	},
	{
		match:   func(raw, _ string) bool { return strings.Contains(raw, "404") },
		errType: ErrorTypeEndpoint, message: "endpoint not found",
	},
	{
		match: func(_, lower string) bool {
			return strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host")
		},
		errType: ErrorTypeEndpoint, message: "connection failed", retryable: true,
	},
	{
		match: func(_, lower string) bool {
			return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded")
		},
		errType: ErrorTypeEndpoint, message: "request timeout", retryable: true,
	},
	{
		match: func(raw, lower string) bool {
			return strings.Contains(raw, "429") || strings.Contains(lower, "rate limit") ||
				strings.Contains(lower, "overloaded")
		},
		errType: ErrorTypeUnknown, message: "rate limited", retryable: true,
	},
	{
		match: func(raw, _ string) bool {
			return strings.Contains(raw, "500") || strings.Contains(raw, "502") ||
				strings.Contains(raw, "503") || strings.Contains(raw, "504") || strings.Contains(raw, "529")
		},
		errType: ErrorTypeEndpoint, message: "server error", retryable: true,
	},
}

// ClassifyError categorizes a provider error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(raw, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	for _, c := range classifications {
		if c.match(raw, lower) {
			e := NewError(c.errType, c.message, c.retryable, err)
			e.StatusCode = statusCode
			return e
		}
	}

	e := NewError(ErrorTypeUnknown, "llm error", false, err)
	e.StatusCode = statusCode
	return e
}
