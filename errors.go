package tessera

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for common failure scenarios
var (
	// ErrAuthRequired is returned when the session cannot be recovered and the
	// caller must re-authenticate.
	ErrAuthRequired = errors.New("tessera: authentication required")

	// ErrRetriesExhausted wraps the last observed failure after the configured
	// retry attempts are used up.
	ErrRetriesExhausted = errors.New("tessera: retries exhausted")
)

// APIError is the single error shape every terminal failure is normalized to
// before it crosses the pipeline boundary. Message is safe to show to users;
// Status, Code and Field are preserved for programmatic branching and logging.
// An APIError is never mutated after construction.
type APIError struct {
	Message string
	Status  int
	Code    string
	Field   string
	cause   error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches two APIErrors on Code when both carry one, falling back to
// Status. This makes errors.Is usable with lightweight target values like
// &APIError{Status: 404}.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return t.Status != 0 && e.Status == t.Status
}

// IsAuthError reports whether err represents a terminal authentication
// failure: the credential pair has been cleared and the user must sign in
// again.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized
	}
	return false
}

// IsTransient reports whether err represents a failure that might succeed on
// retry: network errors, non-auth 5xx responses, and rate limiting (429).
func IsTransient(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == 0 {
		// No response was received; network failures are transient.
		return apiErr.cause != nil
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
}

// errorEnvelope covers the backend's structured error body:
//
//	{"error": {"code": "RATE_LIMIT_EXCEEDED", "message": "...", "field": "..."}}
//
// plus the flat {"detail": "...", "code": "..."} shape the auth layer emits.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// parseAPIError builds the normalized error for a non-2xx response body.
// Unrecognized bodies fall back to a generic per-status message.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status:  status,
		Message: genericMessage(status),
	}

	if len(body) == 0 {
		return apiErr
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		switch {
		case env.Error != nil && env.Error.Message != "":
			apiErr.Message = env.Error.Message
			apiErr.Code = env.Error.Code
			apiErr.Field = env.Error.Field
			return apiErr
		case env.Detail != "":
			apiErr.Message = env.Detail
			apiErr.Code = env.Code
			return apiErr
		}
	}

	// DRF-style field validation errors: {"mobile_number": ["This field ..."]}.
	var fields map[string][]string
	if err := json.Unmarshal(body, &fields); err == nil {
		for field, msgs := range fields {
			if len(msgs) == 0 {
				continue
			}
			apiErr.Field = field
			apiErr.Message = msgs[0]
			return apiErr
		}
	}

	return apiErr
}

func genericMessage(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "Your session has expired. Please sign in again."
	case status == http.StatusForbidden:
		return "You do not have permission to perform this action."
	case status == http.StatusNotFound:
		return "The requested resource was not found."
	case status == http.StatusTooManyRequests:
		return "Too many requests. Please try again shortly."
	case status >= 500:
		return "Something went wrong on our end. Please try again."
	default:
		return "The request could not be completed."
	}
}

// genericizeServerError rewrites a non-auth 5xx error with a display-safe
// message, keeping the server's own wording on the cause chain and the
// status/code for diagnostics. APIErrors are immutable, so a new value is
// returned.
func genericizeServerError(apiErr *APIError) *APIError {
	generic := genericMessage(apiErr.Status)
	if apiErr.Message == generic {
		return apiErr
	}
	return &APIError{
		Message: generic,
		Status:  apiErr.Status,
		Code:    apiErr.Code,
		Field:   apiErr.Field,
		cause:   errors.New(apiErr.Message),
	}
}

// authErrorCodes are the structured codes the backend uses for token
// problems. These take precedence over the message heuristic below.
var authErrorCodes = map[string]bool{
	"token_not_valid":       true,
	"TOKEN_EXPIRED":         true,
	"INVALID_TOKEN":         true,
	"AUTHENTICATION_FAILED": true,
	"AUTHENTICATION_ERROR":  true,
}

// isAuthFailure classifies a response as an authentication failure. 401 is
// always one. Some backend deployments surface token problems as 500s; those
// are matched on the structured error code first, then on message wording.
// The wording fallback is fragile (it breaks on rephrased or localized
// messages) and exists only for backends that predate structured codes.
func isAuthFailure(status int, apiErr *APIError) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status != http.StatusInternalServerError || apiErr == nil {
		return false
	}
	if authErrorCodes[apiErr.Code] {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	if !strings.Contains(msg, "token") {
		return false
	}
	return strings.Contains(msg, "expired") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "unauthorized")
}
