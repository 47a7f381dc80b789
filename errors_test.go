package tessera

import (
	"errors"
	"net/http"
	"testing"
)

func TestParseAPIErrorEnvelope(t *testing.T) {
	body := []byte(`{"error": {"code": "RATE_LIMIT_EXCEEDED", "message": "Rate limit exceeded. Maximum 10 requests per 60 seconds."}}`)
	apiErr := parseAPIError(http.StatusTooManyRequests, body)
	if apiErr.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Status != 429 {
		t.Errorf("Status = %d", apiErr.Status)
	}
	if apiErr.Message == "" || apiErr.Message == genericMessage(429) {
		t.Errorf("Message = %q, want server message", apiErr.Message)
	}
}

func TestParseAPIErrorDetail(t *testing.T) {
	body := []byte(`{"detail": "Token is invalid or expired", "code": "token_not_valid"}`)
	apiErr := parseAPIError(http.StatusUnauthorized, body)
	if apiErr.Message != "Token is invalid or expired" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Code != "token_not_valid" {
		t.Errorf("Code = %q", apiErr.Code)
	}
}

func TestParseAPIErrorFieldMap(t *testing.T) {
	body := []byte(`{"otp_code": ["Invalid or expired OTP"]}`)
	apiErr := parseAPIError(http.StatusBadRequest, body)
	if apiErr.Field != "otp_code" {
		t.Errorf("Field = %q", apiErr.Field)
	}
	if apiErr.Message != "Invalid or expired OTP" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestParseAPIErrorUnrecognizedBody(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   []byte
	}{
		{"empty body", 404, nil},
		{"html body", 502, []byte("<html>Bad Gateway</html>")},
		{"unexpected json", 400, []byte(`[1,2,3]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := parseAPIError(tt.status, tt.body)
			if apiErr.Message != genericMessage(tt.status) {
				t.Errorf("Message = %q, want generic", apiErr.Message)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
		})
	}
}

func TestGenericizeServerError(t *testing.T) {
	orig := parseAPIError(500, []byte(`{"error": {"code": "DB_DOWN", "message": "psql: connection refused"}}`))
	generic := genericizeServerError(orig)

	if generic.Message != genericMessage(500) {
		t.Errorf("Message = %q, want display-safe message", generic.Message)
	}
	if generic.Code != "DB_DOWN" || generic.Status != 500 {
		t.Errorf("diagnostics lost: %+v", generic)
	}
	if generic.Unwrap() == nil {
		t.Error("original wording missing from cause chain")
	}
	// Errors are immutable after construction.
	if orig.Message == generic.Message {
		t.Error("original error mutated")
	}
}

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		apiErr *APIError
		want   bool
	}{
		{"plain 401", 401, &APIError{Status: 401}, true},
		{"500 with structured code", 500, &APIError{Status: 500, Code: "TOKEN_EXPIRED", Message: "whatever"}, true},
		{"500 token expired wording", 500, &APIError{Status: 500, Message: "Token has expired"}, true},
		{"500 token invalid wording", 500, &APIError{Status: 500, Message: "invalid token supplied"}, true},
		{"500 unrelated", 500, &APIError{Status: 500, Message: "database connection lost"}, false},
		{"500 mentions token only", 500, &APIError{Status: 500, Message: "token bucket overflow"}, false},
		{"403 is not auth-refreshable", 403, &APIError{Status: 403, Message: "token expired"}, false},
		{"400 client error", 400, &APIError{Status: 400}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAuthFailure(tt.status, tt.apiErr); got != tt.want {
				t.Errorf("isAuthFailure(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", &APIError{Message: "net", cause: errors.New("refused")}, true},
		{"rate limited", &APIError{Status: 429}, true},
		{"server error", &APIError{Status: 503}, true},
		{"client error", &APIError{Status: 400}, false},
		{"auth error", &APIError{Status: 401}, false},
		{"plain error", errors.New("nope"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIErrorIs(t *testing.T) {
	err := &APIError{Message: "nope", Status: 404, Code: "NOT_FOUND"}
	if !errors.Is(err, &APIError{Code: "NOT_FOUND"}) {
		t.Error("code match failed")
	}
	if !errors.Is(err, &APIError{Status: 404}) {
		t.Error("status match failed")
	}
	if errors.Is(err, &APIError{Code: "RATE_LIMIT_EXCEEDED"}) {
		t.Error("unexpected code match")
	}
}

func TestAPIErrorErrorString(t *testing.T) {
	err := &APIError{Message: "Rate limit exceeded", Status: 429, Code: "RATE_LIMIT_EXCEEDED"}
	got := err.Error()
	if got == "" || got == "Rate limit exceeded" {
		t.Errorf("Error() = %q, want code and status included", got)
	}

	wrapped := &APIError{Message: "boom", cause: errors.New("inner")}
	if wrapped.Unwrap() == nil {
		t.Error("Unwrap() lost the cause")
	}
}
