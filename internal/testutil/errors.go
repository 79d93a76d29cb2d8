package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

const (
	ErrorCodeValidation         = "VALIDATION_ERROR"
	ErrorCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrorCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrorCodeInvalidToken       = "INVALID_TOKEN"
	ErrorCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func AssertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d (body %s)", expectedStatus, resp.Code, resp.Body.String())
	}

	var errResp errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}

	if errResp.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q", expectedCode, errResp.Code)
	}
}

func AssertHTTPStatus(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d (body %s)", expectedStatus, resp.Code, resp.Body.String())
	}
}
