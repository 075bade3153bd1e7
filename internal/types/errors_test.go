package types

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingTemplate, http.StatusBadRequest},
		{ErrCodeValidationInvalidFormat, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeTemplateRenderFailed, http.StatusBadRequest},
		{ErrCodeNotFoundTemplate, http.StatusNotFound},
		{ErrCodeQuotaExceeded, http.StatusTooManyRequests},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeConvertNotSupported, http.StatusNotImplemented},
		{ErrCodeConvertTimeout, http.StatusGatewayTimeout},
		{ErrCodeEngineLaunchFailed, http.StatusBadGateway},
		{ErrCodeEngineUnavailable, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("mystery_code"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s: HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	appErr := NewAppError(ErrCodeInternalUnexpected, "something broke", inner)

	if appErr.Error() != "internal_unexpected_error: something broke" {
		t.Errorf("Error() = %q", appErr.Error())
	}
	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeNotFoundTemplate, "missing", nil, map[string]any{"template_id": "x"})
	derived := base.WithDetails(map[string]any{"caller": "demo"})

	if len(base.Details) != 1 {
		t.Error("WithDetails must not mutate the original")
	}
	if derived.Details["template_id"] != "x" || derived.Details["caller"] != "demo" {
		t.Errorf("merged details = %v", derived.Details)
	}
}
