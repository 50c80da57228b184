package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  NotFound("ROW_NOT_FOUND", "row not found"),
			want: "ROW_NOT_FOUND: row not found",
		},
		{
			name: "with wrapped error",
			err:  Transient("upsert index row", fmt.Errorf("conn reset")),
			want: "STORE_UNAVAILABLE: upsert index row: conn reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, ErrTransient, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestAppError_KindMatching(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"not found", ErrRowNotFoundf("product_stats", 7), ErrNotFound},
		{"transient", Transient("drain", fmt.Errorf("timeout")), ErrTransient},
		{"configuration", ErrIndexNotConfiguredf("missing"), ErrConfiguration},
		{"invalid mode is configuration", ErrInvalidModef("hourly"), ErrConfiguration},
		{"stale is transient", ErrIndexStalef("product_stats", []int64{7}, true, fmt.Errorf("boom")), ErrTransient},
		{"confirmation is invalid input", ErrConfirmationRequiredf("product_stats"), ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.kind) {
				t.Errorf("errors.Is(%v, %v) = false, want true", wrapped, tt.kind)
			}
		})
	}

	if IsNotFound(Transient("x", nil)) {
		t.Error("transient error must not match ErrNotFound")
	}
	if !IsConfiguration(ErrInvalidModef("x")) {
		t.Error("IsConfiguration should match invalid mode")
	}
	if !IsTransient(Transient("x", nil)) {
		t.Error("IsTransient should match Transient()")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NotFound("NOT_FOUND", "resource not found")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want NOT_FOUND", got.Code)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound},
		{"BadRequest", BadRequest("BR", "bad request"), http.StatusBadRequest},
		{"Conflict", Conflict("CF", "conflict"), http.StatusConflict},
		{"Configuration", Configuration("CE", "config"), http.StatusUnprocessableEntity},
		{"Transient", Transient("op", nil), http.StatusServiceUnavailable},
		{"Confirmation", ErrConfirmationRequiredf("x"), http.StatusPreconditionRequired},
		{"Busy", ErrIndexBusyf("x"), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}
