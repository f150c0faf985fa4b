package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		err       *Error
		retryable bool
	}{
		{Transient("upstream timeout", errors.New("503")), true},
		{Unavailable("circuit open"), true},
		{Persistence("write failed", errors.New("conn reset")), true},
		{Internal("boom"), true},
		{Validation("bad payload"), false},
		{NotFound("missing"), false},
		{Fatal("retry budget spent", errors.New("timeout")), false},
	}
	for _, tc := range cases {
		if got := tc.err.Retryable(); got != tc.retryable {
			t.Fatalf("kind %d: expected retryable=%v, got %v", tc.err.Kind, tc.retryable, got)
		}
	}
}

func TestGetKindUnwrapsChain(t *testing.T) {
	inner := Transient("ai call failed", errors.New("dial tcp"))
	wrapped := fmt.Errorf("processing turn 2: %w", inner)

	if GetKind(wrapped) != KindTransient {
		t.Fatalf("expected transient kind through the chain, got %v", GetKind(wrapped))
	}
	if !Is(wrapped, KindTransient) {
		t.Fatalf("expected Is to match transient")
	}
	if Is(wrapped, KindValidation) {
		t.Fatalf("Is must not match a different kind")
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain errors must map to unknown")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{NotFound("missing"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("dup"), http.StatusConflict},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{Transient("upstream", nil), http.StatusBadGateway},
		{Unavailable("circuit open"), http.StatusServiceUnavailable},
		{Internal("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.status {
			t.Fatalf("kind %d: expected %d, got %d", tc.err.Kind, tc.status, got)
		}
	}
}

func TestErrorStringIncludesOp(t *testing.T) {
	err := Persistence("insert failed", errors.New("deadlock")).WithOp("repository.CompleteTurn")
	if err.Error() != "repository.CompleteTurn: insert failed" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("expected unwrap to expose the cause")
	}
}
