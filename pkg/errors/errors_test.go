package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(ErrorTypeCorruptState, "status file is garbage")
	if plain.Error() != "corrupt_state error: status file is garbage" {
		t.Errorf("Unexpected message: %q", plain.Error())
	}

	cause := errors.New("connection reset")
	wrapped := Transport("upload failed", cause)
	if wrapped.Error() != "transport error: upload failed: connection reset" {
		t.Errorf("Unexpected message: %q", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("broken pipe")
	err := Wrap(ErrorTypeTransport, "stream died", cause)

	if !errors.Is(err, cause) {
		t.Error("Wrapped cause should survive errors.Is")
	}

	// typed errors stay recognizable through further fmt wrapping
	outer := fmt.Errorf("attempt 3: %w", err)
	var typed *Error
	if !errors.As(outer, &typed) {
		t.Fatal("errors.As should find the typed error")
	}
	if typed.Type != ErrorTypeTransport {
		t.Errorf("Type: got %s, want %s", typed.Type, ErrorTypeTransport)
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{NotFound("/tmp/cp.h5"), ErrorTypeNotFound},
		{Transport("x", errors.New("y")), ErrorTypeTransport},
		{New(ErrorTypeDelete, "x"), ErrorTypeDelete},
		{errors.New("plain"), ErrorTypeUnknown},
		{fmt.Errorf("outer: %w", NotFound("/x")), ErrorTypeNotFound},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.err); got != tt.want {
			t.Errorf("TypeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrorTypeTransport) {
		t.Error("Transport errors are transient and must be retryable")
	}
	for _, et := range []ErrorType{ErrorTypeNotFound, ErrorTypeCorruptState, ErrorTypeDelete, ErrorTypeUnknown} {
		if IsRetryable(et) {
			t.Errorf("%s must not be retryable", et)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NotFound("/x")) {
		t.Error("IsNotFound should match")
	}
	if IsNotFound(Transport("x", nil)) {
		t.Error("IsNotFound should not match transport errors")
	}
	if !IsTransport(Transport("x", nil)) {
		t.Error("IsTransport should match")
	}
}
