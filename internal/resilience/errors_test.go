package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("storage overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
	if !IsTransient(fmt.Errorf("upload: %w", err)) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilAndPlain(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
	if IsTransient(errors.New("duplicate key value violates unique constraint")) {
		t.Error("plain error should not be transient")
	}
}

func TestIsTransient_StoreErrorsNotClassified(t *testing.T) {
	// Store writes retry every error through RetryAll; only fetch failures
	// are classified.
	if IsTransient(errors.New("sqlite: database is locked (5)")) {
		t.Error("store errors should not be classified as transient")
	}
	if !RetryAll(errors.New("sqlite: database is locked (5)")) {
		t.Error("RetryAll should retry any error")
	}
}

func TestIsTransient_Network(t *testing.T) {
	if !IsTransient(fmt.Errorf("write tcp: %w", syscall.ECONNRESET)) {
		t.Error("ECONNRESET should be transient")
	}
	if !IsTransient(&net.DNSError{IsTimeout: true, Err: "timeout"}) {
		t.Error("network timeout should be transient")
	}
	if !IsTransient(errors.New("read body: unexpected EOF")) {
		t.Error("truncated response should be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}
