package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("rate limited"), 429)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("upstream down"), 503)
	wrapped := eris.Wrap(inner, "yahoo: fetch chart")
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_PlainError(t *testing.T) {
	if IsTransient(errors.New("unknown symbol")) {
		t.Error("expected plain error to be permanent")
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	cases := []struct {
		msg       string
		transient bool
	}{
		{"read tcp: connection reset by peer", true},
		{"dial tcp: i/o timeout", true},
		{"lookup api.example.com: no such host", true},
		{"invalid ticker", false},
	}
	for _, tc := range cases {
		if got := IsTransient(fmt.Errorf("%s", tc.msg)); got != tc.transient {
			t.Errorf("IsTransient(%q) = %v, want %v", tc.msg, got, tc.transient)
		}
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !RetryableStatus(code) {
			t.Errorf("expected %d to be retryable", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 404} {
		if RetryableStatus(code) {
			t.Errorf("expected %d to not be retryable", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	te := NewTransientError(inner, 500)
	if !errors.Is(te, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
	if te.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", te.StatusCode)
	}
}
