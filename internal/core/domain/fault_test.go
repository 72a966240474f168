package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind FaultKind
	}{
		{"forbidden beats network", "HTTP 403: network unreachable", FaultPermission},
		{"forbidden word", "access forbidden for key", FaultPermission},
		{"not found", "requested resource not found (404)", FaultModelNotFound},
		{"unauthorized", "401 unauthorized", FaultAuthentication},
		{"authentication word", "authentication token rejected", FaultAuthentication},
		{"quota", "daily quota exhausted", FaultQuota},
		{"rate limit", "rate limit exceeded, slow down", FaultQuota},
		{"too many requests", "Too Many Requests", FaultQuota},
		{"timeout", "dial tcp: i/o timeout", FaultNetwork},
		{"connection", "connection refused", FaultNetwork},
		{"socket", "socket hang up", FaultNetwork},
		{"model word", "model is overloaded", FaultModelNotFound},
		{"bad request", "bad request: missing field", FaultModelNotFound},
		{"validation", "validation failed on payload", FaultValidation},
		{"invalid", "invalid argument supplied", FaultValidation},
		{"malformed", "malformed response body", FaultValidation},
		{"fallthrough", "something odd happened", FaultGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Classify(errors.New(tc.raw))
			if f.Kind != tc.kind {
				t.Fatalf("Classify(%q) kind = %s, want %s", tc.raw, f.Kind, tc.kind)
			}
		})
	}
}

func TestClassifyRateLimitIsRetryableQuota(t *testing.T) {
	f := Classify(errors.New("rate limit exceeded"))
	if f.Kind != FaultQuota {
		t.Fatalf("kind = %s, want %s", f.Kind, FaultQuota)
	}
	if !f.Retryable() {
		t.Fatal("quota fault must be retryable")
	}
}

func TestClassifyFaultPassthrough(t *testing.T) {
	orig := NewFault(FaultValidation, "image data is empty")
	wrapped := fmt.Errorf("edit image: %w", orig)
	if got := Classify(wrapped); got != orig {
		t.Fatalf("Classify() = %+v, want original fault", got)
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if f := Classify(context.DeadlineExceeded); f.Kind != FaultNetwork {
		t.Fatalf("deadline kind = %s, want %s", f.Kind, FaultNetwork)
	}
	if f := Classify(context.Canceled); f.Kind != FaultGeneral {
		t.Fatalf("canceled kind = %s, want %s", f.Kind, FaultGeneral)
	}
}

func TestRetryableExhaustive(t *testing.T) {
	want := map[FaultKind]bool{
		FaultNetwork:        true,
		FaultQuota:          true,
		FaultAuthentication: false,
		FaultPermission:     false,
		FaultModelNotFound:  false,
		FaultValidation:     false,
		FaultGeneral:        false,
	}
	for kind, retryable := range want {
		f := NewFault(kind, "x")
		if f.Retryable() != retryable {
			t.Fatalf("Retryable(%s) = %v, want %v", kind, f.Retryable(), retryable)
		}
	}
}

func TestRetryDelayZeroWhenNotRetryable(t *testing.T) {
	for _, kind := range []FaultKind{FaultAuthentication, FaultPermission, FaultModelNotFound, FaultValidation, FaultGeneral} {
		for attempt := 0; attempt < 6; attempt++ {
			if d := RetryDelay(NewFault(kind, "x"), attempt); d != 0 {
				t.Fatalf("RetryDelay(%s, %d) = %v, want 0", kind, attempt, d)
			}
		}
	}
}

func TestRetryDelayExponentialWithJitter(t *testing.T) {
	f := NewFault(FaultNetwork, "connection reset")
	for attempt := 0; attempt < 4; attempt++ {
		base := time.Duration(2<<attempt) * time.Second
		d := RetryDelay(f, attempt)
		if d < base || d > base+base/10 {
			t.Fatalf("RetryDelay(network, %d) = %v, want within [%v, %v]", attempt, d, base, base+base/10)
		}
	}
}

func TestSanitizeMessage(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"leading token", "Exception: quota exhausted", "quota exhausted"},
		{"stacked tokens", "error: Failure: upstream rejected", "upstream rejected"},
		{"stack frames dropped", "boom\n#0 handler\nat caller\n/srv/app/main.go:42", "boom"},
		{"first sentence", "first part. second part never shows", "first part."},
		{"empty after strip", "   ", "unspecified failure"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sanitizeMessage(tc.raw); got != tc.want {
				t.Fatalf("sanitizeMessage(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestSanitizeMessageCapsLength(t *testing.T) {
	raw := strings.Repeat("a", 500)
	if got := sanitizeMessage(raw); len([]rune(got)) != maxFaultMessage {
		t.Fatalf("len = %d, want %d", len([]rune(got)), maxFaultMessage)
	}
}
