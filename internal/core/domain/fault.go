package domain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// FaultKind tags a pipeline failure with its taxonomy slot. Retryability
// is a function of the kind, never stored per instance.
type FaultKind string

const (
	FaultNetwork        FaultKind = "network"
	FaultAuthentication FaultKind = "authentication"
	FaultPermission     FaultKind = "permission"
	FaultQuota          FaultKind = "quota"
	FaultModelNotFound  FaultKind = "model_not_found"
	FaultValidation     FaultKind = "validation"
	FaultGeneral        FaultKind = "general"
)

// Fault is the typed outcome of a failed pipeline step. Message is
// sanitized for display; the raw cause stays reachable via Unwrap.
type Fault struct {
	Kind    FaultKind `json:"kind"`
	Code    int       `json:"code,omitempty"`
	Message string    `json:"message"`

	cause error
}

func NewFault(kind FaultKind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.cause }

// Retryable reports whether a caller may re-attempt the operation.
// True exactly for the network and quota kinds.
func (f *Fault) Retryable() bool {
	return f != nil && (f.Kind == FaultNetwork || f.Kind == FaultQuota)
}

const (
	maxFaultMessage = 200
	backoffShiftCap = 8
)

// RetryDelay suggests a backoff before attempt+1. Zero when the fault is
// not retryable, otherwise 2<<attempt seconds plus up to 10% jitter.
func RetryDelay(f *Fault, attempt int) time.Duration {
	if !f.Retryable() {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > backoffShiftCap {
		attempt = backoffShiftCap
	}
	base := time.Duration(2<<attempt) * time.Second
	jitter := time.Duration(rand.Float64() * 0.1 * float64(base))
	return base + jitter
}

// classification rules in precedence order; the first needle hit wins.
var faultRules = []struct {
	kind    FaultKind
	code    int
	needles []string
}{
	{FaultPermission, 403, []string{"403", "forbidden"}},
	{FaultModelNotFound, 404, []string{"404", "not found"}},
	{FaultAuthentication, 401, []string{"401", "unauthorized", "authentication"}},
	{FaultQuota, 429, []string{"quota", "rate limit", "too many requests"}},
	{FaultNetwork, 0, []string{"timeout", "connection", "network", "socket"}},
	{FaultModelNotFound, 0, []string{"model", "invalid request", "bad request"}},
	{FaultValidation, 0, []string{"validation", "invalid", "malformed"}},
}

// Classify maps a raw provider error onto the fault taxonomy by
// case-insensitive substring matching against the stringified error.
// An error that already is a Fault passes through unchanged.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Fault{Kind: FaultNetwork, Message: "request timed out", cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Fault{Kind: FaultGeneral, Message: "processing was canceled", cause: err}
	}
	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, rule := range faultRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				code := 0
				if needle == fmt.Sprint(rule.code) {
					code = rule.code
				}
				return &Fault{Kind: rule.kind, Code: code, Message: sanitizeMessage(raw), cause: err}
			}
		}
	}
	return &Fault{Kind: FaultGeneral, Message: sanitizeMessage(raw), cause: err}
}

var leadingTokens = []string{"exception:", "error:", "failure:"}

// sanitizeMessage strips provider noise: leading severity tokens,
// stack-trace lines, everything past the first sentence, and anything
// beyond 200 characters.
func sanitizeMessage(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" || looksLikeStackFrame(t) {
			continue
		}
		kept = append(kept, t)
	}
	msg := strings.TrimSpace(strings.Join(kept, " "))
	for {
		stripped := stripLeadingToken(msg)
		if stripped == msg {
			break
		}
		msg = stripped
	}
	if idx := strings.Index(msg, ". "); idx >= 0 {
		msg = msg[:idx+1]
	}
	if r := []rune(msg); len(r) > maxFaultMessage {
		msg = string(r[:maxFaultMessage])
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "unspecified failure"
	}
	return msg
}

func stripLeadingToken(msg string) string {
	lower := strings.ToLower(msg)
	for _, token := range leadingTokens {
		if strings.HasPrefix(lower, token) {
			return strings.TrimSpace(msg[len(token):])
		}
	}
	return msg
}

func looksLikeStackFrame(line string) bool {
	if strings.HasPrefix(line, "at ") || strings.HasPrefix(line, "goroutine ") {
		return true
	}
	if len(line) > 1 && line[0] == '#' && line[1] >= '0' && line[1] <= '9' {
		return true
	}
	return strings.Contains(line, ".go:")
}
