// Package errs defines the structured error taxonomy shared across Hadron's
// pipeline stages.
package errs

import (
	"fmt"
	"sort"
	"strings"
)

// Code enumerates the canonical error categories a Hadron component can raise.
type Code string

const (
	// CodeTransientTransport marks a recoverable network/websocket failure
	// (dropped connection, read timeout). Callers should retry with backoff.
	CodeTransientTransport Code = "transient_transport"
	// CodeProtocol marks a malformed or unexpected wire message.
	CodeProtocol Code = "protocol"
	// CodeAuth marks an authentication/authorization failure with a venue.
	CodeAuth Code = "auth"
	// CodeLookupMiss marks a failed instrument or record lookup.
	CodeLookupMiss Code = "lookup_miss"
	// CodeStorageTransient marks a recoverable persistence failure.
	CodeStorageTransient Code = "storage_transient"
	// CodeInvariant marks a violated internal invariant; never expected to
	// occur in correct operation and should not be retried.
	CodeInvariant Code = "invariant"
)

// E is a structured error carrying an operation name, a canonical code, and
// optional context fields.
type E struct {
	op     string
	code   Code
	msg    string
	cause  error
	fields map[string]string
}

// Option configures an E during construction.
type Option func(*E)

// WithMessage attaches a human-readable message.
func WithMessage(msg string) Option {
	return func(e *E) { e.msg = msg }
}

// WithCause wraps an underlying error.
func WithCause(cause error) Option {
	return func(e *E) { e.cause = cause }
}

// WithField attaches a contextual key/value pair, e.g. "symbol", "shard".
func WithField(key, value string) Option {
	return func(e *E) {
		if e.fields == nil {
			e.fields = make(map[string]string, 1)
		}
		e.fields[key] = value
	}
}

// New constructs a structured error for the given operation and code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{op: op, code: code}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Code reports the error's canonical category.
func (e *E) Code() Code {
	if e == nil {
		return ""
	}
	return e.code
}

// Op reports the operation that produced the error.
func (e *E) Op() string {
	if e == nil {
		return ""
	}
	return e.op
}

// Error implements the error interface with deterministic field ordering.
func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.op)
	b.WriteString(": ")
	b.WriteString(string(e.code))
	if e.msg != "" {
		fmt.Fprintf(&b, ": %s", e.msg)
	}
	if len(e.fields) > 0 {
		keys := make([]string, 0, len(e.fields))
		for k := range e.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.fields[k])
		}
		b.WriteString("]")
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	return b.String()
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *E) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Retryable reports whether the error category is safe to retry.
func (e *E) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.code {
	case CodeTransientTransport, CodeStorageTransient:
		return true
	default:
		return false
	}
}
