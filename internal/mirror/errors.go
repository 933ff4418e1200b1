package mirror

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is one of the error kinds enumerated in spec.md §7. It is a
// classification, not a type hierarchy: callers compare Kind values
// rather than doing type assertions on error chains.
type Kind string

// Error kinds.
const (
	KindBadOption           Kind = "bad-option"
	KindBadFunctionArgument  Kind = "bad-function-argument"
	KindIO                   Kind = "io"
	KindNetwork              Kind = "network"
	KindHTTPStatus           Kind = "http-status"
	KindTimeout              Kind = "timeout"
	KindTooSlow              Kind = "too-slow"
	KindParseError           Kind = "parse-error"
	KindChecksumMismatch     Kind = "cksum-mismatch"
	KindUnfinished           Kind = "unfinished"
	KindNotSupported         Kind = "not-supported"
	KindGPGNotVerified       Kind = "gpg-not-verified"
	KindIncompleteRepo       Kind = "incomplete-repo"
	KindInterrupted          Kind = "interrupted"
	KindUnknownChecksum      Kind = "unknown-checksum"
	KindAlreadyDownloaded    Kind = "already-downloaded"
)

// Error pairs a Kind with the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New builds a terminal Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		if e.Message != "" {
			return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
		}
		return string(e.Kind) + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// KindOf walks the error chain looking for a *Error and returns its
// Kind, or the empty Kind if none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CompositeError is surfaced when failfast is disabled and more than
// one target fails: it names the count and carries the first error,
// per spec.md §7 "Propagation".
type CompositeError struct {
	Count int
	First error
}

func (c *CompositeError) Error() string {
	var b strings.Builder
	b.WriteString(errors.Newf("%d targets failed", c.Count).Error())
	if c.First != nil {
		b.WriteString(" (first: ")
		b.WriteString(c.First.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (c *CompositeError) Unwrap() error { return c.First }
