package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies failures so callers can decide between retrying, skipping
// a single task and aborting a whole batch.
type Kind string

const (
	KindTransport           Kind = "transport"
	KindRateLimited         Kind = "rate_limited"
	KindStatus              Kind = "status"
	KindMalformedResponse   Kind = "malformed_response"
	KindMalformedAttachment Kind = "malformed_attachment"
	KindFilesystem          Kind = "filesystem"
	KindAuth                Kind = "auth"
	KindGeneric             Kind = "generic"
)

// Error represents a sync failure with kind information
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: "failed", Err: err}
}

// Status builds a KindStatus or KindRateLimited error from an HTTP status code
func Status(op string, code int) *Error {
	if code == 429 {
		return &Error{Kind: KindRateLimited, Op: op, Message: "rate limited by upstream", Code: code}
	}
	return &Error{Kind: KindStatus, Op: op, Message: "unexpected response status", Code: code}
}

// specific walks the chain of *Error values and returns the first one whose
// kind is not KindGeneric, so a generic wrapper never hides the cause.
func specific(err error) *Error {
	var first *Error
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			break
		}
		if first == nil {
			first = e
		}
		if e.Kind != KindGeneric {
			return e
		}
		err = e.Err
	}
	return first
}

// KindOf returns the most specific kind in the chain, or KindGeneric
func KindOf(err error) Kind {
	if e := specific(err); e != nil {
		return e.Kind
	}
	return KindGeneric
}

// IsKind reports whether any *Error in the chain has the given kind
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRateLimited reports whether err signals an upstream 429
func IsRateLimited(err error) bool {
	return IsKind(err, KindRateLimited)
}

// IsRetryable reports whether a failed request may be attempted again.
// Rate limits are deliberately excluded: they abort the batch instead.
func IsRetryable(err error) bool {
	e := specific(err)
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return IsRetryableStatusCode(e.Code)
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a transient server error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429, 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
