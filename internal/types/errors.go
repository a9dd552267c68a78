package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindTranscriptionFailed ErrorKind = "transcription_failed"
	KindSynthesisFailed     ErrorKind = "synthesis_failed"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindConcatenationFailed ErrorKind = "concatenation_failed"
	KindStorageFailed       ErrorKind = "storage_failed"
	KindInternal            ErrorKind = "internal"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrTranscriptionFailed = &Error{Kind: KindTranscriptionFailed}
	ErrSynthesisFailed     = &Error{Kind: KindSynthesisFailed}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrConcatenationFailed = &Error{Kind: KindConcatenationFailed}
	ErrStorageFailed       = &Error{Kind: KindStorageFailed}

	// ErrEmptyConversation is wrapped by the InvalidInput error returned for
	// scripts without any turn.
	ErrEmptyConversation = errors.New("empty conversation")
)

// Error is the single error type returned across the pipeline.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string

	// StatusCode is the provider's HTTP-like status, when there is one.
	StatusCode int
	// Transient marks failures that may succeed on retry.
	Transient bool
	// Attempts is set on ProviderUnavailable to the number of calls made.
	Attempts int

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Kind so callers can test errors.Is(err, types.ErrInvalidInput).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidInput builds a KindInvalidInput error with a caller-facing message.
func InvalidInput(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the outermost *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error in err, or KindInternal.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether the outermost *Error in err is retryable.
func IsTransient(err error) bool {
	e, ok := AsError(err)
	return ok && e.Transient
}

// UserMessage maps err to the message shown to API callers. Diagnostic detail
// stays in err itself and in the logs.
func UserMessage(err error) string {
	e, ok := AsError(err)
	if !ok {
		return "Internal error while generating the podcast"
	}
	switch e.Kind {
	case KindInvalidInput:
		if e.Message != "" {
			return e.Message
		}
		return "Invalid input"
	case KindTranscriptionFailed:
		return "Audio processing failed"
	case KindSynthesisFailed:
		if e.Message != "" {
			return fmt.Sprintf("Speech synthesis failed: %s", e.Message)
		}
		return "Speech synthesis failed"
	case KindProviderUnavailable:
		return fmt.Sprintf("Speech provider is temporarily unavailable (gave up after %d attempts)", e.Attempts)
	case KindConcatenationFailed:
		return "Failed to merge conversation audio"
	case KindStorageFailed:
		return "Failed to save the generated podcast"
	default:
		return "Internal error while generating the podcast"
	}
}
