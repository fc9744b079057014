// Package errors carries the exchange's error taxonomy. Every failure the
// engine surfaces or logs is an *Error: a code locating it in the taxonomy,
// a short message, and the cause with its stack preserved via
// github.com/pkg/errors.
package errors

import pkgerrors "github.com/pkg/errors"

// ErrorCode locates an error in the exchange taxonomy.
type ErrorCode string

const (
	// GeneralInternalServerError is the catch-all for unexpected failures.
	GeneralInternalServerError ErrorCode = "general_internal_server_error"

	// UnknownInstrumentError marks a request against an instrument that does not exist.
	UnknownInstrumentError ErrorCode = "unknown_instrument"
	// InstrumentExistsError marks a duplicate instrument creation.
	InstrumentExistsError ErrorCode = "instrument_exists"
	// InvalidRequestError marks a field-level validation failure.
	InvalidRequestError ErrorCode = "invalid_request"
	// OrderNotOpenError marks a cancel whose target is unknown, filled or cancelled.
	OrderNotOpenError ErrorCode = "order_not_open"

	// JournalAppendError marks a failure applying a durable mutation.
	JournalAppendError ErrorCode = "journal_append_error"
	// JournalReadError marks a failure reading durable state at rebuild.
	JournalReadError ErrorCode = "journal_read_error"
	// BroadcastPublishError marks a failure publishing a broadcast event.
	BroadcastPublishError ErrorCode = "broadcast_publish_error"
	// BackupWriteError marks a failure appending to a backup journal file.
	BackupWriteError ErrorCode = "backup_write_error"
)

// Error is the module's tagged error.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

// StackTracer is satisfied by errors that can report a stack trace.
type StackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// New returns an *Error with no cause, tagged with the catch-all code.
func New(message string) *Error {
	return &Error{Code: GeneralInternalServerError, Message: message}
}

// Wrap annotates a cause with a message, capturing a stack at the wrap site
// unless the cause already carries one.
func Wrap(err error, message string) *Error {
	if _, ok := err.(StackTracer); !ok {
		err = pkgerrors.WithStack(err)
	}
	return &Error{Code: GeneralInternalServerError, Message: message, cause: err}
}

// WithCode retags the error and returns it for chaining.
func (e *Error) WithCode(code ErrorCode) *Error {
	e.Code = code
	return e
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// StackTrace reports the cause's stack, if it has one.
func (e *Error) StackTrace() pkgerrors.StackTrace {
	if tracer, ok := e.cause.(StackTracer); ok {
		return tracer.StackTrace()
	}
	return nil
}
