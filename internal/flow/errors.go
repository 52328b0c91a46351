package flow

import (
	"errors"
	"fmt"
)

// ValidationError reports user input that failed a check. Message is shown to
// the user as-is; the conversation state is left unchanged unless the handler
// says otherwise.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing trip, expense or conversation context. The
// handler aborts the flow to idle before returning it.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func notFoundf(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// StateMismatchError reports a turn whose shape does not fit the active
// state, like a button press the conversation is not waiting for. State and
// context stay untouched.
type StateMismatchError struct {
	Message string
}

func (e *StateMismatchError) Error() string { return e.Message }

func stateMismatchf(format string, args ...any) *StateMismatchError {
	return &StateMismatchError{Message: fmt.Sprintf(format, args...)}
}

// TransientIOError reports a storage or extraction failure. State and context
// stay untouched so the user can resend the same turn. Op is a short verb
// phrase, "creating trip" or "reading your receipt".
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransientIOError) Unwrap() error { return e.Err }

func ioErr(op string, err error) *TransientIOError {
	return &TransientIOError{Op: op, Err: err}
}

// UserMessage renders an error from a handled turn into the text sent back
// to the chat. Transient failures get a generic retry line; the wrapped
// cause is for the log, not the user.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Message
	}
	var sm *StateMismatchError
	if errors.As(err, &sm) {
		return sm.Message
	}
	var te *TransientIOError
	if errors.As(err, &te) {
		return fmt.Sprintf("❌ Error %s. Please try again.", te.Op)
	}
	return "Something went wrong. Please try again."
}
