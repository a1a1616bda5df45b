// Package apperr defines the error kinds surfaced to the user by the job and
// voice controllers.
package apperr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Kind classifies a failure by the stage that produced it.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUpload            Kind = "upload"
	KindJobCreation       Kind = "job_creation"
	KindProcessingTrigger Kind = "processing_trigger"
	KindFetch             Kind = "fetch"
	KindExchange          Kind = "exchange"
	KindInitialization    Kind = "initialization"
	KindMicrophoneAccess  Kind = "microphone_access"
)

// MsgUnexpected is shown when an error carries no user-facing message.
const MsgUnexpected = "Something went wrong. Please try again."

// Error is a classified failure. Message is safe to show to the user; Err
// holds the underlying cause for logs.
type Error struct {
	Kind    Kind
	Stage   string
	JobID   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Log writes the error once with its stage and job id.
func (e *Error) Log() {
	log.Error().Stack().Err(e.Err).
		Str("kind", string(e.Kind)).
		Str("stage", e.Stage).
		Str("jobID", e.JobID).
		Msg(e.Message)
}

// New builds an Error. The cause is annotated with a stack trace so Log can
// print where it came from.
func New(kind Kind, stage, jobID, message string, cause error) *Error {
	if cause != nil {
		cause = pkgerrors.WithStack(cause)
	}
	return &Error{
		Kind:    kind,
		Stage:   stage,
		JobID:   jobID,
		Message: message,
		Err:     cause,
	}
}

// Validation builds a validation error, which never has a cause.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Stage: "validate", Message: message}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserMessage returns the text to display for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return MsgUnexpected
}
