package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrDatabase          = errors.New("database error")
)

// Pipeline failure kinds. A StageError carries one of these.
var (
	ErrSourceAcquisition = errors.New("source acquisition failed")
	ErrOCRPage           = errors.New("ocr page failed")
	ErrNoPagesProcessed  = errors.New("no pages processed")
	ErrExtractionParse   = errors.New("extraction parse failed")
	ErrExtractionCall    = errors.New("extraction call failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// StageError is a pipeline-fatal failure tagged with the stage that produced it.
// errors.Is matches both the Kind sentinel and the underlying Cause.
type StageError struct {
	Stage     string
	Kind      error
	Cause     error
	RawOutput string // model output, set for extraction parse failures
}

func NewStageError(stage string, kind, cause error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Cause: cause}
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Reason is the human-readable failure reason persisted on the job.
func (e *StageError) Reason() string {
	return e.Error()
}

// FailureReason returns the persisted reason for any error.
func FailureReason(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Reason()
	}
	return err.Error()
}
