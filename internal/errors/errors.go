package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies pipeline errors by the contract they violate.
type ErrorType string

const (
	ErrTypeDataIntegrity ErrorType = "DATA_INTEGRITY"
	ErrTypeFitFailure    ErrorType = "MODEL_FIT_FAILURE"
	ErrTypeAlignment     ErrorType = "ALIGNMENT_INCONSISTENCY"
	ErrTypeConfig        ErrorType = "CONFIG"
	ErrTypeParsing       ErrorType = "PARSING"
	ErrTypeExport        ErrorType = "EXPORT"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	// ErrDataIntegrity marks irregular or missing timestamps in the input
	// series. Fatal: the pipeline aborts before any fitting.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrFitFailed marks optimizer non-convergence or a singular covariance
	// for a single (model, origin) pair. Recoverable: the evaluator skips
	// the pair and continues.
	ErrFitFailed = errors.New("model fit failed")

	// ErrAlignment marks a recomputed horizon that disagrees with the stored
	// horizon, or a duplicate (origin, target, model) key. Fatal: it
	// indicates a logic defect, not bad input.
	ErrAlignment = errors.New("forecast alignment inconsistency")
)

// PipelineError is a classified error carrying structured context for logs.
type PipelineError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with PipelineError.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key-value pair to the error context.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDataIntegrityError creates a fatal data-integrity error. The cause chain
// always includes ErrDataIntegrity so callers can classify with errors.Is.
func NewDataIntegrityError(message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrTypeDataIntegrity,
		Message: message,
		Cause:   wrapSentinel(ErrDataIntegrity, cause),
	}
}

// NewFitFailureError creates a recoverable per-(model, origin) fit error.
func NewFitFailureError(model string, origin string, cause error) *PipelineError {
	e := &PipelineError{
		Type:    ErrTypeFitFailure,
		Message: fmt.Sprintf("fit failed for model %s at origin %s", model, origin),
		Cause:   wrapSentinel(ErrFitFailed, cause),
	}
	return e.WithContext("model", model).WithContext("origin", origin)
}

// NewAlignmentError creates a fatal alignment-consistency error.
func NewAlignmentError(message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrTypeAlignment,
		Message: message,
		Cause:   wrapSentinel(ErrAlignment, cause),
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrTypeConfig, Message: message, Cause: cause}
}

// NewParsingError creates an input parsing error.
func NewParsingError(message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrTypeParsing, Message: message, Cause: cause}
}

// NewExportError creates a results-export error.
func NewExportError(message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrTypeExport, Message: message, Cause: cause}
}

// IsDataIntegrity reports whether err is (or wraps) a data-integrity violation.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsFitFailure reports whether err is (or wraps) a recoverable fit failure.
func IsFitFailure(err error) bool {
	return errors.Is(err, ErrFitFailed)
}

// IsAlignment reports whether err is (or wraps) an alignment inconsistency.
func IsAlignment(err error) bool {
	return errors.Is(err, ErrAlignment)
}

// GetType returns the error type if err is a PipelineError, empty otherwise.
func GetType(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ""
}

// wrapSentinel chains a sentinel with an optional underlying cause so both
// survive errors.Is checks.
func wrapSentinel(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
