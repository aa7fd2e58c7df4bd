// Package errors provides standardized error handling patterns for PetroEdge
// components. It includes error classification, standard error variables, and
// helper functions for consistent error wrapping across the processing core.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Component lifecycle errors
	ErrAlreadyStarted  = errors.New("component already started")
	ErrNotStarted      = errors.New("component not started")
	ErrShuttingDown    = errors.New("component is shutting down")
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// Connection and infrastructure errors
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCacheUnavailable   = errors.New("cache unavailable")

	// Envelope and data errors
	ErrInvalidEnvelope = errors.New("invalid telemetry envelope")
	ErrSchemaViolation = errors.New("envelope schema violation")
	ErrParsingFailed   = errors.New("parsing failed")

	// Resolution errors. These are configuration gaps, not transient
	// faults: re-attempting the same lookup against the same store will
	// not self-heal, so they are classified invalid.
	ErrBindingNotFound    = errors.New("no active device binding for data source")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrTwinNotFound       = errors.New("digital twin instance not found")
	ErrChainNotResolvable = errors.New("no active rule chain resolvable at any tier")

	// Execution errors
	ErrNoIngressNode      = errors.New("rule chain has no ingress node")
	ErrUnknownNodeType    = errors.New("unknown node type")
	ErrGraphUnsatisfiable = errors.New("rule chain graph is cyclic or unsatisfiable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrCacheUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Common transient patterns from driver errors
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input or a configuration gap
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidEnvelope) ||
		errors.Is(err, ErrSchemaViolation) ||
		errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrBindingNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrTwinNotFound) ||
		errors.Is(err, ErrChainNotResolvable) ||
		errors.Is(err, ErrNoIngressNode) ||
		errors.Is(err, ErrUnknownNodeType) ||
		errors.Is(err, ErrGraphUnsatisfiable)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

// IsResolutionMiss reports whether err is one of the resolution-miss
// sentinels, i.e. an absent or inactive configuration row rather than an
// infrastructure failure. The consumer drops such messages without retry.
func IsResolutionMiss(err error) bool {
	return errors.Is(err, ErrBindingNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrTwinNotFound) ||
		errors.Is(err, ErrChainNotResolvable)
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Is delegates to the standard library for sentinel comparison
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to the standard library for type assertion on error chains
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New creates a new error from a message
func New(text string) error {
	return errors.New(text)
}
