package llmprovider

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrDependencyUnavailable indicates the upstream query capability could not be obtained
	// (e.g., the agent CLI is not installed). No request reached the upstream worker.
	ErrDependencyUnavailable = errors.New("llmprovider: upstream dependency unavailable")

	// ErrUpstreamFailure indicates the upstream message sequence failed mid-consumption.
	ErrUpstreamFailure = errors.New("llmprovider: upstream failure")

	// ErrIncompleteStream indicates the upstream sequence ended without a result message.
	ErrIncompleteStream = errors.New("llmprovider: upstream ended without a result")

	// ErrInvalidModel indicates the requested model is not supported by the provider.
	ErrInvalidModel = errors.New("llmprovider: invalid or unsupported model")

	// ErrInvalidRequest indicates the request parameters are invalid.
	ErrInvalidRequest = errors.New("llmprovider: invalid request")
)

// ModelError represents an error related to model validation or availability.
type ModelError struct {
	Model    string // The model that was requested
	Provider string // The provider name
	Reason   string // Human-readable explanation
	Err      error  // Wrapped error (usually ErrInvalidModel)
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model '%s' for provider '%s': %s (%v)", e.Model, e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("model '%s' for provider '%s': %s", e.Model, e.Provider, e.Reason)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// ValidationError represents an error in request parameter validation.
type ValidationError struct {
	Field  string // The parameter field that failed validation
	Value  any    // The invalid value
	Reason string // Human-readable explanation
	Err    error  // Wrapped error (usually ErrInvalidRequest)
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for '%s' (value: %v): %s (%v)", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for '%s' (value: %v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// QueryError represents a failure while obtaining or consuming an upstream query.
// Kind is ErrDependencyUnavailable, ErrUpstreamFailure or ErrIncompleteStream;
// Cause is the underlying error, if any.
type QueryError struct {
	Provider string // The provider name
	Kind     error  // Sentinel classifying the failure
	Cause    error  // Underlying error
}

func (e *QueryError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("provider '%s' query failed", e.Provider)
}

// Unwrap exposes both the classification and the cause to errors.Is / errors.As.
func (e *QueryError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// IsDependencyUnavailable checks if an error means the upstream capability was missing.
func IsDependencyUnavailable(err error) bool {
	return err != nil && errors.Is(err, ErrDependencyUnavailable)
}

// IsUpstreamFailure checks if an error came from the upstream sequence itself.
// Incomplete streams count as upstream failures.
func IsUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrIncompleteStream)
}

// IsInvalidRequest checks if an error indicates invalid request parameters.
// These errors require request changes.
func IsInvalidRequest(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidRequest) {
		return true
	}

	if errors.Is(err, ErrInvalidModel) {
		return true
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
