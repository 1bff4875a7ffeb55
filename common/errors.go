package common

import "fmt"

// ValidationError indicates a witness or request that fails a cryptographic,
// conservation or shape invariant; retrying without new inputs is not useful
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError returns a formatted ValidationError
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError indicates a state conflict such as a double-spend attempt, a
// missing or already-spent note, or an already-paid payment request
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflictError returns a formatted ConflictError
func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ConfigurationError indicates an operational failure -- missing circuit
// artifacts or persistence I/O -- as distinct from an invalid request
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// NewConfigurationError returns a formatted ConfigurationError
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}
