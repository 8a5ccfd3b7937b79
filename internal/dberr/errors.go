// Package dberr defines the error taxonomy shared by every dbal package and the
// classification of driver failures into execution error categories.
package dberr

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching against the typed errors below.
var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotSupported is matched by every *NotSupportedError.
	ErrNotSupported = errors.New("not supported")
	// ErrExecution is matched by every *ExecutionError.
	ErrExecution = errors.New("database execution failed")
	// ErrIntegrity is matched by execution errors classified as integrity violations.
	ErrIntegrity = errors.New("integrity constraint violation")
	// ErrLoopDetected is matched by every *LoopDetectedError.
	ErrLoopDetected = errors.New("loop detected")
	// ErrArgument is matched by every *ArgumentError.
	ErrArgument = errors.New("invalid argument")
)

// ConfigurationError reports a missing or invalid DSN, an unmapped driver, or
// an exhausted failover pool.
type ConfigurationError struct {
	Msg string
	Err error
}

// Configuration creates a ConfigurationError.
func Configuration(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NotSupportedError reports a capability the current dialect lacks.
type NotSupportedError struct {
	Dialect string
	Feature string
}

// NotSupported creates a NotSupportedError.
func NotSupported(dialect, feature string) *NotSupportedError {
	return &NotSupportedError{Dialect: dialect, Feature: feature}
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Dialect, e.Feature)
}

// Is reports whether target is ErrNotSupported.
func (e *NotSupportedError) Is(target error) bool { return target == ErrNotSupported }

// ArgumentError reports a malformed join, condition or builder argument.
type ArgumentError struct {
	Msg string
}

// Argument creates an ArgumentError.
func Argument(format string, args ...any) *ArgumentError {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ArgumentError) Error() string { return e.Msg }

// Is reports whether target is ErrArgument.
func (e *ArgumentError) Is(target error) bool { return target == ErrArgument }

// LoopDetectedError reports a cycle in a parent/child graph.
type LoopDetectedError struct {
	Msg string
}

func (e *LoopDetectedError) Error() string { return e.Msg }

// Is reports whether target is ErrLoopDetected.
func (e *LoopDetectedError) Is(target error) bool { return target == ErrLoopDetected }

// DetectLoop walks parent links from start and returns a *LoopDetectedError if
// the chain revisits an item. parent returns "" at the root.
func DetectLoop(start string, parent func(string) string) error {
	seen := map[string]bool{}
	for item := start; item != ""; item = parent(item) {
		if seen[item] {
			return &LoopDetectedError{Msg: fmt.Sprintf("cannot add %q: it would create a loop", start)}
		}
		seen[item] = true
	}
	return nil
}
