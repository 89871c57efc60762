package types

import (
	"errors"
	"fmt"
)

// Business failure taxonomy. Handlers map these onto HTTP statuses;
// anything that is none of these is treated as an infrastructure error.

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return e.Reason }

func NewAuthorizationError(reason string) error {
	return &AuthorizationError{Reason: reason}
}

// ConflictError covers illegal state transitions and unavailable time
// windows. Current names the state or window that blocked the request.
type ConflictError struct {
	Reason  string
	Current string
}

func (e *ConflictError) Error() string {
	if e.Current == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (current: %s)", e.Reason, e.Current)
}

func NewConflictError(reason, current string) error {
	return &ConflictError{Reason: reason, Current: current}
}

// DependencyError wraps a critical-path collaborator failure (payment
// processor, storage). The surrounding transaction must roll back.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Dependency, e.Err.Error())
}
func (e *DependencyError) Unwrap() error { return e.Err }

func NewDependencyError(dependency string, err error) error {
	return &DependencyError{Dependency: dependency, Err: err}
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsAuthorizationError(err error) bool {
	var a *AuthorizationError
	return errors.As(err, &a)
}

func IsConflictError(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsDependencyError(err error) bool {
	var d *DependencyError
	return errors.As(err, &d)
}
