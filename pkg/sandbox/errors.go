package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError is returned when a sandbox or cluster resource does not exist.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("sandbox %s not found", e.Name)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

// AlreadyExistsError is returned when a create would conflict with an
// existing resource, including an active sandbox for the same project.
type AlreadyExistsError struct {
	Kind string
	Name string
}

func (e *AlreadyExistsError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("sandbox %s already exists", e.Name)
	}
	return fmt.Sprintf("%s %s already exists", e.Kind, e.Name)
}

// TimeoutError is returned when a wait or exec deadline elapses.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// ExitCodeUnknown marks an exec whose transport closed without reporting
// an exit code.
const ExitCodeUnknown = -1

// ExecError is a remote command failure, distinct from transport failures
// which propagate as their own kinds.
type ExecError struct {
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	if e.ExitCode == ExitCodeUnknown {
		return "command finished with unknown exit code"
	}
	return fmt.Sprintf("command exited with code %d", e.ExitCode)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// ControllerNotInstalledError means the cluster does not serve the sandbox
// resource definitions. Callers typically fall back to another provider.
type ControllerNotInstalledError struct {
	Resource string
}

func (e *ControllerNotInstalledError) Error() string {
	return fmt.Sprintf("sandbox controller not installed: resource %s is not served by the cluster", e.Resource)
}

// ConfigError is a malformed provider or connection configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}

func IsAlreadyExists(err error) bool {
	var t *AlreadyExistsError
	return errors.As(err, &t)
}

func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

func IsExecError(err error) bool {
	var t *ExecError
	return errors.As(err, &t)
}

func IsControllerNotInstalled(err error) bool {
	var t *ControllerNotInstalledError
	return errors.As(err, &t)
}
