package sandbox

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	notFound := &NotFoundError{Kind: "Sandbox", Name: "sbx-a"}
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsAlreadyExists(notFound))

	exists := &AlreadyExistsError{Name: "sbx-a"}
	assert.True(t, IsAlreadyExists(exists))

	timeout := &TimeoutError{Op: "wait", Timeout: 0}
	assert.True(t, IsTimeout(timeout))

	execErr := &ExecError{ExitCode: ExitCodeUnknown}
	assert.True(t, IsExecError(execErr))

	missing := &ControllerNotInstalledError{Resource: "sandboxes"}
	assert.True(t, IsControllerNotInstalled(missing))
	assert.False(t, IsNotFound(missing))

	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestErrorPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create sandbox: %w", &AlreadyExistsError{Name: "sbx-a"})
	assert.True(t, IsAlreadyExists(wrapped))

	doubly := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", &TimeoutError{Op: "wait"}))
	assert.True(t, IsTimeout(doubly))
}

func TestExecErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	execErr := &ExecError{ExitCode: ExitCodeUnknown, Cause: cause}
	assert.ErrorIs(t, execErr, cause)
}
