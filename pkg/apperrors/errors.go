package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrProtectedDatabase = errors.New("database is protected")
	ErrCrossServerClone  = errors.New("clone source and destination are on different servers")
	ErrUnknownDialect    = errors.New("unknown database dialect")
	ErrInvalidIdentifier = errors.New("invalid database identifier")
)

// ConnectivityError reports that a pool could not reach its database
// (unreachable host, authentication failure). The message is the driver's.
type ConnectivityError struct {
	Target string // sanitized identifier
	Err    error
}

func (e *ConnectivityError) Error() string { return e.Err.Error() }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// StatementError wraps a driver error raised while executing user SQL.
// The message is the driver's, unchanged.
type StatementError struct {
	Err error
}

func (e *StatementError) Error() string { return e.Err.Error() }
func (e *StatementError) Unwrap() error { return e.Err }

// SubprocessSpawnError reports that the Python interpreter could not be started.
type SubprocessSpawnError struct {
	Interpreter string
	Err         error
}

func (e *SubprocessSpawnError) Error() string {
	return fmt.Sprintf("failed to start python interpreter %q: %v", e.Interpreter, e.Err)
}
func (e *SubprocessSpawnError) Unwrap() error { return e.Err }

// ScriptRuntimeError reports a Python run that exited non-zero.
type ScriptRuntimeError struct {
	ExitCode int
	TimedOut bool
}

func (e *ScriptRuntimeError) Error() string {
	if e.TimedOut {
		return "python script timed out"
	}
	return fmt.Sprintf("python script exited with code %d", e.ExitCode)
}

// ProvisioningError reports a failed bootstrap step.
type ProvisioningError struct {
	Step string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
}
func (e *ProvisioningError) Unwrap() error { return e.Err }
