package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectivityError_KeepsDriverMessage(t *testing.T) {
	driverErr := errors.New("dial tcp 10.0.0.1:3306: connect: connection refused")
	err := fmt.Errorf("open pool: %w", &ConnectivityError{Target: "sales", Err: driverErr})

	var connErr *ConnectivityError
	assert.True(t, errors.As(err, &connErr))
	assert.Equal(t, driverErr.Error(), connErr.Error())
	assert.ErrorIs(t, err, driverErr)
}

func TestStatementError_Unwraps(t *testing.T) {
	driverErr := errors.New(`ERROR: relation "missing" does not exist (SQLSTATE 42P01)`)
	err := &StatementError{Err: driverErr}

	assert.Equal(t, driverErr.Error(), err.Error())
	assert.ErrorIs(t, err, driverErr)
}

func TestScriptRuntimeError_Message(t *testing.T) {
	assert.Equal(t, "python script exited with code 1", (&ScriptRuntimeError{ExitCode: 1}).Error())
	assert.Equal(t, "python script timed out", (&ScriptRuntimeError{ExitCode: -1, TimedOut: true}).Error())
}

func TestProvisioningError_Unwraps(t *testing.T) {
	err := &ProvisioningError{Step: "migrate", Err: ErrNotFound}
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "migrate")
}
