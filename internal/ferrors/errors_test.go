package ferrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := Database("state store unreachable", cause)

	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeDatabase, code)
	require.ErrorIs(t, err, cause)
}

func TestNew_NoCause(t *testing.T) {
	err := Procedure("unknown procedure uuid")
	require.Nil(t, err.Cause)
	require.Contains(t, err.Error(), "ProcedureError")
}

func TestLockBroken(t *testing.T) {
	err := LockBroken()
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, CodeLockManager, code)
	require.Contains(t, err.Error(), "lock broken")
}

func TestCodeOf_NonFerrorsError(t *testing.T) {
	_, ok := CodeOf(errors.New("plain error"))
	require.False(t, ok)
}
