package fabric

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signal18/fabricd/internal/ferrors"
)

func TestValidateExactlyOnePrimary_AllowsZeroOrOne(t *testing.T) {
	require.NoError(t, ValidateExactlyOnePrimary(nil))
	require.NoError(t, ValidateExactlyOnePrimary([]Server{
		{UUID: "a", Status: StatusSecondary},
		{UUID: "b", Status: StatusPrimary},
	}))
}

func TestValidateExactlyOnePrimary_RejectsTwo(t *testing.T) {
	err := ValidateExactlyOnePrimary([]Server{
		{UUID: "a", Status: StatusPrimary},
		{UUID: "b", Status: StatusPrimary},
	})
	require.Error(t, err)
	code, ok := ferrors.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CodeGroup, code)
}

func TestCheckPrivileges(t *testing.T) {
	granted := map[string]struct{}{
		"REPLICATION SLAVE":  {},
		"REPLICATION CLIENT": {},
		"SUPER":              {},
	}
	err := CheckPrivileges(granted)
	require.Error(t, err)

	for _, p := range RequiredPrivileges {
		granted[p] = struct{}{}
	}
	require.NoError(t, CheckPrivileges(granted))
}

func TestContainsServer(t *testing.T) {
	servers := []Server{{UUID: "a"}, {UUID: "b"}}
	require.True(t, ContainsServer(servers, "b"))
	require.False(t, ContainsServer(servers, "c"))
}
