package ha

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitHostPort(t *testing.T) {
	host, port := splitHostPort("10.0.0.5:3307")
	require.Equal(t, "10.0.0.5", host)
	require.Equal(t, 3307, port)

	host, port = splitHostPort("10.0.0.5")
	require.Equal(t, "10.0.0.5", host)
	require.Equal(t, 3306, port)
}

func TestArgOf(t *testing.T) {
	req, ok := argOf[PromoteRequest]([]any{PromoteRequest{GroupID: "group-1"}})
	require.True(t, ok)
	require.Equal(t, "group-1", req.GroupID)

	_, ok = argOf[PromoteRequest](nil)
	require.False(t, ok)

	_, ok = argOf[PromoteRequest]([]any{"wrong type"})
	require.False(t, ok)
}
