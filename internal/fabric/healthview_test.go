package fabric

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroupHandle_MembersExcludesFaulty(t *testing.T) {
	group := Group{ID: "group-1", MasterUUID: "srv-1", Status: GroupActive}
	servers := []Server{
		{UUID: "srv-1", Status: StatusPrimary},
		{UUID: "srv-2", Status: StatusSecondary},
		{UUID: "srv-3", Status: StatusFaulty},
	}
	pinged := map[string]bool{}
	handle := NewGroupHandle(group, servers, func(ctx context.Context, serverUUID string) error {
		pinged[serverUUID] = true
		if serverUUID == "srv-2" {
			return errors.New("unreachable")
		}
		return nil
	})

	require.Equal(t, "group-1", handle.UUID())
	require.Equal(t, "srv-1", handle.PrimaryUUID())
	require.Equal(t, "ACTIVE", handle.Status())

	members := handle.Members()
	require.Len(t, members, 2)

	for _, m := range members {
		_ = m.Ping(context.Background())
	}
	require.True(t, pinged["srv-1"])
	require.True(t, pinged["srv-2"])
	require.False(t, pinged["srv-3"])
}
