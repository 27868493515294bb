//go:build integration

package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/signal18/fabricd/internal/persister"
)

// TestRepository_ServerAndGroupLifecycle exercises Repository against a real
// MySQL instance. Run with `-tags integration`.
func TestRepository_ServerAndGroupLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("fabric_test"),
		mysql.WithUsername("fabric"),
		mysql.WithPassword("fabric"),
	)
	require.NoError(t, err)
	defer func() { require.NoError(t, container.Terminate(ctx)) }()

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	p, err := persister.Open(dsn, 4, 2, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.CreateSchema(ctx))

	repo := NewRepository(p.DB())

	require.NoError(t, repo.CreateGroup(ctx, Group{ID: "group-1", Status: GroupInactive}))

	require.NoError(t, repo.AddServer(ctx, Server{
		UUID: "srv-1", GroupID: "group-1", Address: "10.0.0.1:3306",
		Mode: ModeReadOnly, Status: StatusSecondary, Weight: 1.0,
	}))
	require.NoError(t, repo.AddServer(ctx, Server{
		UUID: "srv-2", GroupID: "group-1", Address: "10.0.0.2:3306",
		Mode: ModeReadOnly, Status: StatusSecondary, Weight: 1.0,
	}))

	servers, err := repo.ServersInGroup(ctx, "group-1")
	require.NoError(t, err)
	require.Len(t, servers, 2)
	require.NoError(t, ValidateExactlyOnePrimary(servers))

	ok, err := repo.ContainsServer(ctx, "group-1", "srv-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.UpdateServerStatus(ctx, "srv-1", StatusPrimary))
	require.NoError(t, repo.UpdateServerMode(ctx, "srv-1", ModeReadWrite))
	require.NoError(t, repo.SetGroupMaster(ctx, "group-1", "srv-1"))
	require.NoError(t, repo.SetGroupStatus(ctx, "group-1", GroupActive))

	group, err := repo.GetGroup(ctx, "group-1")
	require.NoError(t, err)
	require.Equal(t, "srv-1", group.MasterUUID)
	require.Equal(t, GroupActive, group.Status)

	servers, err = repo.ServersInGroup(ctx, "group-1")
	require.NoError(t, err)
	require.NoError(t, ValidateExactlyOnePrimary(servers))

	require.NoError(t, repo.RemoveServer(ctx, "srv-2"))
	servers, err = repo.ServersInGroup(ctx, "group-1")
	require.NoError(t, err)
	require.Len(t, servers, 1)

	errLog := NewErrorLog(p.DB())
	require.NoError(t, errLog.Append(ErrorLogEntry{
		GroupUUID: "group-1", ServerUUID: "srv-1", Reporter: "failure_detector", At: time.Now(),
	}))
	window, err := errLog.Window("group-1", "srv-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, window, 1)
}
