//go:build integration

package sharding

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/mysqlconn"
	"github.com/signal18/fabricd/internal/persister"
)

// TestCoordinator_RangeMappingLifecycle exercises the sharding metadata
// tables and the lookup resolver against a real MySQL instance (§4.10's
// S2 scenario, minus the actual row-level trigger enforcement which needs
// managed servers this test doesn't stand up). Run with `-tags integration`.
func TestCoordinator_RangeMappingLifecycle(t *testing.T) {
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

	fabricRepo := fabric.NewRepository(p.DB())
	for _, g := range []string{"global_group", "g2", "g3", "g4", "g5"} {
		require.NoError(t, fabricRepo.CreateGroup(ctx, fabric.Group{ID: g, Status: fabric.GroupActive}))
		require.NoError(t, fabricRepo.AddServer(ctx, fabric.Server{
			UUID: g + "-primary", GroupID: g, Address: "10.0.0.1:3306",
			Mode: fabric.ModeReadWrite, Status: fabric.StatusPrimary, Weight: 1.0,
		}))
		require.NoError(t, fabricRepo.SetGroupMaster(ctx, g, g+"-primary"))
	}

	repo := NewRepository(p.DB())
	coord := NewCoordinator(repo, fabricRepo, nil, mysqlconn.Credentials{}, nil, zerolog.Nop())

	jc := events.JobContext{Ctx: ctx}

	_, _, err = coord.DefineMappingHandler().Action(jc, []any{
		DefineMappingRequest{Type: TypeRangeInteger, GlobalGroupID: "global_group"},
	})
	require.NoError(t, err)
	mappingID := mustMappingID(t, repo, ctx)

	_, _, err = coord.AddTableHandler().Action(jc, []any{
		AddTableRequest{MappingID: mappingID, QualifiedName: "db1.t1", Column: "userID", IsAnchor: true},
	})
	require.NoError(t, err)

	for _, spec := range []struct {
		group string
		bound string
	}{{"g2", "1"}, {"g3", "101"}, {"g4", "1001"}, {"g5", "10001"}} {
		_, _, err := coord.AddShardHandler().Action(jc, []any{
			AddShardRequest{MappingID: mappingID, GroupID: spec.group, Bound: spec.bound, State: ShardEnabled},
		})
		require.NoError(t, err)
	}

	cands, err := coord.Lookup(ctx, "db1.t1", "3", HintLocal)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, "g2-primary", cands[0].ServerUUID)

	cands, err = coord.Lookup(ctx, "db1.t1", "12000", HintLocal)
	require.NoError(t, err)
	require.Equal(t, "g5-primary", cands[0].ServerUUID)

	globalCands, err := coord.Lookup(ctx, "db1.t1", "anything", HintGlobal)
	require.NoError(t, err)
	require.Equal(t, "global_group-primary", globalCands[0].ServerUUID)
}

func mustMappingID(t *testing.T, repo *Repository, ctx context.Context) int64 {
	t.Helper()
	row := repo.db.QueryRowContext(ctx, `SELECT mapping_id FROM shard_maps_defn ORDER BY mapping_id DESC LIMIT 1`)
	var id int64
	require.NoError(t, row.Scan(&id))
	return id
}
