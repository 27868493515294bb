//go:build integration

package persister

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// TestPersister_CreateSchemaAndTransact exercises a real MySQL instance via
// testcontainers, mirroring the teacher's container-backed integration
// tests. Run with `-tags integration`.
func TestPersister_CreateSchemaAndTransact(t *testing.T) {
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

	p, err := Open(dsn, 4, 2, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.CreateSchema(ctx))

	tx, err := p.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO groups (group_id, status) VALUES (?, ?)`, "group-1", "ACTIVE")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	row := p.db.QueryRowContext(ctx, `SELECT status FROM groups WHERE group_id = ?`, "group-1")
	var status string
	require.NoError(t, row.Scan(&status))
	require.Equal(t, "ACTIVE", status)

	require.NoError(t, p.DropSchema(ctx))
}
