// Package persister is the state-store layer: every piece of persistent
// fabricd state — servers, groups, shard mappings, checkpoints, the error
// log — lives in the `fabric` schema this package creates. Begin opens one
// transaction on the shared *sql.DB; the internal/fabric and
// internal/sharding repositories write through that same *sql.DB in
// autocommit mode, so their writes are not part of any Tx from Begin and
// rolling that Tx back does not undo them. Nested transactions are not
// supported.
package persister

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/ferrors"
)

// schemaDDL creates the fabric schema's tables, per spec.md §6's
// state-store schema list. Column types are intentionally permissive
// (VARCHAR/TEXT/BLOB) since the daemon, not MySQL, enforces domain
// invariants; MySQL here is a durable key-value backing store with
// relational convenience, the same role Postgres plays for the teacher's
// outbox table.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS servers (
		server_uuid   VARCHAR(36) PRIMARY KEY,
		group_id      VARCHAR(64) NOT NULL,
		address       VARCHAR(255) NOT NULL,
		mode          VARCHAR(16) NOT NULL,
		status        VARCHAR(16) NOT NULL,
		weight        DOUBLE NOT NULL DEFAULT 1.0,
		update_time   DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		group_id       VARCHAR(64) PRIMARY KEY,
		description     VARCHAR(255),
		master_uuid     VARCHAR(36),
		status          VARCHAR(16) NOT NULL DEFAULT 'INACTIVE',
		master_fail_time DATETIME(6) NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shard_maps_defn (
		mapping_id   BIGINT PRIMARY KEY AUTO_INCREMENT,
		type_name    VARCHAR(16) NOT NULL,
		global_group VARCHAR(64)
	)`,
	`CREATE TABLE IF NOT EXISTS shard_tables (
		mapping_id   BIGINT NOT NULL,
		table_name   VARCHAR(255) NOT NULL,
		column_name  VARCHAR(255) NOT NULL,
		is_anchor    BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (mapping_id, table_name)
	)`,
	`CREATE TABLE IF NOT EXISTS shards (
		shard_id   BIGINT PRIMARY KEY AUTO_INCREMENT,
		mapping_id BIGINT NOT NULL,
		group_id   VARCHAR(64) NOT NULL,
		state      VARCHAR(16) NOT NULL DEFAULT 'ENABLED'
	)`,
	`CREATE TABLE IF NOT EXISTS shard_ranges (
		shard_id    BIGINT NOT NULL,
		lower_bound VARBINARY(255) NOT NULL,
		PRIMARY KEY (shard_id)
	)`,
	`CREATE TABLE IF NOT EXISTS shard_hashes (
		shard_id BIGINT NOT NULL,
		md5_low  VARCHAR(32) NOT NULL,
		PRIMARY KEY (shard_id)
	)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		procedure_uuid VARCHAR(36) NOT NULL,
		job_uuid       VARCHAR(36) NOT NULL,
		sequence       BIGINT NOT NULL,
		action         VARCHAR(255) NOT NULL,
		args           BLOB,
		started_at     DATETIME(6) NULL,
		finished_at    DATETIME(6) NULL,
		PRIMARY KEY (procedure_uuid, job_uuid)
	)`,
	`CREATE TABLE IF NOT EXISTS log (
		id          BIGINT PRIMARY KEY AUTO_INCREMENT,
		created_at  DATETIME(6) NOT NULL,
		level       VARCHAR(16) NOT NULL,
		message     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS error_log (
		id          BIGINT PRIMARY KEY AUTO_INCREMENT,
		group_id    VARCHAR(64) NOT NULL,
		server_uuid VARCHAR(36) NOT NULL,
		reporter    VARCHAR(255) NOT NULL,
		at          DATETIME(6) NOT NULL,
		failure     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS providers (
		provider_id VARCHAR(64) PRIMARY KEY,
		kind        VARCHAR(64) NOT NULL,
		config      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS machines (
		machine_id  VARCHAR(64) PRIMARY KEY,
		provider_id VARCHAR(64) NOT NULL,
		server_uuid VARCHAR(36)
	)`,
}

var dropDDL = []string{
	"DROP TABLE IF EXISTS machines",
	"DROP TABLE IF EXISTS providers",
	"DROP TABLE IF EXISTS error_log",
	"DROP TABLE IF EXISTS log",
	"DROP TABLE IF EXISTS checkpoints",
	"DROP TABLE IF EXISTS shard_hashes",
	"DROP TABLE IF EXISTS shard_ranges",
	"DROP TABLE IF EXISTS shards",
	"DROP TABLE IF EXISTS shard_tables",
	"DROP TABLE IF EXISTS shard_maps_defn",
	"DROP TABLE IF EXISTS groups",
	"DROP TABLE IF EXISTS servers",
}

// Persister is a handle onto the fabric state store. Callers should create
// one Persister per worker goroutine from a shared *sql.DB; the underlying
// connection pool is what's actually shared.
type Persister struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (but does not yet validate) a connection to the state store.
func Open(dsn string, maxOpenConns, maxIdleConns int, log zerolog.Logger) (*Persister, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, ferrors.Database("failed to open state store", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	return &Persister{db: db, log: log}, nil
}

// New wraps an already-open *sql.DB, e.g. one shared by tests via testcontainers.
func New(db *sql.DB, log zerolog.Logger) *Persister {
	return &Persister{db: db, log: log}
}

// Ping verifies the state store is reachable, with one reconnect attempt on failure.
func (p *Persister) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		p.log.Warn().Err(err).Msg("persister: ping failed, retrying once")
		if err := p.db.PingContext(ctx); err != nil {
			return ferrors.Database("state store unreachable", err)
		}
	}
	return nil
}

// CreateSchema creates the fabric schema's tables if they don't already exist.
func (p *Persister) CreateSchema(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return ferrors.Persistence("failed to create schema", err)
		}
	}
	return nil
}

// DropSchema drops every table the fabric schema owns.
func (p *Persister) DropSchema(ctx context.Context) error {
	for _, stmt := range dropDDL {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return ferrors.Persistence("failed to drop schema", err)
		}
	}
	return nil
}

// DB exposes the underlying handle for packages (checkpoint, fabric,
// sharding) that run their own parametrised statements against the same
// connection pool.
func (p *Persister) DB() *sql.DB { return p.db }

// Tx wraps a single state-store transaction. A job must open exactly one Tx
// and either Commit or Rollback it before returning.
type Tx struct {
	tx *sql.Tx
}

// Begin opens a new transaction scoped to the caller's current job. Nested
// transactions are not supported — calling Begin again before Commit or
// Rollback is a programming error the caller must avoid.
func (p *Persister) Begin(ctx context.Context) (*Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		p.log.Warn().Err(err).Msg("persister: begin failed, retrying once")
		tx, err = p.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, ferrors.Database("failed to begin transaction", err)
		}
	}
	return &Tx{tx: tx}, nil
}

// Exec runs a statement returning no materialised result set.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Database("exec failed", err)
	}
	return res, nil
}

// Query runs a statement and returns a streaming cursor over the result set.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ferrors.Database("query failed", err)
	}
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return ferrors.Database("commit failed", err)
	}
	return nil
}

// Rollback rolls back the transaction. Calling Rollback after a successful
// Commit is a no-op (sql.Tx returns sql.ErrTxDone, which is ignored here).
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return ferrors.Database("rollback failed", err)
	}
	return nil
}
