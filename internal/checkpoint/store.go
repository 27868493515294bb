// Package checkpoint implements the checkpoint log: the persistent table
// keyed by (procedure_uuid, job_uuid) with a monotonically increasing
// sequence per procedure, that the executor uses to recover after a crash.
package checkpoint

import (
	"context"
	"database/sql"
	"time"

	"github.com/signal18/fabricd/internal/ferrors"
)

// SQL kept as constants for clarity and reuse, mirroring the lease/mark
// pattern used elsewhere in this daemon for SQL-heavy components.
const (
	insertSQL = `
INSERT INTO checkpoints (procedure_uuid, job_uuid, sequence, action, args)
SELECT ?, ?, COALESCE((SELECT MAX(sequence) FROM checkpoints WHERE procedure_uuid = ?), 0) + 1, ?, ?`

	beginSQL  = `UPDATE checkpoints SET started_at = ? WHERE procedure_uuid = ? AND job_uuid = ?`
	finishSQL = `UPDATE checkpoints SET finished_at = ? WHERE procedure_uuid = ? AND job_uuid = ?`
	removeSQL = `DELETE FROM checkpoints WHERE procedure_uuid = ?`

	scheduledSQL = `
SELECT procedure_uuid, job_uuid, sequence, action, args, started_at, finished_at
FROM checkpoints
WHERE finished_at IS NULL
ORDER BY procedure_uuid, sequence`

	unfinishedSQL = `
SELECT c.procedure_uuid, c.job_uuid, c.sequence, c.action, c.args, c.started_at, c.finished_at
FROM checkpoints c
INNER JOIN (
	SELECT procedure_uuid, MAX(sequence) AS max_seq
	FROM checkpoints
	WHERE procedure_uuid IN (
		SELECT procedure_uuid FROM checkpoints WHERE started_at IS NOT NULL AND finished_at IS NULL
	)
	GROUP BY procedure_uuid
) m ON c.procedure_uuid = m.procedure_uuid AND c.sequence = m.max_seq`

	cleanupSQL = `
DELETE FROM checkpoints WHERE procedure_uuid IN (
	SELECT procedure_uuid FROM (
		SELECT procedure_uuid
		FROM checkpoints
		GROUP BY procedure_uuid
		HAVING SUM(CASE WHEN finished_at IS NULL THEN 1 ELSE 0 END) = 0
	) AS done
)`
)

// Row is one checkpoint log entry: a job's identity, args, and lifecycle timestamps.
type Row struct {
	ProcedureUUID string
	JobUUID       string
	Sequence      int64
	Action        string
	Args          []byte
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// Store is the checkpoint log, backed by the shared state-store connection pool.
type Store struct {
	db *sql.DB
}

// New builds a Store over db (the state store's *sql.DB, shared with internal/persister).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schedule inserts a new row for job with sequence = max(existing)+1 for its procedure.
func (s *Store) Schedule(ctx context.Context, procedureUUID, jobUUID, action string, args []byte) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, ferrors.Persistence("failed to begin checkpoint transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertSQL, procedureUUID, jobUUID, procedureUUID, action, args); err != nil {
		return 0, ferrors.Persistence("failed to schedule checkpoint", err)
	}
	var seq int64
	row := tx.QueryRowContext(ctx, `SELECT sequence FROM checkpoints WHERE procedure_uuid = ? AND job_uuid = ?`, procedureUUID, jobUUID)
	if err := row.Scan(&seq); err != nil {
		return 0, ferrors.Persistence("failed to read scheduled sequence", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, ferrors.Persistence("failed to commit checkpoint schedule", err)
	}
	return seq, nil
}

// Begin stamps started_at for job.
func (s *Store) Begin(ctx context.Context, procedureUUID, jobUUID string) error {
	_, err := s.db.ExecContext(ctx, beginSQL, time.Now().UTC(), procedureUUID, jobUUID)
	if err != nil {
		return ferrors.Persistence("failed to mark checkpoint started", err)
	}
	return nil
}

// Finish stamps finished_at for job.
func (s *Store) Finish(ctx context.Context, procedureUUID, jobUUID string) error {
	_, err := s.db.ExecContext(ctx, finishSQL, time.Now().UTC(), procedureUUID, jobUUID)
	if err != nil {
		return ferrors.Persistence("failed to mark checkpoint finished", err)
	}
	return nil
}

// Remove deletes all rows for a completed procedure.
func (s *Store) Remove(ctx context.Context, procedureUUID string) error {
	_, err := s.db.ExecContext(ctx, removeSQL, procedureUUID)
	if err != nil {
		return ferrors.Persistence("failed to remove checkpoint rows", err)
	}
	return nil
}

// Scheduled returns rows with finished_at null, ordered by procedure then sequence.
func (s *Store) Scheduled(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, scheduledSQL)
	if err != nil {
		return nil, ferrors.Persistence("failed to query scheduled checkpoints", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Unfinished returns, for each procedure that has at least one
// started-but-not-finished row, its highest-sequence row.
func (s *Store) Unfinished(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, unfinishedSQL)
	if err != nil {
		return nil, ferrors.Persistence("failed to query unfinished checkpoints", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Cleanup deletes rows for procedures whose last job finished successfully
// but were not removed (e.g. because the daemon crashed between finish and remove).
func (s *Store) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, cleanupSQL); err != nil {
		return ferrors.Persistence("failed to clean up finished checkpoints", err)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ProcedureUUID, &r.JobUUID, &r.Sequence, &r.Action, &r.Args, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, ferrors.Persistence("failed to scan checkpoint row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
