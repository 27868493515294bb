package fabric

import (
	"context"
	"database/sql"
	"time"

	"github.com/signal18/fabricd/internal/ferrors"
)

// ErrorLogEntry mirrors failuredetector.ErrorLogEntry. Kept as fabricd's own
// type (rather than importing failuredetector's) so this package stays a
// pure data layer; internal/fabricd's wiring converts between the two when it
// hands an *ErrorLog to failuredetector.New.
type ErrorLogEntry struct {
	GroupUUID  string
	ServerUUID string
	Reporter   string
	At         time.Time
	Failure    bool
}

// ErrorLog persists the error_log table backing the failure detector's
// sliding-window threshold checks.
type ErrorLog struct {
	db *sql.DB
}

// NewErrorLog builds an ErrorLog over db, the state store's shared handle.
func NewErrorLog(db *sql.DB) *ErrorLog {
	return &ErrorLog{db: db}
}

// Append records entry.
func (e *ErrorLog) Append(entry ErrorLogEntry) error {
	_, err := e.db.ExecContext(context.Background(), `
		INSERT INTO error_log (group_id, server_uuid, reporter, at, failure)
		VALUES (?, ?, ?, ?, ?)`,
		entry.GroupUUID, entry.ServerUUID, entry.Reporter, entry.At.UTC(), entry.Failure)
	if err != nil {
		return ferrors.Persistence("failed to append error log entry", err)
	}
	return nil
}

// Window returns every entry for (groupUUID, serverUUID) at or after since.
func (e *ErrorLog) Window(groupUUID, serverUUID string, since time.Time) ([]ErrorLogEntry, error) {
	rows, err := e.db.QueryContext(context.Background(), `
		SELECT group_id, server_uuid, reporter, at, failure
		FROM error_log
		WHERE group_id = ? AND server_uuid = ? AND at >= ?`,
		groupUUID, serverUUID, since.UTC())
	if err != nil {
		return nil, ferrors.Persistence("failed to window error log", err)
	}
	defer rows.Close()

	var out []ErrorLogEntry
	for rows.Next() {
		var entry ErrorLogEntry
		if err := rows.Scan(&entry.GroupUUID, &entry.ServerUUID, &entry.Reporter, &entry.At, &entry.Failure); err != nil {
			return nil, ferrors.Persistence("failed to scan error log row", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
