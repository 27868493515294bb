package mysqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/pool"
)

// ThreadKind selects which replication thread(s) an operation targets.
type ThreadKind string

const (
	ThreadIO  ThreadKind = "IO_THREAD"
	ThreadSQL ThreadKind = "SQL_THREAD"
)

// MasterStatus is the result of SHOW MASTER STATUS.
type MasterStatus struct {
	File           string
	Position       int64
	ExecutedGtidSet string
}

// SlaveStatus is the subset of SHOW SLAVE STATUS fabricd acts on.
type SlaveStatus struct {
	MasterUUID      string
	IOThreadRunning bool
	SQLThreadRunning bool
	SecondsBehindMaster *int64
	MasterLogFile   string
	ReadMasterLogPos int64
	RetrievedGtidSet string
	ExecutedGtidSet  string
	LastIOError     string
	LastSQLError    string
}

// Conn is a live connection to one managed MySQL server. It implements
// pool.Conn so internal/pool can track and recycle it.
type Conn struct {
	db         *sql.DB
	uuid       string
	user       string
	address    string
}

var _ pool.Conn = (*Conn)(nil)

// User returns the account this connection authenticated as.
func (c *Conn) User() string { return c.user }

// Ping verifies the connection is alive.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return ferrors.Server("ping failed for " + c.uuid)
	}
	return nil
}

// Close releases the underlying handle.
func (c *Conn) Close() error { return c.db.Close() }

// ExecStmt runs a statement expected to return no rows.
func (c *Conn) ExecStmt(ctx context.Context, query string, args ...any) error {
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return ferrors.Server(fmt.Sprintf("exec failed: %s", query))
	}
	return nil
}

// ServerUUID discovers the server's MySQL server_uuid via
// @@global.server_uuid, the identity §4.7 requires before a server can be
// added to a group.
func (c *Conn) ServerUUID(ctx context.Context) (string, error) {
	var uuid string
	row := c.db.QueryRowContext(ctx, `SELECT @@global.server_uuid`)
	if err := row.Scan(&uuid); err != nil {
		return "", ferrors.Server("failed to discover server uuid")
	}
	return uuid, nil
}

// Datadir reports @@datadir, the server's on-disk data directory path.
func (c *Conn) Datadir(ctx context.Context) (string, error) {
	var dir string
	row := c.db.QueryRowContext(ctx, `SELECT @@datadir`)
	if err := row.Scan(&dir); err != nil {
		return "", ferrors.Server("failed to read datadir")
	}
	return dir, nil
}

// GrantedPrivileges returns the account's global privileges, as reported by
// SHOW GRANTS, for fabric.CheckPrivileges to validate against RequiredPrivileges.
func (c *Conn) GrantedPrivileges(ctx context.Context) (map[string]struct{}, error) {
	rows, err := c.db.QueryContext(ctx, `SHOW GRANTS`)
	if err != nil {
		return nil, ferrors.Server("failed to read grants")
	}
	defer rows.Close()

	granted := make(map[string]struct{})
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, ferrors.Server("failed to scan grants row")
		}
		upper := strings.ToUpper(line)
		if !strings.Contains(upper, " ON *.*") {
			continue
		}
		if strings.Contains(upper, "ALL PRIVILEGES") {
			for _, p := range []string{"REPLICATION SLAVE", "REPLICATION CLIENT", "SUPER", "SHOW DATABASES", "RELOAD"} {
				granted[p] = struct{}{}
			}
			continue
		}
		between := upper[strings.Index(upper, "GRANT ")+len("GRANT "):]
		between = between[:strings.Index(between, " ON ")]
		for _, p := range strings.Split(between, ",") {
			granted[strings.TrimSpace(p)] = struct{}{}
		}
	}
	return granted, rows.Err()
}

// ReadOnly reports @@global.read_only.
func (c *Conn) ReadOnly(ctx context.Context) (bool, error) {
	var v bool
	if err := c.db.QueryRowContext(ctx, `SELECT @@global.read_only`).Scan(&v); err != nil {
		return false, ferrors.Server("failed to read read_only")
	}
	return v, nil
}

// SetReadOnly flips @@global.read_only.
func (c *Conn) SetReadOnly(ctx context.Context, ro bool) error {
	return c.ExecStmt(ctx, "SET GLOBAL read_only = ?", ro)
}

// GTIDEnabled reports @@global.gtid_mode.
func (c *Conn) GTIDEnabled(ctx context.Context) (bool, error) {
	var mode string
	if err := c.db.QueryRowContext(ctx, `SELECT @@global.gtid_mode`).Scan(&mode); err != nil {
		return false, ferrors.Server("failed to read gtid_mode")
	}
	return strings.EqualFold(mode, "ON"), nil
}

// GetMasterStatus runs SHOW MASTER STATUS. Assumes the standard five-column
// form (File, Position, Binlog_Do_DB, Binlog_Ignore_DB, Executed_Gtid_Set).
func (c *Conn) GetMasterStatus(ctx context.Context) (MasterStatus, error) {
	row := c.db.QueryRowContext(ctx, `SHOW MASTER STATUS`)
	var ms MasterStatus
	if err := row.Scan(&ms.File, &ms.Position, new(string), new(string), &ms.ExecutedGtidSet); err != nil {
		return MasterStatus{}, ferrors.Server("failed to read master status")
	}
	return ms, nil
}

// ResetMaster runs RESET MASTER.
func (c *Conn) ResetMaster(ctx context.Context) error {
	return c.ExecStmt(ctx, "RESET MASTER")
}

// GetSlaveStatus runs SHOW SLAVE STATUS and extracts the columns fabricd
// acts on. The remaining columns are discarded without being named, since
// SHOW SLAVE STATUS's column set varies across MySQL/MariaDB versions.
func (c *Conn) GetSlaveStatus(ctx context.Context) (SlaveStatus, bool, error) {
	rows, err := c.db.QueryContext(ctx, `SHOW SLAVE STATUS`)
	if err != nil {
		return SlaveStatus{}, false, ferrors.Server("failed to read slave status")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return SlaveStatus{}, false, ferrors.Server("failed to read slave status columns")
	}
	if !rows.Next() {
		return SlaveStatus{}, false, nil // not a slave
	}

	dest := make([]any, len(cols))
	raw := make([]sql.NullString, len(cols))
	for i := range dest {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return SlaveStatus{}, false, ferrors.Server("failed to scan slave status")
	}

	byName := make(map[string]string, len(cols))
	for i, name := range cols {
		byName[name] = raw[i].String
	}

	ss := SlaveStatus{
		MasterUUID:       byName["Master_UUID"],
		IOThreadRunning:  strings.EqualFold(byName["Slave_IO_Running"], "Yes"),
		SQLThreadRunning: strings.EqualFold(byName["Slave_SQL_Running"], "Yes"),
		MasterLogFile:    byName["Master_Log_File"],
		RetrievedGtidSet: byName["Retrieved_Gtid_Set"],
		ExecutedGtidSet:  byName["Executed_Gtid_Set"],
		LastIOError:      byName["Last_IO_Error"],
		LastSQLError:     byName["Last_SQL_Error"],
	}
	if pos, ok := byName["Read_Master_Log_Pos"]; ok {
		fmt.Sscanf(pos, "%d", &ss.ReadMasterLogPos)
	}
	if behind, ok := byName["Seconds_Behind_Master"]; ok && behind != "" {
		var s int64
		if _, err := fmt.Sscanf(behind, "%d", &s); err == nil {
			ss.SecondsBehindMaster = &s
		}
	}
	return ss, true, nil
}

// StartSlave runs START SLAVE, restricted to threads if non-empty, and
// optionally waits (polling at one-second granularity, per §4.8) for the
// thread(s) to report running within timeout.
func (c *Conn) StartSlave(ctx context.Context, threads []ThreadKind, wait bool, timeout time.Duration) error {
	if err := c.ExecStmt(ctx, "START SLAVE "+threadClause(threads)); err != nil {
		return err
	}
	if wait {
		return c.waitForThreads(ctx, threads, true, timeout)
	}
	return nil
}

// StopSlave runs STOP SLAVE, mirroring StartSlave's threads/wait contract.
func (c *Conn) StopSlave(ctx context.Context, threads []ThreadKind, wait bool, timeout time.Duration) error {
	if err := c.ExecStmt(ctx, "STOP SLAVE "+threadClause(threads)); err != nil {
		return err
	}
	if wait {
		return c.waitForThreads(ctx, threads, false, timeout)
	}
	return nil
}

func threadClause(threads []ThreadKind) string {
	if len(threads) == 0 {
		return ""
	}
	parts := make([]string, len(threads))
	for i, t := range threads {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func (c *Conn) waitForThreads(ctx context.Context, threads []ThreadKind, wantRunning bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, isSlave, err := c.GetSlaveStatus(ctx)
		if err != nil {
			return err
		}
		if isSlave && threadsMatch(status, threads, wantRunning) {
			return nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return ferrors.Timeout("waiting for slave thread to change state", nil)
		}
		select {
		case <-ctx.Done():
			return ferrors.Timeout("waiting for slave thread to change state", ctx.Err())
		case <-time.After(time.Second):
		}
	}
}

func threadsMatch(status SlaveStatus, threads []ThreadKind, wantRunning bool) bool {
	check := func(running bool) bool { return running == wantRunning }
	if len(threads) == 0 {
		return check(status.IOThreadRunning) && check(status.SQLThreadRunning)
	}
	for _, t := range threads {
		switch t {
		case ThreadIO:
			if !check(status.IOThreadRunning) {
				return false
			}
		case ThreadSQL:
			if !check(status.SQLThreadRunning) {
				return false
			}
		}
	}
	return true
}

// ResetSlave runs RESET SLAVE [ALL].
func (c *Conn) ResetSlave(ctx context.Context, clean bool) error {
	if clean {
		return c.ExecStmt(ctx, "RESET SLAVE ALL")
	}
	return c.ExecStmt(ctx, "RESET SLAVE")
}

// SwitchMaster runs CHANGE MASTER TO, per §4.8. When gtidEnabled,
// MASTER_AUTO_POSITION = 1 is used and file/pos are ignored; otherwise the
// caller's fromBeginning/logFile/logPos select binlog-coordinate mode.
func (c *Conn) SwitchMaster(ctx context.Context, masterHost string, masterPort int, user, passwd string, gtidEnabled, fromBeginning bool, logFile string, logPos int64) error {
	var clauses []string
	var args []any
	clauses = append(clauses, "MASTER_HOST = ?")
	args = append(args, masterHost)
	clauses = append(clauses, "MASTER_PORT = ?")
	args = append(args, masterPort)
	if user != "" {
		clauses = append(clauses, "MASTER_USER = ?")
		args = append(args, user)
	}
	if passwd != "" {
		clauses = append(clauses, "MASTER_PASSWORD = ?")
		args = append(args, passwd)
	}
	switch {
	case gtidEnabled:
		clauses = append(clauses, "MASTER_AUTO_POSITION = 1")
	case !fromBeginning:
		clauses = append(clauses, "MASTER_LOG_FILE = ?")
		args = append(args, logFile)
		if logPos >= 0 {
			clauses = append(clauses, fmt.Sprintf("MASTER_LOG_POS = %d", logPos))
		}
	}
	return c.ExecStmt(ctx, "CHANGE MASTER TO "+strings.Join(clauses, ", "), args...)
}

// WaitForSlave runs a single blocking MASTER_POS_WAIT for the slave to catch
// up to (binlogFile, binlogPos), with timeout passed in whole seconds,
// failing with a Timeout error if it doesn't within timeout (§4.8).
func (c *Conn) WaitForSlave(ctx context.Context, binlogFile string, binlogPos int64, timeout time.Duration) error {
	var result sql.NullInt64
	row := c.db.QueryRowContext(ctx, `SELECT MASTER_POS_WAIT(?, ?, ?)`, binlogFile, binlogPos, int(timeout.Seconds()))
	if err := row.Scan(&result); err != nil {
		return ferrors.Server("failed to wait for slave position")
	}
	if !result.Valid {
		return ferrors.Timeout("slave has not caught up to binlog position", nil)
	}
	if result.Int64 < 0 {
		return ferrors.Timeout(fmt.Sprintf("slave did not catch up to %s:%d", binlogFile, binlogPos), nil)
	}
	return nil
}

// WaitForSlaveGTID runs a single blocking WAIT_UNTIL_SQL_THREAD_AFTER_GTIDS
// call, which returns once the slave's SQL thread has applied every
// transaction in gtidSet or timeout (in whole seconds) passes, per §4.8.
func (c *Conn) WaitForSlaveGTID(ctx context.Context, gtidSet string, timeout time.Duration) error {
	var result sql.NullInt64
	row := c.db.QueryRowContext(ctx, `SELECT WAIT_UNTIL_SQL_THREAD_AFTER_GTIDS(?, ?)`, strings.Trim(gtidSet, ","), int(timeout.Seconds()))
	if err := row.Scan(&result); err != nil {
		return ferrors.Server("failed to wait for slave gtid")
	}
	if !result.Valid || result.Int64 < 0 {
		return ferrors.Timeout("slave did not catch up to gtid set "+gtidSet, nil)
	}
	return nil
}

// CheckMasterIssues reports problems found on a would-be/actual primary,
// keyed by issue name, per §4.8's check_master_issues.
func (c *Conn) CheckMasterIssues(ctx context.Context) (map[string]string, error) {
	issues := make(map[string]string)
	var logBin bool
	if err := c.db.QueryRowContext(ctx, `SELECT @@global.log_bin`).Scan(&logBin); err != nil {
		return nil, ferrors.Server("failed to read log_bin")
	}
	if !logBin {
		issues["binlog"] = "binary logging is disabled"
	}
	return issues, nil
}

// CheckSlaveIssues reports replication problems on a slave, per §4.8's
// check_slave_issues: IO/SQL thread errors and whether each thread is running.
func (c *Conn) CheckSlaveIssues(ctx context.Context) (map[string]string, error) {
	status, isSlave, err := c.GetSlaveStatus(ctx)
	if err != nil {
		return nil, err
	}
	issues := make(map[string]string)
	if !isSlave {
		issues["replication"] = "server is not configured as a slave"
		return issues, nil
	}
	if !status.IOThreadRunning {
		issues["io_thread"] = status.LastIOError
	}
	if !status.SQLThreadRunning {
		issues["sql_thread"] = status.LastSQLError
	}
	return issues, nil
}

// CheckSlaveDelay reports a "delay" issue when the slave's
// Seconds_Behind_Master exceeds maxDelay, per §4.8's check_slave_delay.
func (c *Conn) CheckSlaveDelay(ctx context.Context, maxDelay time.Duration) (map[string]string, error) {
	status, isSlave, err := c.GetSlaveStatus(ctx)
	if err != nil {
		return nil, err
	}
	issues := make(map[string]string)
	if !isSlave || status.SecondsBehindMaster == nil {
		return issues, nil
	}
	if time.Duration(*status.SecondsBehindMaster)*time.Second > maxDelay {
		issues["delay"] = fmt.Sprintf("replication delay %ds exceeds bound", *status.SecondsBehindMaster)
	}
	return issues, nil
}
