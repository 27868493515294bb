package sharding

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/signal18/fabricd/internal/ferrors"
)

// BackupRestorer performs the external snapshot/restore steps split and
// move need before they can touch the state store: a split is only safe
// once the destination group's primary physically holds the source shard's
// data (§4.10, step 1-2). fabricd shells out to mysqldump/mysql rather than
// reimplementing a binary snapshot protocol.
type BackupRestorer interface {
	// Backup snapshots sourceAddr's data and returns an opaque reference
	// (a local file path, for the stock implementation) split can later
	// pass to Restore.
	Backup(ctx context.Context, sourceAddr string) (string, error)
	// Restore applies a snapshot produced by Backup onto destAddr.
	Restore(ctx context.Context, destAddr, snapshotRef string) error
}

// noopBackupRestorer is the zero-value BackupRestorer: it always fails,
// so a Coordinator built without explicit backup tooling refuses split
// rather than silently skipping the snapshot step.
type noopBackupRestorer struct{}

func (noopBackupRestorer) Backup(ctx context.Context, sourceAddr string) (string, error) {
	return "", ferrors.Sharding("split_shard requires external backup tooling, none configured")
}

func (noopBackupRestorer) Restore(ctx context.Context, destAddr, snapshotRef string) error {
	return ferrors.Sharding("split_shard requires external backup tooling, none configured")
}

// MysqldumpBackupRestorer shells out to the mysqldump/mysql client binaries
// on PATH, authenticating with creds against each managed server's address.
type MysqldumpBackupRestorer struct {
	Creds    credentialProvider
	DumpPath string // defaults to "mysqldump"
	LoadPath string // defaults to "mysql"
}

// credentialProvider avoids an import-cycle-prone dependency on
// mysqlconn.Credentials' concrete type; mysqlconn.Credentials satisfies it.
type credentialProvider interface {
	MySQLAuthArgs() []string
}

func (m MysqldumpBackupRestorer) dumpBin() string {
	if m.DumpPath != "" {
		return m.DumpPath
	}
	return "mysqldump"
}

func (m MysqldumpBackupRestorer) loadBin() string {
	if m.LoadPath != "" {
		return m.LoadPath
	}
	return "mysql"
}

// Backup runs mysqldump against sourceAddr and writes the output to a
// temporary file, returning its path.
func (m MysqldumpBackupRestorer) Backup(ctx context.Context, sourceAddr string) (string, error) {
	args := append(append([]string{}, m.Creds.MySQLAuthArgs()...), "-h", hostOf(sourceAddr), "--all-databases")
	cmd := exec.CommandContext(ctx, m.dumpBin(), args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", ferrors.Sharding(fmt.Sprintf("mysqldump failed: %v: %s", err, stderr.String()))
	}
	path, err := writeTempSnapshot(out.Bytes())
	if err != nil {
		return "", ferrors.Sharding("failed to persist snapshot: " + err.Error())
	}
	return path, nil
}

// Restore pipes the snapshot file into the mysql client against destAddr.
func (m MysqldumpBackupRestorer) Restore(ctx context.Context, destAddr, snapshotRef string) error {
	data, err := readSnapshot(snapshotRef)
	if err != nil {
		return ferrors.Sharding("failed to read snapshot: " + err.Error())
	}
	args := append(append([]string{}, m.Creds.MySQLAuthArgs()...), "-h", hostOf(destAddr))
	cmd := exec.CommandContext(ctx, m.loadBin(), args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ferrors.Sharding(fmt.Sprintf("mysql restore failed: %v: %s", err, stderr.String()))
	}
	return nil
}
