package mysqlconn

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/pool"
)

// Directory resolves a server_uuid to the address fabricd should dial. It is
// implemented by internal/fabric.Repository (address lives on the Server row).
type Directory interface {
	AddressOf(ctx context.Context, serverUUID string) (string, error)
}

// Credentials is the single replication/admin account fabricd connects as
// on every managed server, configured once for the whole farm (§2 of the
// source system: Fabric uses one operational account across all servers).
type Credentials struct {
	User     string
	Password string
}

// MySQLAuthArgs renders creds as mysql/mysqldump client CLI flags, so
// internal/sharding's backup tooling can authenticate without depending on
// this package's internal DSN construction.
func (c Credentials) MySQLAuthArgs() []string {
	return []string{"-u", c.User, fmt.Sprintf("-p%s", c.Password)}
}

// Dialer opens fresh mysqlconn.Conn handles, implementing pool.Dialer.
type Dialer struct {
	dir   Directory
	creds Credentials
}

var _ pool.Dialer = (*Dialer)(nil)

// NewDialer builds a Dialer that resolves addresses via dir and authenticates
// as creds on every managed server.
func NewDialer(dir Directory, creds Credentials) *Dialer {
	return &Dialer{dir: dir, creds: creds}
}

// Dial opens a connection to serverUUID's current address.
func (d *Dialer) Dial(ctx context.Context, serverUUID string) (pool.Conn, error) {
	address, err := d.dir.AddressOf(ctx, serverUUID)
	if err != nil {
		return nil, err
	}
	return Probe(ctx, address, d.creds)
}

// Probe opens a connection directly against address, bypassing the pool and
// Directory. Used by the add-server procedure to discover a server's uuid
// and privileges before it has a repository row to resolve through.
func Probe(ctx context.Context, address string, creds Credentials) (*Conn, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/?timeout=5s", creds.User, creds.Password, address)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, ferrors.Database("failed to open managed server connection", err)
	}
	db.SetMaxOpenConns(4)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ferrors.Database("managed server unreachable", err)
	}
	return &Conn{db: db, uuid: "", user: creds.User, address: address}, nil
}
