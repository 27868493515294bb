// Package ha implements the high-availability procedures: promote, demote,
// add-server, remove-server, and the priority failover the failure detector
// triggers. Each procedure is registered with the event dispatcher as an
// events.Handler and, separately, with the executor's HandlerRegistry so a
// crash mid-procedure can be recovered.
package ha

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/executor"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/lock"
	"github.com/signal18/fabricd/internal/mysqlconn"
	"github.com/signal18/fabricd/internal/pool"
)

// Dispatcher event names for the HA procedures.
const (
	EventPromote      = "ha.promote"
	EventDemote       = "ha.demote"
	EventAddServer    = "ha.add_server"
	EventRemoveServer = "ha.remove_server"
)

// Checkpoint action names: stable identifiers the recovery registry
// resolves back to a live Handler.
const (
	ActionPromote      = "fabric.ha.Promote"
	ActionDemote       = "fabric.ha.Demote"
	ActionAddServer    = "fabric.ha.AddServer"
	ActionRemoveServer = "fabric.ha.RemoveServer"
)

// PromoteRequest is EventPromote's Action argument.
type PromoteRequest struct {
	GroupID    string
	Candidate  string // "" selects automatically
	UpdateOnly bool
}

// DemoteRequest is EventDemote's Action argument.
type DemoteRequest struct {
	GroupID        string
	UpdateOnly     bool
	CatchUpTimeout time.Duration
}

// AddServerRequest is EventAddServer's Action argument.
type AddServerRequest struct {
	GroupID string
	Address string
}

// RemoveServerRequest is EventRemoveServer's Action argument.
type RemoveServerRequest struct {
	ServerUUID string
}

// Coordinator wires the HA procedures to the farm's structural state, the
// connection pool, and the lock manager.
type Coordinator struct {
	repo  *fabric.Repository
	pool  *pool.Pool
	locks *lock.Manager
	creds mysqlconn.Credentials
	log   zerolog.Logger
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(repo *fabric.Repository, p *pool.Pool, locks *lock.Manager, creds mysqlconn.Credentials, log zerolog.Logger) *Coordinator {
	return &Coordinator{repo: repo, pool: p, locks: locks, creds: creds, log: log}
}

// conn checks out a mysqlconn handle for serverUUID. The pool hands back
// its Conn interface; every dialed handle is actually a *mysqlconn.Conn
// (internal/mysqlconn.Dialer is the only Dialer wired in internal/fabricd), so
// the type assertion is a programming-error backstop, not a real branch.
func (c *Coordinator) conn(ctx context.Context, serverUUID string) (*mysqlconn.Conn, func(), error) {
	pc, err := c.pool.Get(ctx, serverUUID, c.creds.User)
	if err != nil {
		return nil, nil, err
	}
	mc, ok := pc.(*mysqlconn.Conn)
	if !ok {
		_ = pc.Close()
		return nil, nil, ferrors.Programming("pool returned a non-mysqlconn handle")
	}
	return mc, func() { c.pool.Release(serverUUID, pc) }, nil
}

// Register binds every HA handler to dispatcher under its event name.
func (c *Coordinator) Register(dispatcher *events.Dispatcher) {
	dispatcher.Register(EventPromote, c.PromoteHandler())
	dispatcher.Register(EventDemote, c.DemoteHandler())
	dispatcher.Register(EventAddServer, c.AddServerHandler())
	dispatcher.Register(EventRemoveServer, c.RemoveServerHandler())
}

// RegisterRecoverable records every HA action name against reg, so the
// executor can resume a crashed HA procedure instead of abandoning it.
func (c *Coordinator) RegisterRecoverable(reg *executor.HandlerRegistry) {
	reg.Register(ActionPromote, c.PromoteHandler())
	reg.Register(ActionDemote, c.DemoteHandler())
	reg.Register(ActionAddServer, c.AddServerHandler())
	reg.Register(ActionRemoveServer, c.RemoveServerHandler())
}
