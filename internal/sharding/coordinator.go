package sharding

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/executor"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/mysqlconn"
	"github.com/signal18/fabricd/internal/pool"
)

// Dispatcher event names for the sharding procedures.
const (
	EventDefineMapping  = "sharding.define_mapping"
	EventAddTable       = "sharding.add_table"
	EventAddShard       = "sharding.add_shard"
	EventPrune          = "sharding.prune"
	EventDisableShard   = "sharding.disable_shard"
	EventEnableShard    = "sharding.enable_shard"
	EventSplitShard     = "sharding.split_shard"
	EventMoveShard      = "sharding.move_shard"
)

// Checkpoint action names: stable identifiers the recovery registry
// resolves back to a live Handler.
const (
	ActionDefineMapping = "fabric.sharding.DefineMapping"
	ActionAddTable      = "fabric.sharding.AddTable"
	ActionAddShard      = "fabric.sharding.AddShard"
	ActionPrune         = "fabric.sharding.Prune"
	ActionDisableShard  = "fabric.sharding.DisableShard"
	ActionEnableShard   = "fabric.sharding.EnableShard"
	ActionSplitShard    = "fabric.sharding.SplitShard"
	ActionMoveShard     = "fabric.sharding.MoveShard"
)

// DefineMappingRequest is EventDefineMapping's Action argument.
type DefineMappingRequest struct {
	Type          MappingType
	GlobalGroupID string
}

// AddTableRequest is EventAddTable's Action argument.
type AddTableRequest struct {
	MappingID     int64
	QualifiedName string
	Column        string
	IsAnchor      bool
}

// AddShardRequest is EventAddShard's Action argument. Bound is the RANGE
// lower bound for RANGE-family mappings; ignored (auto-assigned) for HASH.
type AddShardRequest struct {
	MappingID int64
	GroupID   string
	Bound     string
	State     ShardState
}

// PruneRequest is EventPrune's Action argument.
type PruneRequest struct {
	QualifiedName string
}

// ShardStateRequest is EventDisableShard/EventEnableShard's Action argument.
type ShardStateRequest struct {
	ShardID int64
}

// SplitShardRequest is EventSplitShard's Action argument.
type SplitShardRequest struct {
	MappingID   int64
	ShardID     int64
	DestGroupID string
	SplitPoint  string
}

// MoveShardRequest is EventMoveShard's Action argument.
type MoveShardRequest struct {
	ShardID     int64
	DestGroupID string
}

// Coordinator wires the sharding procedures to the sharding metadata, the
// farm's structural state, and the connection pool used to run DDL/DML on
// shard primaries.
type Coordinator struct {
	repo   *Repository
	fabric *fabric.Repository
	pool   *pool.Pool
	creds  mysqlconn.Credentials
	backup BackupRestorer
	log    zerolog.Logger
}

// NewCoordinator builds a Coordinator. backup may be nil; split falls back
// to a no-op that errors, since snapshot/restore always requires an
// operator-supplied external tool (§4.10: "external backup tooling").
func NewCoordinator(repo *Repository, fabricRepo *fabric.Repository, p *pool.Pool, creds mysqlconn.Credentials, backup BackupRestorer, log zerolog.Logger) *Coordinator {
	if backup == nil {
		backup = noopBackupRestorer{}
	}
	return &Coordinator{repo: repo, fabric: fabricRepo, pool: p, creds: creds, backup: backup, log: log}
}

// primaryConn checks out a mysqlconn handle for groupID's current primary.
func (c *Coordinator) primaryConn(ctx context.Context, groupID string) (*mysqlconn.Conn, func(), error) {
	group, err := c.fabric.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if group.MasterUUID == "" {
		return nil, nil, ferrors.Sharding("group has no primary: " + groupID)
	}
	pc, err := c.pool.Get(ctx, group.MasterUUID, c.creds.User)
	if err != nil {
		return nil, nil, err
	}
	mc, ok := pc.(*mysqlconn.Conn)
	if !ok {
		_ = pc.Close()
		return nil, nil, ferrors.Programming("pool returned a non-mysqlconn handle")
	}
	return mc, func() { c.pool.Release(group.MasterUUID, pc) }, nil
}

// primaryConnByUUID checks out a mysqlconn handle for a known server uuid,
// bypassing the group lookup primaryConn does (used when the caller has
// already resolved which server is the relevant primary).
func (c *Coordinator) primaryConnByUUID(ctx context.Context, serverUUID string) (*mysqlconn.Conn, func(), error) {
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

// Register binds every sharding handler to dispatcher under its event name.
func (c *Coordinator) Register(dispatcher *events.Dispatcher) {
	dispatcher.Register(EventDefineMapping, c.DefineMappingHandler())
	dispatcher.Register(EventAddTable, c.AddTableHandler())
	dispatcher.Register(EventAddShard, c.AddShardHandler())
	dispatcher.Register(EventPrune, c.PruneHandler())
	dispatcher.Register(EventDisableShard, c.DisableShardHandler())
	dispatcher.Register(EventEnableShard, c.EnableShardHandler())
	dispatcher.Register(EventSplitShard, c.SplitShardHandler())
	dispatcher.Register(EventMoveShard, c.MoveShardHandler())
}

// RegisterRecoverable records every sharding action name against reg, so the
// executor can resume a crashed sharding procedure instead of abandoning it.
func (c *Coordinator) RegisterRecoverable(reg *executor.HandlerRegistry) {
	reg.Register(ActionDefineMapping, c.DefineMappingHandler())
	reg.Register(ActionAddTable, c.AddTableHandler())
	reg.Register(ActionAddShard, c.AddShardHandler())
	reg.Register(ActionPrune, c.PruneHandler())
	reg.Register(ActionDisableShard, c.DisableShardHandler())
	reg.Register(ActionEnableShard, c.EnableShardHandler())
	reg.Register(ActionSplitShard, c.SplitShardHandler())
	reg.Register(ActionMoveShard, c.MoveShardHandler())
}

// argOf extracts a typed argument from a Handler's args slice, mirroring
// internal/ha's convention of one request value per Action.
func argOf[T any](args []any) (T, bool) {
	var zero T
	if len(args) == 0 {
		return zero, false
	}
	v, ok := args[0].(T)
	return v, ok
}

// decodeArg is the symmetric counterpart to argOf: it rebuilds the one-value
// args slice a recovered job needs from the checkpoint log's JSON encoding.
func decodeArg[T any](data []byte) ([]any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return []any{v}, nil
}
