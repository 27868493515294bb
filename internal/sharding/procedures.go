package sharding

import (
	"fmt"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/ferrors"
)

// DefineMappingHandler builds the events.Handler for EventDefineMapping.
func (c *Coordinator) DefineMappingHandler() events.Handler {
	return events.Handler{
		Name: ActionDefineMapping,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[DefineMappingRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("define_mapping: missing or malformed request argument")
			}
			id, err := c.repo.DefineMapping(jc.Ctx, req.Type, req.GlobalGroupID)
			return nil, id, err
		},
		DecodeArgs: decodeArg[DefineMappingRequest],
	}
}

// AddTableHandler builds the events.Handler for EventAddTable.
func (c *Coordinator) AddTableHandler() events.Handler {
	return events.Handler{
		Name: ActionAddTable,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[AddTableRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("add_table: missing or malformed request argument")
			}
			if req.IsAnchor {
				existing, err := c.repo.TablesForMapping(jc.Ctx, req.MappingID)
				if err != nil {
					return nil, nil, err
				}
				for _, t := range existing {
					if t.IsAnchor {
						return nil, nil, ferrors.Sharding("mapping already has an anchor table: " + t.QualifiedName)
					}
				}
			}
			err := c.repo.AddTable(jc.Ctx, Table{
				MappingID: req.MappingID, QualifiedName: req.QualifiedName,
				Column: req.Column, IsAnchor: req.IsAnchor,
			})
			return nil, nil, err
		},
		DecodeArgs: decodeArg[AddTableRequest],
	}
}

// AddShardHandler builds the events.Handler for EventAddShard. For
// RANGE-family mappings the shard's bound must be strictly increasing
// relative to the mapping's existing ranges; for HASH, the bound is
// auto-assigned by NextHashBound and req.Bound is ignored.
func (c *Coordinator) AddShardHandler() events.Handler {
	return events.Handler{
		Name: ActionAddShard,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[AddShardRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("add_shard: missing or malformed request argument")
			}
			mapping, err := c.repo.GetMapping(jc.Ctx, req.MappingID)
			if err != nil {
				return nil, nil, err
			}

			state := req.State
			if state == "" {
				state = ShardEnabled
			}
			shardID, err := c.repo.AddShard(jc.Ctx, req.MappingID, req.GroupID, state)
			if err != nil {
				return nil, nil, err
			}

			if mapping.Type.IsRangeFamily() {
				existing, err := c.repo.RangesForMapping(jc.Ctx, req.MappingID)
				if err != nil {
					return nil, nil, err
				}
				for _, rg := range existing {
					if compareBounds(mapping.Type, req.Bound, rg.LowerBound) <= 0 {
						return nil, nil, ferrors.Sharding("shard bound is not greater than existing range bound " + rg.LowerBound + ": " + req.Bound)
					}
				}
				if err := c.repo.AddRange(jc.Ctx, Range{MappingID: req.MappingID, LowerBound: req.Bound, ShardID: shardID}); err != nil {
					return nil, nil, err
				}
			} else {
				existing, err := c.repo.HashBucketsForMapping(jc.Ctx, req.MappingID)
				if err != nil {
					return nil, nil, err
				}
				bound := NextHashBound(len(existing))
				if err := c.repo.AddHashBucket(jc.Ctx, HashBucket{MappingID: req.MappingID, LowerBound: bound, ShardID: shardID}); err != nil {
					return nil, nil, err
				}
			}
			return nil, shardID, nil
		},
		DecodeArgs: decodeArg[AddShardRequest],
	}
}

// PruneHandler builds the events.Handler for EventPrune: deletes, from every
// shard's primary, rows that no longer belong to that shard under the
// table's current mapping (§4.10).
func (c *Coordinator) PruneHandler() events.Handler {
	return events.Handler{
		Name: ActionPrune,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[PruneRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("prune: missing or malformed request argument")
			}
			return nil, nil, c.prune(jc, req.QualifiedName)
		},
		DecodeArgs: decodeArg[PruneRequest],
	}
}

func (c *Coordinator) prune(jc events.JobContext, qualifiedName string) error {
	table, err := c.repo.TableByName(jc.Ctx, qualifiedName)
	if err != nil {
		return err
	}
	mapping, err := c.repo.GetMapping(jc.Ctx, table.MappingID)
	if err != nil {
		return err
	}

	bounds, err := c.shardBounds(jc.Ctx, mapping)
	if err != nil {
		return err
	}

	for shardID, b := range bounds {
		shard, err := c.repo.GetShard(jc.Ctx, shardID)
		if err != nil {
			return err
		}
		stmt, err := pruneDeleteSQL(mapping.Type, qualifiedName, table.Column, b.lower, b.upper)
		if err != nil {
			return err
		}
		mc, release, err := c.primaryConn(jc.Ctx, shard.GroupID)
		if err != nil {
			return err
		}
		execErr := mc.ExecStmt(jc.Ctx, stmt)
		release()
		if execErr != nil {
			return ferrors.Sharding(fmt.Sprintf("prune failed on shard %d: %v", shardID, execErr))
		}
	}
	return nil
}

// DisableShardHandler builds the events.Handler for EventDisableShard.
func (c *Coordinator) DisableShardHandler() events.Handler {
	return events.Handler{
		Name: ActionDisableShard,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[ShardStateRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("disable_shard: missing or malformed request argument")
			}
			return nil, nil, c.repo.SetShardState(jc.Ctx, req.ShardID, ShardDisabled)
		},
		DecodeArgs: decodeArg[ShardStateRequest],
	}
}

// EnableShardHandler builds the events.Handler for EventEnableShard.
func (c *Coordinator) EnableShardHandler() events.Handler {
	return events.Handler{
		Name: ActionEnableShard,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[ShardStateRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("enable_shard: missing or malformed request argument")
			}
			return nil, nil, c.repo.SetShardState(jc.Ctx, req.ShardID, ShardEnabled)
		},
		DecodeArgs: decodeArg[ShardStateRequest],
	}
}
