package rpc

import (
	"context"
	"fmt"

	"github.com/signal18/fabricd/internal/sharding"
)

// shardLockName is the lockable-object identifier for a shard, distinct
// from a group id string so a shard-level procedure and a group-level HA
// procedure never collide on the same lock key by coincidence.
func shardLockName(shardID int64) string {
	return fmt.Sprintf("shard:%d", shardID)
}

// DefineMapping triggers sharding.EventDefineMapping.
func (s *Service) DefineMapping(ctx context.Context, mappingType sharding.MappingType, globalGroupID string, wait bool) Envelope {
	return s.trigger(ctx, wait, sharding.EventDefineMapping, []string{globalGroupID}, sharding.DefineMappingRequest{
		Type: mappingType, GlobalGroupID: globalGroupID,
	})
}

// AddTable triggers sharding.EventAddTable.
func (s *Service) AddTable(ctx context.Context, req sharding.AddTableRequest, wait bool) Envelope {
	return s.trigger(ctx, wait, sharding.EventAddTable, []string{req.QualifiedName}, req)
}

// AddShard triggers sharding.EventAddShard.
func (s *Service) AddShard(ctx context.Context, req sharding.AddShardRequest, wait bool) Envelope {
	return s.trigger(ctx, wait, sharding.EventAddShard, []string{req.GroupID}, req)
}

// PruneShard triggers sharding.EventPrune for qualifiedName.
func (s *Service) PruneShard(ctx context.Context, qualifiedName string, wait bool) Envelope {
	return s.trigger(ctx, wait, sharding.EventPrune, []string{qualifiedName}, sharding.PruneRequest{
		QualifiedName: qualifiedName,
	})
}

// EnableShard triggers sharding.EventEnableShard.
func (s *Service) EnableShard(ctx context.Context, shardID int64, wait bool) Envelope {
	return s.shardStateCommand(ctx, sharding.EventEnableShard, shardID, wait)
}

// DisableShard triggers sharding.EventDisableShard.
func (s *Service) DisableShard(ctx context.Context, shardID int64, wait bool) Envelope {
	return s.shardStateCommand(ctx, sharding.EventDisableShard, shardID, wait)
}

func (s *Service) shardStateCommand(ctx context.Context, event string, shardID int64, wait bool) Envelope {
	lockable := []string{shardLockName(shardID)}
	return s.trigger(ctx, wait, event, lockable, sharding.ShardStateRequest{ShardID: shardID})
}

// SplitShard triggers sharding.EventSplitShard. Always run with wait=true in
// practice: the 6-step split sequence is long-running and its result
// (the new shard id) matters to the caller, but the command accepts wait so
// a fire-and-forget client can poll the returned procedure uuid instead.
func (s *Service) SplitShard(ctx context.Context, req sharding.SplitShardRequest, wait bool) Envelope {
	return s.trigger(ctx, wait, sharding.EventSplitShard, []string{shardLockName(req.ShardID)}, req)
}

// MoveShard triggers sharding.EventMoveShard.
func (s *Service) MoveShard(ctx context.Context, req sharding.MoveShardRequest, wait bool) Envelope {
	return s.trigger(ctx, wait, sharding.EventMoveShard, []string{shardLockName(req.ShardID)}, req)
}

// Lookup is a synchronous read: the candidate server(s) serving key in
// qualifiedName's shard, per hint.
func (s *Service) Lookup(ctx context.Context, qualifiedName, key string, hint sharding.Hint) Envelope {
	candidates, err := s.sharding.Lookup(ctx, qualifiedName, key, hint)
	if err != nil {
		return s.errEnvelope(err)
	}
	return s.ok(candidates)
}
