package sharding

import (
	"context"

	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
)

// Lookup implements the resolver contract (§4.10): for HintLocal, key is
// resolved against qualifiedName's mapping to find the owning shard; for
// HintGlobal, the mapping's global group is returned directly. A disabled
// shard is an error. A shard whose group currently has no primary returns
// only its SECONDARY members, with Warning set on each candidate.
func (c *Coordinator) Lookup(ctx context.Context, qualifiedName, key string, hint Hint) ([]Candidate, error) {
	table, err := c.repo.TableByName(ctx, qualifiedName)
	if err != nil {
		return nil, err
	}
	mapping, err := c.repo.GetMapping(ctx, table.MappingID)
	if err != nil {
		return nil, err
	}

	if hint == HintGlobal {
		return c.candidatesForGroup(ctx, mapping.GlobalGroupID)
	}

	shardID, err := c.resolveShard(ctx, mapping, key)
	if err != nil {
		return nil, err
	}
	shard, err := c.repo.GetShard(ctx, shardID)
	if err != nil {
		return nil, err
	}
	if shard.State == ShardDisabled {
		return nil, ferrors.Sharding("shard is disabled")
	}
	return c.candidatesForGroup(ctx, shard.GroupID)
}

// resolveShard dispatches to RangeLookup or HashLookup by mapping type.
func (c *Coordinator) resolveShard(ctx context.Context, mapping Mapping, key string) (int64, error) {
	if mapping.Type.IsRangeFamily() {
		ranges, err := c.repo.RangesForMapping(ctx, mapping.ID)
		if err != nil {
			return 0, err
		}
		return RangeLookup(mapping.Type, ranges, key)
	}
	buckets, err := c.repo.HashBucketsForMapping(ctx, mapping.ID)
	if err != nil {
		return 0, err
	}
	return HashLookup(buckets, key)
}

// candidatesForGroup returns the group's primary if it has one, else every
// SECONDARY member flagged with a warning (§4.10).
func (c *Coordinator) candidatesForGroup(ctx context.Context, groupID string) ([]Candidate, error) {
	group, err := c.fabric.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	servers, err := c.fabric.ServersInGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if group.MasterUUID != "" {
		for _, s := range servers {
			if s.UUID == group.MasterUUID {
				return []Candidate{{ServerUUID: s.UUID, Status: string(s.Status)}}, nil
			}
		}
	}

	var out []Candidate
	for _, s := range servers {
		if s.Status == fabric.StatusSecondary {
			out = append(out, Candidate{
				ServerUUID: s.UUID,
				Status:     string(s.Status),
				Warning:    "group has no primary; routing to a secondary",
			})
		}
	}
	if len(out) == 0 {
		return nil, ferrors.Sharding("group has no primary and no secondaries: " + groupID)
	}
	return out, nil
}
