package sharding

import (
	"context"
	"time"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
)

// MoveShardHandler builds the events.Handler for EventMoveShard: split's
// simpler sibling — no range change, just rebinding the shard to a
// different group after the data has been copied over.
func (c *Coordinator) MoveShardHandler() events.Handler {
	return events.Handler{
		Name: ActionMoveShard,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[MoveShardRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("move_shard: missing or malformed request argument")
			}
			return nil, nil, c.moveShard(jc.Ctx, req)
		},
		DecodeArgs: decodeArg[MoveShardRequest],
	}
}

func (c *Coordinator) moveShard(ctx context.Context, req MoveShardRequest) error {
	shard, err := c.repo.GetShard(ctx, req.ShardID)
	if err != nil {
		return err
	}
	sourceGroup, err := c.fabric.GetGroup(ctx, shard.GroupID)
	if err != nil {
		return err
	}
	destGroup, err := c.fabric.GetGroup(ctx, req.DestGroupID)
	if err != nil {
		return err
	}
	if sourceGroup.MasterUUID == "" || destGroup.MasterUUID == "" {
		return ferrors.Sharding("both source and destination groups must have a primary to move a shard")
	}
	sourceAddr, err := c.fabric.AddressOf(ctx, sourceGroup.MasterUUID)
	if err != nil {
		return err
	}
	destAddr, err := c.fabric.AddressOf(ctx, destGroup.MasterUUID)
	if err != nil {
		return err
	}

	snapshot, err := c.backup.Backup(ctx, sourceAddr)
	if err != nil {
		return err
	}
	if err := c.backup.Restore(ctx, destAddr, snapshot); err != nil {
		return err
	}
	if err := c.fabric.SetGroupStatus(ctx, destGroup.ID, fabric.GroupConfiguring); err != nil {
		return err
	}
	catchUpErr := c.replicateUntilCaughtUp(ctx, sourceGroup.MasterUUID, destGroup.MasterUUID, sourceAddr)
	if restoreErr := c.fabric.SetGroupStatus(ctx, destGroup.ID, fabric.GroupActive); restoreErr != nil && catchUpErr == nil {
		catchUpErr = restoreErr
	}
	if catchUpErr != nil {
		return catchUpErr
	}

	if err := c.repo.SetShardGroup(ctx, req.ShardID, req.DestGroupID); err != nil {
		return err
	}

	if destMC, release, err := c.primaryConnByUUID(ctx, destGroup.MasterUUID); err == nil {
		_ = destMC.StopSlave(ctx, nil, true, 10*time.Second)
		_ = destMC.ResetSlave(ctx, true)
		release()
	}
	return nil
}
