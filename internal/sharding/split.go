package sharding

import (
	"context"
	"time"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
)

// SplitShardHandler builds the events.Handler for EventSplitShard. Steps
// 1-3 (snapshot/restore/catch-up replication) happen before the commit
// point at step 4 (adding the destination shard and its range or hash
// bucket); anything failing before then has written no shard metadata and
// is simply abandoned by Compensate. Step 4 onward (new shard, prune, stop
// temp link) is the commit point and is not rolled back on a later
// failure — §4.10 names step 4 as the commit point explicitly.
func (c *Coordinator) SplitShardHandler() events.Handler {
	return events.Handler{
		Name: ActionSplitShard,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[SplitShardRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("split_shard: missing or malformed request argument")
			}
			newShardID, err := c.splitShard(jc.Ctx, req)
			return nil, newShardID, err
		},
		Compensate: func(jc events.JobContext, args []any) error {
			req, ok := argOf[SplitShardRequest](args)
			if !ok {
				return nil
			}
			return c.abandonSplit(jc.Ctx, req)
		},
		DecodeArgs: decodeArg[SplitShardRequest],
	}
}

func (c *Coordinator) splitShard(ctx context.Context, req SplitShardRequest) (int64, error) {
	source, err := c.repo.GetShard(ctx, req.ShardID)
	if err != nil {
		return 0, err
	}
	sourceGroup, err := c.fabric.GetGroup(ctx, source.GroupID)
	if err != nil {
		return 0, err
	}
	destGroup, err := c.fabric.GetGroup(ctx, req.DestGroupID)
	if err != nil {
		return 0, err
	}
	if sourceGroup.MasterUUID == "" || destGroup.MasterUUID == "" {
		return 0, ferrors.Sharding("both source and destination groups must have a primary to split")
	}
	sourceAddr, err := c.fabric.AddressOf(ctx, sourceGroup.MasterUUID)
	if err != nil {
		return 0, err
	}
	destAddr, err := c.fabric.AddressOf(ctx, destGroup.MasterUUID)
	if err != nil {
		return 0, err
	}

	// (1) snapshot the source shard's primary using external backup tooling.
	snapshot, err := c.backup.Backup(ctx, sourceAddr)
	if err != nil {
		return 0, err
	}
	// (2) restore onto the destination group's primary.
	if err := c.backup.Restore(ctx, destAddr, snapshot); err != nil {
		return 0, err
	}

	// (3) start replication from source primary to destination primary
	// until caught up. The destination group is parked in CONFIGURING for
	// the duration so the failure detector doesn't escalate on the
	// temporary replication link (§9).
	if err := c.fabric.SetGroupStatus(ctx, destGroup.ID, fabric.GroupConfiguring); err != nil {
		return 0, err
	}
	catchUpErr := c.replicateUntilCaughtUp(ctx, sourceGroup.MasterUUID, destGroup.MasterUUID, sourceAddr)
	if restoreErr := c.fabric.SetGroupStatus(ctx, destGroup.ID, fabric.GroupActive); restoreErr != nil && catchUpErr == nil {
		catchUpErr = restoreErr
	}
	if catchUpErr != nil {
		return 0, catchUpErr
	}

	// (4) commit point: give the upper half of the key range to a new shard
	// on the destination group. The shard row and its range/bucket row are
	// two separate writes.
	mapping, err := c.repo.GetMapping(ctx, req.MappingID)
	if err != nil {
		return 0, err
	}
	newShardID, err := c.repo.AddShard(ctx, mapping.ID, req.DestGroupID, ShardEnabled)
	if err != nil {
		return 0, err
	}
	if mapping.Type.IsRangeFamily() {
		if err := c.repo.AddRange(ctx, Range{MappingID: mapping.ID, LowerBound: req.SplitPoint, ShardID: newShardID}); err != nil {
			return 0, err
		}
	} else {
		if err := c.repo.AddHashBucket(ctx, HashBucket{MappingID: mapping.ID, LowerBound: req.SplitPoint, ShardID: newShardID}); err != nil {
			return 0, err
		}
	}

	// (5) prune both halves under the now-updated mapping.
	tables, err := c.repo.TablesForMapping(ctx, mapping.ID)
	if err != nil {
		return 0, err
	}
	for _, t := range tables {
		if err := c.pruneByMapping(ctx, t, mapping); err != nil {
			c.log.Error().Err(err).Str("table", t.QualifiedName).Msg("sharding: split left stale rows after a failed post-split prune")
		}
	}

	// (6) stop the temporary replication link; the destination now serves
	// its own primary traffic independently.
	if destMC, release, err := c.primaryConn(ctx, req.DestGroupID); err == nil {
		_ = destMC.StopSlave(ctx, nil, true, 10*time.Second)
		_ = destMC.ResetSlave(ctx, true)
		release()
	}

	return newShardID, nil
}

// replicateUntilCaughtUp points destUUID's server at sourceUUID's and waits
// for it to reach the source's current binlog position.
func (c *Coordinator) replicateUntilCaughtUp(ctx context.Context, sourceUUID, destUUID, sourceAddr string) error {
	srcMC, srcRelease, err := c.primaryConnByUUID(ctx, sourceUUID)
	if err != nil {
		return err
	}
	defer srcRelease()
	status, err := srcMC.GetMasterStatus(ctx)
	if err != nil {
		return err
	}
	gtidEnabled, _ := srcMC.GTIDEnabled(ctx)

	destMC, destRelease, err := c.primaryConnByUUID(ctx, destUUID)
	if err != nil {
		return err
	}
	defer destRelease()

	host, port := splitAddr(sourceAddr)
	if err := destMC.SwitchMaster(ctx, host, port, c.creds.User, c.creds.Password, gtidEnabled, true, status.File, status.Position); err != nil {
		return err
	}
	if err := destMC.StartSlave(ctx, nil, false, 0); err != nil {
		return err
	}
	return destMC.WaitForSlave(ctx, status.File, status.Position, 5*time.Minute)
}

func (c *Coordinator) pruneByMapping(ctx context.Context, table Table, mapping Mapping) error {
	bounds, err := c.shardBounds(ctx, mapping)
	if err != nil {
		return err
	}
	for shardID, b := range bounds {
		shard, err := c.repo.GetShard(ctx, shardID)
		if err != nil {
			return err
		}
		stmt, err := pruneDeleteSQL(mapping.Type, table.QualifiedName, table.Column, b.lower, b.upper)
		if err != nil {
			return err
		}
		mc, release, err := c.primaryConn(ctx, shard.GroupID)
		if err != nil {
			return err
		}
		execErr := mc.ExecStmt(ctx, stmt)
		release()
		if execErr != nil {
			return execErr
		}
	}
	return nil
}

// abandonSplit is split's compensation: steps before the step-4 commit
// point write no shard metadata (splitShard itself resets the destination
// group from CONFIGURING to ACTIVE), so there is nothing to roll back
// beyond logging that the attempt failed. A failure inside step 4 after
// the new shard row is written leaves that row in place.
func (c *Coordinator) abandonSplit(ctx context.Context, req SplitShardRequest) error {
	c.log.Warn().Int64("shard", req.ShardID).Str("dest_group", req.DestGroupID).
		Msg("sharding: split_shard aborted before its commit point")
	return nil
}
