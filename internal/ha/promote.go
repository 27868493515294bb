package ha

import (
	"context"
	"encoding/json"
	"time"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/mysqlconn"
)

// PromoteHandler builds the events.Handler for EventPromote/ActionPromote.
func (c *Coordinator) PromoteHandler() events.Handler {
	return events.Handler{
		Name: ActionPromote,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[PromoteRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("promote: missing or malformed request argument")
			}
			result, err := c.promote(jc.Ctx, req)
			return nil, result, err
		},
		Compensate: func(jc events.JobContext, args []any) error {
			req, ok := argOf[PromoteRequest](args)
			if !ok {
				return nil
			}
			return c.restorePreviousPrimary(jc.Ctx, req.GroupID)
		},
		DecodeArgs: decodeArg[PromoteRequest],
	}
}

// argOf extracts a typed argument from a Handler's args slice, per the
// convention that the caller supplies exactly one request value.
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

func (c *Coordinator) promote(ctx context.Context, req PromoteRequest) (string, error) {
	group, err := c.repo.GetGroup(ctx, req.GroupID)
	if err != nil {
		return "", err
	}
	servers, err := c.repo.ServersInGroup(ctx, req.GroupID)
	if err != nil {
		return "", err
	}

	candidate := req.Candidate
	if candidate == "" {
		candidate, err = c.selectCandidate(ctx, group, servers)
		if err != nil {
			return "", err
		}
	}

	if req.UpdateOnly {
		return candidate, c.promoteUpdateOnly(ctx, group, servers, candidate)
	}
	return candidate, c.promoteWithReplication(ctx, group, servers, candidate)
}

// selectCandidate picks the alive SECONDARY whose GTID-executed set is the
// closest superset of the primary's, ties broken by weight then uuid (§4.9).
func (c *Coordinator) selectCandidate(ctx context.Context, group fabric.Group, servers []fabric.Server) (string, error) {
	var primaryGTID mysqlconn.GTIDSet
	if group.MasterUUID != "" {
		mc, release, err := c.conn(ctx, group.MasterUUID)
		if err == nil {
			status, statusErr := mc.GetMasterStatus(ctx)
			release()
			if statusErr == nil {
				primaryGTID, _ = mysqlconn.ParseGTIDSet(status.ExecutedGtidSet)
			}
		}
	}

	type scored struct {
		uuid   string
		weight float64
		gtids  mysqlconn.GTIDSet
		isSup  bool
		count  int64
	}
	var candidates []scored
	for _, s := range servers {
		if s.Status != fabric.StatusSecondary {
			continue
		}
		mc, release, err := c.conn(ctx, s.UUID)
		if err != nil {
			continue
		}
		status, isSlave, statusErr := mc.GetSlaveStatus(ctx)
		release()
		if statusErr != nil || !isSlave {
			continue
		}
		gtids, parseErr := mysqlconn.ParseGTIDSet(status.ExecutedGtidSet)
		if parseErr != nil {
			continue
		}
		candidates = append(candidates, scored{
			uuid: s.UUID, weight: s.Weight, gtids: gtids,
			isSup: gtids.IsSupersetOf(primaryGTID), count: gtids.Count(""),
		})
	}
	if len(candidates) == 0 {
		return "", ferrors.Group("no eligible secondary to promote in group " + group.ID)
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		switch {
		case cand.isSup != best.isSup:
			if cand.isSup {
				best = cand
			}
		case cand.isSup && cand.count != best.count:
			// Both are supersets: the one with fewer transactions is closest.
			if cand.count < best.count {
				best = cand
			}
		case cand.weight > best.weight:
			best = cand
		case cand.weight == best.weight && cand.uuid < best.uuid:
			best = cand
		}
	}
	return best.uuid, nil
}

func (c *Coordinator) promoteUpdateOnly(ctx context.Context, group fabric.Group, servers []fabric.Server, candidate string) error {
	if group.MasterUUID != "" {
		if err := c.repo.UpdateServerStatus(ctx, group.MasterUUID, fabric.StatusSecondary); err != nil {
			return err
		}
		if err := c.repo.UpdateServerMode(ctx, group.MasterUUID, fabric.ModeReadOnly); err != nil {
			return err
		}
	}
	if err := c.repo.UpdateServerStatus(ctx, candidate, fabric.StatusPrimary); err != nil {
		return err
	}
	if err := c.repo.UpdateServerMode(ctx, candidate, fabric.ModeReadWrite); err != nil {
		return err
	}
	return c.repo.SetGroupMaster(ctx, group.ID, candidate)
}

func (c *Coordinator) promoteWithReplication(ctx context.Context, group fabric.Group, servers []fabric.Server, candidate string) error {
	// (a) demote the current primary in place, if any.
	if group.MasterUUID != "" {
		if mc, release, err := c.conn(ctx, group.MasterUUID); err == nil {
			_ = mc.SetReadOnly(ctx, true)
			release()
		}
		if err := c.repo.UpdateServerStatus(ctx, group.MasterUUID, fabric.StatusSecondary); err != nil {
			return err
		}
		if err := c.repo.UpdateServerMode(ctx, group.MasterUUID, fabric.ModeReadOnly); err != nil {
			return err
		}
	}

	candMC, candRelease, err := c.conn(ctx, candidate)
	if err != nil {
		return err
	}
	defer candRelease()

	// (b), (c): stop replication and clear slave state on the candidate.
	if err := candMC.StopSlave(ctx, nil, true, 30*time.Second); err != nil {
		return err
	}
	if err := candMC.ResetSlave(ctx, true); err != nil {
		return err
	}

	// (d): the candidate becomes the new primary.
	if err := candMC.SetReadOnly(ctx, false); err != nil {
		return err
	}
	if err := c.repo.UpdateServerStatus(ctx, candidate, fabric.StatusPrimary); err != nil {
		return err
	}
	if err := c.repo.UpdateServerMode(ctx, candidate, fabric.ModeReadWrite); err != nil {
		return err
	}
	if err := c.repo.SetGroupMaster(ctx, group.ID, candidate); err != nil {
		return err
	}

	candAddr, err := c.repo.AddressOf(ctx, candidate)
	if err != nil {
		return err
	}
	candGTIDEnabled, _ := candMC.GTIDEnabled(ctx)

	// (e): every other active member replicates from the new primary.
	for _, s := range servers {
		if s.UUID == candidate || s.UUID == group.MasterUUID || s.Status == fabric.StatusFaulty {
			continue
		}
		mc, release, err := c.conn(ctx, s.UUID)
		if err != nil {
			c.log.Error().Err(err).Str("server", s.UUID).Msg("ha: promote could not reach member to rewire replication")
			continue
		}
		host, port := splitHostPort(candAddr)
		if err := mc.SwitchMaster(ctx, host, port, c.creds.User, c.creds.Password, candGTIDEnabled, true, "", -1); err != nil {
			c.log.Error().Err(err).Str("server", s.UUID).Msg("ha: promote failed to rewire member's replication source")
			release()
			continue
		}
		if err := mc.StartSlave(ctx, nil, false, 0); err != nil {
			c.log.Error().Err(err).Str("server", s.UUID).Msg("ha: promote failed to start replication on member")
		}
		release()
	}
	return nil
}

// restorePreviousPrimary is promote's compensation: it only restores the
// state-store's master pointer to whatever it was before promote began
// mutating it, per §4.9 ("compensation attempts to restore the previous
// primary pointer only").
func (c *Coordinator) restorePreviousPrimary(ctx context.Context, groupID string) error {
	group, err := c.repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	return c.repo.SetGroupMaster(ctx, groupID, group.MasterUUID)
}
