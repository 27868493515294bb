package ha

import (
	"context"
	"time"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
)

// DemoteHandler builds the events.Handler for EventDemote/ActionDemote.
func (c *Coordinator) DemoteHandler() events.Handler {
	return events.Handler{
		Name: ActionDemote,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[DemoteRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("demote: missing or malformed request argument")
			}
			return nil, nil, c.demote(jc.Ctx, req)
		},
		DecodeArgs: decodeArg[DemoteRequest],
	}
}

func (c *Coordinator) demote(ctx context.Context, req DemoteRequest) error {
	group, err := c.repo.GetGroup(ctx, req.GroupID)
	if err != nil {
		return err
	}
	if group.MasterUUID == "" {
		return nil // already demoted
	}

	if req.UpdateOnly {
		return c.finishDemote(ctx, group)
	}

	primaryMC, release, err := c.conn(ctx, group.MasterUUID)
	if err != nil {
		return err
	}
	defer release()

	if err := primaryMC.SetReadOnly(ctx, true); err != nil {
		return err
	}
	status, err := primaryMC.GetMasterStatus(ctx)
	if err != nil {
		return err
	}

	timeout := req.CatchUpTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	servers, err := c.repo.ServersInGroup(ctx, req.GroupID)
	if err != nil {
		return err
	}
	for _, s := range servers {
		if s.UUID == group.MasterUUID || s.Status == fabric.StatusFaulty {
			continue
		}
		mc, release, err := c.conn(ctx, s.UUID)
		if err != nil {
			c.log.Error().Err(err).Str("server", s.UUID).Msg("ha: demote could not reach member to wait for catch-up")
			continue
		}
		if err := mc.WaitForSlave(ctx, status.File, status.Position, timeout); err != nil {
			c.log.Warn().Err(err).Str("server", s.UUID).Msg("ha: demote proceeding despite a slave not catching up in time")
		}
		if err := mc.StopSlave(ctx, nil, true, timeout); err != nil {
			c.log.Error().Err(err).Str("server", s.UUID).Msg("ha: demote failed to stop slave")
		}
		release()
	}

	return c.finishDemote(ctx, group)
}

func (c *Coordinator) finishDemote(ctx context.Context, group fabric.Group) error {
	servers, err := c.repo.ServersInGroup(ctx, group.ID)
	if err != nil {
		return err
	}
	for _, s := range servers {
		if s.Status == fabric.StatusFaulty {
			continue
		}
		if err := c.repo.UpdateServerStatus(ctx, s.UUID, fabric.StatusSecondary); err != nil {
			return err
		}
		if err := c.repo.UpdateServerMode(ctx, s.UUID, fabric.ModeReadOnly); err != nil {
			return err
		}
	}
	return c.repo.SetGroupMaster(ctx, group.ID, "")
}
