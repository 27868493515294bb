package ha

import (
	"context"
	"time"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/mysqlconn"
)

// AddServerHandler builds the events.Handler for EventAddServer/ActionAddServer.
func (c *Coordinator) AddServerHandler() events.Handler {
	return events.Handler{
		Name: ActionAddServer,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[AddServerRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("add_server: missing or malformed request argument")
			}
			uuid, err := c.addServer(jc.Ctx, req)
			return nil, uuid, err
		},
		DecodeArgs: decodeArg[AddServerRequest],
	}
}

func (c *Coordinator) addServer(ctx context.Context, req AddServerRequest) (string, error) {
	// The server isn't registered yet, so it can't be dialed through the
	// pool (which resolves addresses via the repository); open a one-off
	// probe connection directly against the address being added.
	probe, err := mysqlconn.Probe(ctx, req.Address, c.creds)
	if err != nil {
		return "", err
	}
	defer probe.Close()

	granted, err := probe.GrantedPrivileges(ctx)
	if err != nil {
		return "", err
	}
	if err := fabric.CheckPrivileges(granted); err != nil {
		return "", err
	}

	serverUUID, err := probe.ServerUUID(ctx)
	if err != nil {
		return "", err
	}

	group, err := c.repo.GetGroup(ctx, req.GroupID)
	if err != nil {
		return "", err
	}

	status := fabric.StatusSecondary
	mode := fabric.ModeReadOnly
	if group.MasterUUID == "" {
		// Any server added while the group has no primary becomes a SPARE until
		// an operator explicitly promotes it — fabricd never auto-promotes on add.
		status = fabric.StatusSpare
	}

	if err := c.repo.AddServer(ctx, fabric.Server{
		UUID: serverUUID, GroupID: req.GroupID, Address: req.Address,
		Mode: mode, Status: status, Weight: 1.0,
	}); err != nil {
		return "", err
	}

	if group.MasterUUID != "" {
		primaryAddr, err := c.repo.AddressOf(ctx, group.MasterUUID)
		if err == nil {
			host, port := splitHostPort(primaryAddr)
			gtidEnabled, _ := probe.GTIDEnabled(ctx)
			if err := probe.SwitchMaster(ctx, host, port, c.creds.User, c.creds.Password, gtidEnabled, true, "", -1); err != nil {
				c.log.Error().Err(err).Str("server", serverUUID).Msg("ha: add_server failed to configure replication")
			} else if err := probe.StartSlave(ctx, nil, false, 0); err != nil {
				c.log.Error().Err(err).Str("server", serverUUID).Msg("ha: add_server failed to start replication")
			}
		}
	}

	return serverUUID, nil
}

// RemoveServerHandler builds the events.Handler for EventRemoveServer/ActionRemoveServer.
func (c *Coordinator) RemoveServerHandler() events.Handler {
	return events.Handler{
		Name: ActionRemoveServer,
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			req, ok := argOf[RemoveServerRequest](args)
			if !ok {
				return nil, nil, ferrors.Programming("remove_server: missing or malformed request argument")
			}
			return nil, nil, c.removeServer(jc.Ctx, req)
		},
		DecodeArgs: decodeArg[RemoveServerRequest],
	}
}

func (c *Coordinator) removeServer(ctx context.Context, req RemoveServerRequest) error {
	server, err := c.repo.GetServer(ctx, req.ServerUUID)
	if err != nil {
		return err
	}
	if server.Status == fabric.StatusPrimary {
		return ferrors.Server("refusing to remove the group's current primary: " + req.ServerUUID)
	}

	if mc, release, err := c.conn(ctx, req.ServerUUID); err == nil {
		_ = mc.StopSlave(ctx, nil, true, 10*time.Second)
		_ = mc.ResetSlave(ctx, true)
		release()
	}

	c.pool.Purge(req.ServerUUID)
	return c.repo.RemoveServer(ctx, req.ServerUUID)
}
