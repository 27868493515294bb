package fabric

import (
	"context"

	"github.com/signal18/fabricd/internal/failuredetector"
)

// Pinger probes a server's liveness, e.g. via internal/pool + internal/mysqlconn.
// Kept as a function type so this package doesn't need to know how a
// connection is actually established.
type Pinger func(ctx context.Context, serverUUID string) error

// ServerHandle adapts a Server and a Pinger into failuredetector.ServerPinger.
type ServerHandle struct {
	server Server
	ping   Pinger
}

// UUID returns the handle's server uuid.
func (h ServerHandle) UUID() string { return h.server.UUID }

// Ping probes the underlying server.
func (h ServerHandle) Ping(ctx context.Context) error { return h.ping(ctx, h.server.UUID) }

var _ failuredetector.ServerPinger = ServerHandle{}

// GroupHandle adapts a Group and its member Servers into failuredetector.GroupView.
type GroupHandle struct {
	group   Group
	members []ServerHandle
}

// NewGroupHandle builds a GroupHandle from a group's current membership,
// wiring ping as every member's liveness probe. FAULTY members are excluded
// from the ping set — there is nothing left for the detector to learn by
// re-pinging a server it has already escalated.
func NewGroupHandle(group Group, servers []Server, ping Pinger) GroupHandle {
	members := make([]ServerHandle, 0, len(servers))
	for _, s := range servers {
		if s.Status == StatusFaulty {
			continue
		}
		members = append(members, ServerHandle{server: s, ping: ping})
	}
	return GroupHandle{group: group, members: members}
}

// UUID returns the handle's group id.
func (h GroupHandle) UUID() string { return h.group.ID }

// Status returns the group's lifecycle state as a string, matching the
// CONFIGURING sentinel the failure detector checks for.
func (h GroupHandle) Status() string { return string(h.group.Status) }

// PrimaryUUID returns the group's current primary, or "" if none.
func (h GroupHandle) PrimaryUUID() string { return h.group.MasterUUID }

// Members returns every non-FAULTY server as a pinger.
func (h GroupHandle) Members() []failuredetector.ServerPinger {
	out := make([]failuredetector.ServerPinger, len(h.members))
	for i, m := range h.members {
		out[i] = m
	}
	return out
}

var _ failuredetector.GroupView = GroupHandle{}
