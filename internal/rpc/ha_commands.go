package rpc

import (
	"context"

	"github.com/signal18/fabricd/internal/ha"
)

// Promote triggers ha.EventPromote for groupID. When candidate is "" the
// procedure selects automatically. wait blocks for completion.
func (s *Service) Promote(ctx context.Context, groupID, candidate string, updateOnly, wait bool) Envelope {
	return s.trigger(ctx, wait, ha.EventPromote, []string{groupID}, ha.PromoteRequest{
		GroupID: groupID, Candidate: candidate, UpdateOnly: updateOnly,
	})
}

// Demote triggers ha.EventDemote for groupID.
func (s *Service) Demote(ctx context.Context, groupID string, updateOnly, wait bool) Envelope {
	return s.trigger(ctx, wait, ha.EventDemote, []string{groupID}, ha.DemoteRequest{
		GroupID: groupID, UpdateOnly: updateOnly,
	})
}

// AddServer triggers ha.EventAddServer: registers address as a new,
// initially read-only member of groupID.
func (s *Service) AddServer(ctx context.Context, groupID, address string, wait bool) Envelope {
	return s.trigger(ctx, wait, ha.EventAddServer, []string{groupID}, ha.AddServerRequest{
		GroupID: groupID, Address: address,
	})
}

// RemoveServer triggers ha.EventRemoveServer for serverUUID.
func (s *Service) RemoveServer(ctx context.Context, serverUUID string, wait bool) Envelope {
	return s.trigger(ctx, wait, ha.EventRemoveServer, []string{serverUUID}, ha.RemoveServerRequest{
		ServerUUID: serverUUID,
	})
}

// LookupServers is a synchronous read: the servers currently registered in
// groupID, used by clients to discover a group's membership before issuing
// an HA command against it.
func (s *Service) LookupServers(ctx context.Context, groupID string) Envelope {
	servers, err := s.fabricRepo.ServersInGroup(ctx, groupID)
	if err != nil {
		return s.errEnvelope(err)
	}
	return s.ok(servers)
}

// LookupGroup is a synchronous read of a single group's structural state.
func (s *Service) LookupGroup(ctx context.Context, groupID string) Envelope {
	group, err := s.fabricRepo.GetGroup(ctx, groupID)
	if err != nil {
		return s.errEnvelope(err)
	}
	return s.ok(group)
}
