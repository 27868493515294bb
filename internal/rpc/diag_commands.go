package rpc

import (
	"context"

	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/mysqlconn"
)

// DatadirEntry is one row of a ListDatadirs result set.
type DatadirEntry struct {
	ServerUUID string `json:"server_uuid"`
	Datadir    string `json:"datadir,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ListDatadirs is a read-only diagnostic command, ported from the original
// distribute_datadir command family: it lists every server's @@datadir in
// groupID so an operator can sanity-check a bulk data-distribution plan
// before running one. A single server's ping/query failure is reported
// per-row rather than failing the whole command, since the point of the
// diagnostic is to find exactly that kind of partial failure.
func (s *Service) ListDatadirs(ctx context.Context, groupID string) Envelope {
	servers, err := s.fabricRepo.ServersInGroup(ctx, groupID)
	if err != nil {
		return s.errEnvelope(err)
	}

	entries := make([]DatadirEntry, 0, len(servers))
	for _, srv := range servers {
		entry := DatadirEntry{ServerUUID: srv.UUID}
		dir, err := s.datadirOf(ctx, srv.UUID)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Datadir = dir
		}
		entries = append(entries, entry)
	}
	return s.ok(entries)
}

func (s *Service) datadirOf(ctx context.Context, serverUUID string) (string, error) {
	pc, err := s.pool.Get(ctx, serverUUID, s.creds.User)
	if err != nil {
		return "", err
	}
	defer s.pool.Release(serverUUID, pc)

	mc, ok := pc.(*mysqlconn.Conn)
	if !ok {
		return "", ferrors.Programming("pool returned a non-mysqlconn handle")
	}
	return mc.Datadir(ctx)
}
