package rpc

import (
	"context"

	"github.com/signal18/fabricd/internal/ferrors"
)

func procedureNotFound(procedureUUID string) error {
	return ferrors.Procedure("unknown procedure uuid: " + procedureUUID)
}

// GetProcedure is a synchronous read of a previously triggered procedure's
// current status trail, for clients that triggered asynchronously and are
// polling.
func (s *Service) GetProcedure(ctx context.Context, procedureUUID string) Envelope {
	view, ok := s.procedures.GetProcedure(procedureUUID)
	if !ok {
		return s.errEnvelope(procedureNotFound(procedureUUID))
	}
	env := s.header()
	env.ResultSets = []any{procedureResult(view)}
	return env
}
