package rpc

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/executor"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/failuredetector"
	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/ha"
	"github.com/signal18/fabricd/internal/mysqlconn"
	"github.com/signal18/fabricd/internal/pool"
	"github.com/signal18/fabricd/internal/sharding"
)

// ProcedureLookup is the subset of internal/executor.Executor the service
// needs: enough to render a procedure-style command's result set.
type ProcedureLookup interface {
	GetProcedure(procUUID string) (executor.ProcedureView, bool)
	WaitForProcedure(ctx context.Context, procUUID string) (executor.ProcedureView, error)
}

// Service is the command-dispatch boundary: it resolves a command to either
// a synchronous state-store read or an event trigger, and always answers in
// the Envelope wire shape. It holds no protocol-specific state — httpgw (and
// any future MySQL-wire-protocol server) is a thin adapter over it.
type Service struct {
	fabricUUID string
	ttl        int

	dispatcher *events.Dispatcher
	procedures ProcedureLookup
	fabricRepo *fabric.Repository
	ha         *ha.Coordinator
	sharding   *sharding.Coordinator
	detector   *failuredetector.Detector
	groupViews GroupViewFactory
	pool       *pool.Pool
	creds      mysqlconn.Credentials
	log        zerolog.Logger
}

// GroupViewFactory builds a failuredetector.GroupView for groupID, for the
// report_error/report_failure threat commands. Implemented in internal/fabricd
// via fabric.NewGroupHandle, kept as a function type here so this package
// doesn't need a managed-server ping implementation of its own.
type GroupViewFactory func(ctx context.Context, groupID string) (failuredetector.GroupView, error)

// NewService builds a Service.
func NewService(fabricUUID string, ttl int, dispatcher *events.Dispatcher, procedures ProcedureLookup,
	fabricRepo *fabric.Repository, haCoord *ha.Coordinator, shardingCoord *sharding.Coordinator,
	detector *failuredetector.Detector, groupViews GroupViewFactory, p *pool.Pool, creds mysqlconn.Credentials,
	log zerolog.Logger) *Service {
	return &Service{
		fabricUUID: fabricUUID, ttl: ttl,
		dispatcher: dispatcher, procedures: procedures, fabricRepo: fabricRepo,
		ha: haCoord, sharding: shardingCoord, detector: detector, groupViews: groupViews,
		pool: p, creds: creds, log: log,
	}
}

func (s *Service) header() Envelope {
	return Envelope{FabricUUID: s.fabricUUID, TTL: s.ttl}
}

func (s *Service) errEnvelope(err error) Envelope {
	env := s.header()
	info := &ErrorInfo{Message: err.Error()}
	if code, ok := ferrors.CodeOf(err); ok {
		info.Code = string(code)
	} else {
		info.Code = string(ferrors.CodeProgramming)
	}
	env.Error = info
	return env
}

// trigger fires event through the dispatcher and renders its procedure as
// the envelope's sole result set. When wait is true it blocks for
// completion (a synchronous command per spec.md §4.3); otherwise it returns
// the procedure's just-enqueued state immediately.
func (s *Service) trigger(ctx context.Context, wait bool, event string, lockableObjects []string, args any) Envelope {
	procUUID, err := s.dispatcher.Trigger(wait, event, lockableObjects, "", args)
	if err != nil {
		return s.errEnvelope(err)
	}

	var view executor.ProcedureView
	if wait {
		view, err = s.procedures.WaitForProcedure(ctx, procUUID)
		if err != nil {
			return s.errEnvelope(err)
		}
	} else {
		var found bool
		if view, found = s.procedures.GetProcedure(procUUID); !found {
			view = executor.ProcedureView{UUID: procUUID}
		}
	}

	env := s.header()
	env.ResultSets = []any{procedureResult(view)}
	return env
}

// ok wraps a synchronous (non-procedure) command's result sets into an
// error-free envelope.
func (s *Service) ok(resultSets ...any) Envelope {
	env := s.header()
	env.ResultSets = resultSets
	return env
}
