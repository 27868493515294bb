package rpc

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/executor"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/ha"
	"github.com/signal18/fabricd/internal/mysqlconn"
	"github.com/signal18/fabricd/internal/sharding"
)

// fakeEnqueuer is a minimal events.ProcedureEnqueuer that always hands back
// a fixed procedure uuid, so Dispatcher.Trigger's own wiring is exercised
// without a real executor.
type fakeEnqueuer struct {
	lastEvent string
	procUUID  string
}

func (f *fakeEnqueuer) EnqueueProcedure(synchronous bool, callerProcedureUUID string, lockableObjects []string, handlers []events.Handler, args []any) (string, error) {
	return f.procUUID, nil
}

// fakeProcedures is a ProcedureLookup double.
type fakeProcedures struct {
	views map[string]executor.ProcedureView
}

func (f *fakeProcedures) GetProcedure(procUUID string) (executor.ProcedureView, bool) {
	v, ok := f.views[procUUID]
	return v, ok
}

func (f *fakeProcedures) WaitForProcedure(ctx context.Context, procUUID string) (executor.ProcedureView, error) {
	v, ok := f.views[procUUID]
	if !ok {
		return executor.ProcedureView{}, procedureNotFound(procUUID)
	}
	return v, nil
}

func newTestService(t *testing.T, enqueuer *fakeEnqueuer, procedures *fakeProcedures) *Service {
	t.Helper()
	dispatcher := events.NewDispatcher(enqueuer)
	dispatcher.Register(ha.EventPromote, events.Handler{Name: "promote"})

	return NewService("fabric-uuid", 1, dispatcher, procedures,
		fabric.NewRepository(nil), (*ha.Coordinator)(nil), (*sharding.Coordinator)(nil),
		nil, nil, nil, mysqlconn.Credentials{}, zerolog.Nop())
}

func TestService_Promote_ReturnsProcedureResult(t *testing.T) {
	enqueuer := &fakeEnqueuer{procUUID: "proc-1"}
	procedures := &fakeProcedures{views: map[string]executor.ProcedureView{
		"proc-1": {UUID: "proc-1", Complete: true, Success: true, ReturnValue: "primary-2"},
	}}
	svc := newTestService(t, enqueuer, procedures)

	env := svc.Promote(context.Background(), "group-1", "", false, true)

	if env.Error != nil {
		t.Fatalf("unexpected error envelope: %+v", env.Error)
	}
	if len(env.ResultSets) != 1 {
		t.Fatalf("expected exactly one result set, got %d", len(env.ResultSets))
	}
	result, ok := env.ResultSets[0].(ProcedureResult)
	if !ok {
		t.Fatalf("expected a ProcedureResult, got %T", env.ResultSets[0])
	}
	if result.ProcedureUUID != "proc-1" || !result.Complete || !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestService_Promote_NoWait_ReturnsImmediately(t *testing.T) {
	enqueuer := &fakeEnqueuer{procUUID: "proc-2"}
	procedures := &fakeProcedures{views: map[string]executor.ProcedureView{}}
	svc := newTestService(t, enqueuer, procedures)

	env := svc.Promote(context.Background(), "group-1", "candidate-a", false, false)

	if env.Error != nil {
		t.Fatalf("unexpected error envelope: %+v", env.Error)
	}
	result := env.ResultSets[0].(ProcedureResult)
	if result.ProcedureUUID != "proc-2" {
		t.Fatalf("expected proc-2, got %q", result.ProcedureUUID)
	}
	if result.Complete {
		t.Fatalf("expected an incomplete procedure view when not waiting")
	}
}

func TestService_GetProcedure_Unknown(t *testing.T) {
	svc := newTestService(t, &fakeEnqueuer{}, &fakeProcedures{views: map[string]executor.ProcedureView{}})

	env := svc.GetProcedure(context.Background(), "missing")

	if env.Error == nil {
		t.Fatalf("expected an error envelope for an unknown procedure")
	}
	if env.Error.Code != string(ferrors.CodeProcedure) {
		t.Fatalf("expected %q, got %q", ferrors.CodeProcedure, env.Error.Code)
	}
}

func TestService_ErrEnvelope_DefaultsUntypedErrors(t *testing.T) {
	svc := newTestService(t, &fakeEnqueuer{}, &fakeProcedures{})

	env := svc.errEnvelope(context.DeadlineExceeded)

	if env.Error == nil || env.Error.Code != string(ferrors.CodeProgramming) {
		t.Fatalf("expected an untyped error to map to CodeProgramming, got %+v", env.Error)
	}
}
