package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/executor"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/ha"
	"github.com/signal18/fabricd/internal/mysqlconn"
	"github.com/signal18/fabricd/internal/rpc"
	"github.com/signal18/fabricd/internal/sharding"
)

type fakeEnqueuer struct{ procUUID string }

func (f *fakeEnqueuer) EnqueueProcedure(synchronous bool, callerProcedureUUID string, lockableObjects []string, handlers []events.Handler, args []any) (string, error) {
	return f.procUUID, nil
}

type fakeProcedures struct {
	views map[string]executor.ProcedureView
}

func (f *fakeProcedures) GetProcedure(procUUID string) (executor.ProcedureView, bool) {
	v, ok := f.views[procUUID]
	return v, ok
}

func (f *fakeProcedures) WaitForProcedure(ctx context.Context, procUUID string) (executor.ProcedureView, error) {
	v := f.views[procUUID]
	return v, nil
}

func TestRouter_Promote_RoundTrip(t *testing.T) {
	dispatcher := events.NewDispatcher(&fakeEnqueuer{procUUID: "proc-1"})
	dispatcher.Register(ha.EventPromote, events.Handler{Name: "promote"})
	procedures := &fakeProcedures{views: map[string]executor.ProcedureView{
		"proc-1": {UUID: "proc-1", Complete: true, Success: true},
	}}

	svc := rpc.NewService("fabric-uuid", 1, dispatcher, procedures,
		fabric.NewRepository(nil), (*ha.Coordinator)(nil), (*sharding.Coordinator)(nil),
		nil, nil, nil, mysqlconn.Credentials{}, zerolog.Nop())

	router := NewRouter(svc, zerolog.Nop())

	body := bytes.NewBufferString(`{"candidate":""}`)
	req := httptest.NewRequest("POST", "/api/groups/group-1/promote?wait=true", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected HTTP 200, got %d", w.Code)
	}
	var env rpc.Envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error != nil {
		t.Fatalf("unexpected error envelope: %+v", env.Error)
	}
	if env.FabricUUID != "fabric-uuid" {
		t.Fatalf("expected fabric-uuid to round-trip, got %q", env.FabricUUID)
	}
}

func TestRouter_SplitShard_InvalidShardID(t *testing.T) {
	svc := rpc.NewService("fabric-uuid", 1, events.NewDispatcher(&fakeEnqueuer{}), &fakeProcedures{views: map[string]executor.ProcedureView{}},
		fabric.NewRepository(nil), (*ha.Coordinator)(nil), (*sharding.Coordinator)(nil),
		nil, nil, nil, mysqlconn.Credentials{}, zerolog.Nop())
	router := NewRouter(svc, zerolog.Nop())

	req := httptest.NewRequest("POST", "/api/sharding/shards/not-a-number/split", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != 400 {
		t.Fatalf("expected HTTP 400 for an invalid shardID, got %d", w.Code)
	}
}
