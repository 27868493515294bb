package events

import (
	"testing"
)

type fakeEnqueuer struct {
	lastChain []Handler
	lastProc  string
	nextUUID  string
}

func (f *fakeEnqueuer) EnqueueProcedure(synchronous bool, callerProcedureUUID string, lockableObjects []string, handlers []Handler, args []any) (string, error) {
	f.lastChain = handlers
	f.lastProc = callerProcedureUUID
	return f.nextUUID, nil
}

func TestDispatcher_RegisterOrderPreserved(t *testing.T) {
	enq := &fakeEnqueuer{nextUUID: "proc-1"}
	d := NewDispatcher(enq)

	d.Register("server_lost", Handler{Name: "a"})
	d.Register("server_lost", Handler{Name: "b"})
	d.Register("server_lost", Handler{Name: "c"})

	procUUID, err := d.Trigger(false, "server_lost", []string{"group-1"}, "")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if procUUID != "proc-1" {
		t.Fatalf("expected proc-1, got %s", procUUID)
	}
	if len(enq.lastChain) != 3 {
		t.Fatalf("expected 3 handlers, got %d", len(enq.lastChain))
	}
	for i, name := range []string{"a", "b", "c"} {
		if enq.lastChain[i].Name != name {
			t.Fatalf("handler order broken: position %d is %s, want %s", i, enq.lastChain[i].Name, name)
		}
	}
}

func TestDispatcher_UnregisterRemovesHandler(t *testing.T) {
	enq := &fakeEnqueuer{nextUUID: "proc-2"}
	d := NewDispatcher(enq)

	d.Register("server_lost", Handler{Name: "a"})
	d.Register("server_lost", Handler{Name: "b"})
	d.Unregister("server_lost", "a")

	if d.IsRegistered("server_lost", "a") {
		t.Fatalf("expected handler a to be unregistered")
	}
	if !d.IsRegistered("server_lost", "b") {
		t.Fatalf("expected handler b to remain registered")
	}
}

func TestDispatcher_TriggerAssociatesCallerProcedure(t *testing.T) {
	enq := &fakeEnqueuer{nextUUID: "proc-3"}
	d := NewDispatcher(enq)
	d.Register("promote", Handler{Name: "promote_handler"})

	_, err := d.Trigger(true, "promote", []string{"group-1"}, "proc-parent")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if enq.lastProc != "proc-parent" {
		t.Fatalf("expected caller procedure uuid propagated, got %q", enq.lastProc)
	}
}

func TestDispatcher_TriggerNoHandlersErrors(t *testing.T) {
	d := NewDispatcher(&fakeEnqueuer{})
	if _, err := d.Trigger(false, "unknown_event", nil, ""); err == nil {
		t.Fatalf("expected error for event with no registered handlers")
	}
}
