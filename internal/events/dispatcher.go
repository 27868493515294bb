// Package events implements the event dispatcher: the registry binding
// symbolic events to ordered lists of handler functions, which the executor
// turns into jobs.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/signal18/fabricd/internal/persister"
)

// JobContext is what the executor hands to a Handler's Action/Compensate:
// the ambient cancellation context, the per-job state-store transaction
// (exactly one per job, scoped to its own execution), and the lockable
// objects the enclosing procedure declared.
type JobContext struct {
	Ctx             context.Context
	Tx              *persister.Tx
	LockableObjects []string
}

// Handler is a callable registered against an event. Compensate, if set, is
// invoked by the executor when Action returns an error; both are expected to
// run atomically under the executor's per-job transaction. Action may
// return chained jobs (handlers to schedule within the same procedure,
// e.g. "wait until caught up" following a "change master").
type Handler struct {
	// Name identifies the handler within an event's chain, for Unregister/IsRegistered.
	Name       string
	Action     func(jc JobContext, args []any) (chained []Handler, result any, err error)
	Compensate func(jc JobContext, args []any) error
	// DecodeArgs rebuilds a typed args slice from the checkpoint log's
	// persisted JSON encoding, for a job recovered after a crash. Nil for
	// a handler that was never registered as recoverable.
	DecodeArgs func(data []byte) ([]any, error)
}

// ProcedureEnqueuer is implemented by the executor. Trigger hands the
// ordered handler chain to it as one job per handler.
type ProcedureEnqueuer interface {
	// EnqueueProcedure creates a new Procedure for the given handlers (one
	// Job each, in order), or — when callerProcedureUUID is non-empty —
	// associates the jobs with that already-running Procedure instead of
	// starting a new one. It returns the Procedure's UUID.
	EnqueueProcedure(synchronous bool, callerProcedureUUID string, lockableObjects []string, handlers []Handler, args []any) (string, error)
}

// Dispatcher is the event registry described by the Event Dispatcher
// component: named events map to ordered handler chains.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	enqueuer ProcedureEnqueuer
}

// NewDispatcher builds a Dispatcher that hands triggered handler chains to enqueuer.
func NewDispatcher(enqueuer ProcedureEnqueuer) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		enqueuer: enqueuer,
	}
}

// Register appends handler to the end of event's chain. Order of handlers
// for a given event is the order of registration.
func (d *Dispatcher) Register(event string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], handler)
}

// Unregister removes the handler named handlerName from event's chain, if present.
func (d *Dispatcher) Unregister(event, handlerName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	chain := d.handlers[event]
	for i, h := range chain {
		if h.Name == handlerName {
			d.handlers[event] = append(chain[:i], chain[i+1:]...)
			return
		}
	}
}

// IsRegistered reports whether handlerName is currently registered against event.
func (d *Dispatcher) IsRegistered(event, handlerName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.handlers[event] {
		if h.Name == handlerName {
			return true
		}
	}
	return false
}

// Trigger fires event: it creates one Procedure (or associates the jobs with
// callerProcedureUUID when triggered from inside a running handler) and one
// Job per registered handler, then hands them to the executor via enqueuer.
// synchronous tells the executor whether the caller intends to wait for
// completion (propagated, not enforced, by the dispatcher itself).
func (d *Dispatcher) Trigger(synchronous bool, event string, lockableObjects []string, callerProcedureUUID string, args ...any) (string, error) {
	d.mu.Lock()
	chain := make([]Handler, len(d.handlers[event]))
	copy(chain, d.handlers[event])
	d.mu.Unlock()

	if len(chain) == 0 {
		return "", fmt.Errorf("events: no handlers registered for event %q", event)
	}
	if d.enqueuer == nil {
		return "", fmt.Errorf("events: dispatcher has no enqueuer wired")
	}
	return d.enqueuer.EnqueueProcedure(synchronous, callerProcedureUUID, lockableObjects, chain, args)
}
