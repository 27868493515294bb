// Package executor implements the procedure executor: a worker pool that
// consumes runnable procedures from the lock manager and runs each job
// inside exactly one state-store transaction, checkpointing as it goes so a
// crash can be recovered from at restart.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/checkpoint"
	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/ferrors"
	"github.com/signal18/fabricd/internal/lock"
	"github.com/signal18/fabricd/internal/persister"
)

// encodeArgs marshals a job's request argument to the checkpoint log's
// portable encoding: JSON over the one request value every handler's Action
// expects (the argOf/DecodeArgs convention), matching the whitelisted,
// language-neutral serialisation this daemon's checkpoint log is meant to carry.
func encodeArgs(args []any) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return json.Marshal(args[0])
}

// JobState mirrors the source's ENQUEUED/PROCESSING/COMPLETE job lifecycle.
type JobState string

const (
	JobEnqueued   JobState = "ENQUEUED"
	JobProcessing JobState = "PROCESSING"
	JobComplete   JobState = "COMPLETE"
)

// JobResult mirrors the source's ERROR/SUCCESS job outcome.
type JobResult string

const (
	ResultNone    JobResult = ""
	ResultSuccess JobResult = "SUCCESS"
	ResultError   JobResult = "ERROR"
)

type job struct {
	uuid      string
	handler   events.Handler
	args      []any
	state     JobState
	result    JobResult
	diagnosis string
}

// TrailEntry is one line of a procedure's status trail, returned to callers
// via GetProcedure.
type TrailEntry struct {
	JobUUID   string
	Action    string
	Result    JobResult
	Diagnosis string
}

// Procedure is the in-memory, lock-manager-visible unit of work: one or
// more jobs, executed sequentially by a single worker, never spanning workers.
type Procedure struct {
	mu              sync.Mutex
	uuid            string
	lockableObjects []string
	jobs            []*job
	nextIdx         int
	complete        bool
	success         bool
	returnValue     any
	waitCh          chan struct{}
}

// ProcedureView is the externally visible snapshot of a procedure, matching
// the wire layer's (procedure_uuid, complete, success, return_value, activities).
type ProcedureView struct {
	UUID        string
	Complete    bool
	Success     bool
	ReturnValue any
	Activities  []TrailEntry
}

// HandlerRegistry resolves an action's fully qualified name back to a live
// Handler at recovery time. A job is recoverable iff its action resolves
// here; this replaces the source's reliance on dynamically importing a
// pickled class path.
type HandlerRegistry struct {
	mu       sync.Mutex
	handlers map[string]events.Handler
}

// NewHandlerRegistry builds an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]events.Handler)}
}

// Register records that name resolves to handler.
func (r *HandlerRegistry) Register(name string, handler events.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Lookup resolves name to its registered Handler, if any.
func (r *HandlerRegistry) Lookup(name string) (events.Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Config controls the executor's worker pool.
type Config struct {
	WorkerCount int
}

// Executor is the procedure executor.
type Executor struct {
	cfg        Config
	log        zerolog.Logger
	persister  *persister.Persister
	checkpoint *checkpoint.Store
	locks      *lock.Manager
	handlers   *HandlerRegistry

	mu         sync.Mutex
	procedures map[string]*Procedure
}

// New builds an Executor. cfg.WorkerCount must be >= 1 (see internal/config's
// ResolveDefaults, which enforces this before the daemon starts).
func New(cfg Config, log zerolog.Logger, p *persister.Persister, cp *checkpoint.Store, locks *lock.Manager, handlers *HandlerRegistry) *Executor {
	return &Executor{
		cfg:        cfg,
		log:        log,
		persister:  p,
		checkpoint: cp,
		locks:      locks,
		handlers:   handlers,
		procedures: make(map[string]*Procedure),
	}
}

// Start launches cfg.WorkerCount worker goroutines, each consuming
// procedures from the lock manager until ctx is done.
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.cfg.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		go e.runWorker(ctx, workerID)
	}
}

func (e *Executor) runWorker(ctx context.Context, workerID string) {
	for {
		procUUID, err := e.locks.NextProcedure(ctx)
		if err != nil {
			return
		}
		if err := e.locks.Lock(procUUID, workerID); err != nil {
			e.log.Error().Err(err).Str("procedure", procUUID).Msg("executor: failed to bind worker to procedure")
			continue
		}
		e.runProcedure(ctx, procUUID)
	}
}

func (e *Executor) runProcedure(ctx context.Context, procUUID string) {
	e.mu.Lock()
	proc, ok := e.procedures[procUUID]
	e.mu.Unlock()
	if !ok {
		e.log.Error().Str("procedure", procUUID).Msg("executor: runnable procedure has no in-memory record")
		_ = e.locks.Release(procUUID)
		return
	}

	for {
		proc.mu.Lock()
		if e.locks.IsBroken(procUUID) {
			if proc.nextIdx < len(proc.jobs) {
				j := proc.jobs[proc.nextIdx]
				j.state = JobComplete
				j.result = ResultError
				j.diagnosis = ferrors.LockBroken().Error()
			}
			proc.mu.Unlock()
			break
		}
		if proc.nextIdx >= len(proc.jobs) {
			proc.mu.Unlock()
			break
		}
		j := proc.jobs[proc.nextIdx]
		proc.nextIdx++
		proc.mu.Unlock()

		if !e.runJob(ctx, proc, j) {
			break
		}
	}

	e.finishProcedure(ctx, proc)
}

// runJob executes one job's full lifecycle (steps 1-6 of the procedure
// executor contract) and reports whether the procedure should continue to
// its next scheduled job.
func (e *Executor) runJob(ctx context.Context, proc *Procedure, j *job) bool {
	j.state = JobProcessing
	recoverable := e.handlers.isRegisteredName(j.handler.Name)

	if recoverable {
		if err := e.checkpoint.Begin(ctx, proc.uuid, j.uuid); err != nil {
			e.log.Error().Err(err).Str("procedure", proc.uuid).Str("job", j.uuid).Msg("executor: failed to write checkpoint started_at")
		}
	}

	tx, err := e.persister.Begin(ctx)
	if err != nil {
		j.state = JobComplete
		j.result = ResultError
		j.diagnosis = err.Error()
		e.appendTrail(proc, j)
		return false
	}

	jc := events.JobContext{Ctx: ctx, Tx: tx, LockableObjects: proc.lockableObjects}
	chained, result, actionErr := j.handler.Action(jc, j.args)

	if actionErr != nil {
		j.diagnosis = actionErr.Error()
		_ = tx.Rollback()
		e.compensate(ctx, proc, j)
		j.state = JobComplete
		j.result = ResultError
		e.appendTrail(proc, j)
		return false
	}

	if len(chained) > 0 {
		encoded, encErr := encodeArgs(j.args)
		if encErr != nil {
			e.log.Error().Err(encErr).Str("procedure", proc.uuid).Msg("executor: failed to encode chained job arguments")
		}
		for _, h := range chained {
			childUUID := uuid.NewString()
			if _, err := e.checkpoint.Schedule(ctx, proc.uuid, childUUID, h.Name, encoded); err != nil {
				e.log.Error().Err(err).Str("procedure", proc.uuid).Msg("executor: failed to checkpoint chained job")
			}
			proc.mu.Lock()
			proc.jobs = append(proc.jobs, &job{uuid: childUUID, handler: h, args: j.args, state: JobEnqueued})
			proc.mu.Unlock()
		}
	}

	if recoverable {
		if err := e.checkpoint.Finish(ctx, proc.uuid, j.uuid); err != nil {
			e.log.Error().Err(err).Str("procedure", proc.uuid).Str("job", j.uuid).Msg("executor: failed to write checkpoint finished_at")
		}
	}

	if err := tx.Commit(); err != nil {
		j.state = JobComplete
		j.result = ResultError
		j.diagnosis = err.Error()
		e.appendTrail(proc, j)
		return false
	}

	j.state = JobComplete
	j.result = ResultSuccess
	e.appendTrail(proc, j)

	proc.mu.Lock()
	proc.returnValue = result
	proc.mu.Unlock()
	return true
}

func (e *Executor) compensate(ctx context.Context, proc *Procedure, j *job) {
	if j.handler.Compensate == nil {
		return
	}
	tx, err := e.persister.Begin(ctx)
	if err != nil {
		e.log.Error().Err(err).Str("procedure", proc.uuid).Str("job", j.uuid).Msg("executor: failed to begin compensation transaction")
		return
	}
	jc := events.JobContext{Ctx: ctx, Tx: tx, LockableObjects: proc.lockableObjects}
	if err := j.handler.Compensate(jc, j.args); err != nil {
		e.log.Error().Err(err).Str("procedure", proc.uuid).Str("job", j.uuid).Msg("executor: compensation failed")
		_ = tx.Rollback()
		return
	}
	if err := tx.Commit(); err != nil {
		e.log.Error().Err(err).Str("procedure", proc.uuid).Str("job", j.uuid).Msg("executor: failed to commit compensation")
	}
}

func (e *Executor) appendTrail(proc *Procedure, j *job) {
	// trail is reconstructed from proc.jobs' terminal states in GetProcedure;
	// nothing to do here beyond the state already stamped on j.
	_ = proc
	_ = j
}

func (e *Executor) finishProcedure(ctx context.Context, proc *Procedure) {
	proc.mu.Lock()
	lastSuccess := true
	for _, j := range proc.jobs {
		if j.state != JobComplete {
			lastSuccess = false
			break
		}
		if j.result == ResultError {
			lastSuccess = false
		}
	}
	proc.complete = true
	proc.success = lastSuccess
	waitCh := proc.waitCh
	proc.mu.Unlock()

	if waitCh != nil {
		close(waitCh)
	}
	if err := e.checkpoint.Remove(ctx, proc.uuid); err != nil {
		e.log.Error().Err(err).Str("procedure", proc.uuid).Msg("executor: failed to remove checkpoint rows")
	}
	if err := e.locks.Release(proc.uuid); err != nil {
		e.log.Error().Err(err).Str("procedure", proc.uuid).Msg("executor: failed to release procedure locks")
	}
}

// EnqueueProcedure implements events.ProcedureEnqueuer: it satisfies a
// Trigger call by creating a new Procedure (or, when callerProcedureUUID is
// set, chaining onto the caller's running Procedure) and handing it to the
// lock manager with a non-priority enqueue.
func (e *Executor) EnqueueProcedure(synchronous bool, callerProcedureUUID string, lockableObjects []string, handlers []events.Handler, args []any) (string, error) {
	return e.enqueue(synchronous, callerProcedureUUID, lockableObjects, handlers, args, false)
}

// EnqueueProcedurePriority is the failure-recovery path's entry point: it
// breaks every procedure currently holding or waiting on the named objects
// (each stops before its next job, which ends in ERROR with a lock-broken
// diagnosis) and inserts the new procedure at the head of every named
// object's queue.
func (e *Executor) EnqueueProcedurePriority(lockableObjects []string, handlers []events.Handler, args []any) (string, error) {
	e.locks.BreakConflicts(lockableObjects)
	return e.enqueue(false, "", lockableObjects, handlers, args, true)
}

func (e *Executor) enqueue(synchronous bool, callerProcedureUUID string, lockableObjects []string, handlers []events.Handler, args []any, priority bool) (string, error) {
	// EnqueueProcedure/EnqueueProcedurePriority carry no context (they
	// implement events.ProcedureEnqueuer, called from request-handling code
	// that predates context threading through the dispatcher); the
	// checkpoint writes below use a background context like the rest of
	// this enqueue path's persistence calls.
	encoded, err := encodeArgs(args)
	if err != nil {
		return "", ferrors.Programming("failed to encode job arguments: " + err.Error())
	}

	if callerProcedureUUID != "" {
		e.mu.Lock()
		proc, ok := e.procedures[callerProcedureUUID]
		e.mu.Unlock()
		if !ok {
			return "", ferrors.Procedure("unknown procedure uuid")
		}
		newJobs := make([]*job, 0, len(handlers))
		for _, h := range handlers {
			jobUUID := uuid.NewString()
			if _, err := e.checkpoint.Schedule(context.Background(), proc.uuid, jobUUID, h.Name, encoded); err != nil {
				e.log.Error().Err(err).Str("procedure", proc.uuid).Msg("executor: failed to checkpoint job")
			}
			newJobs = append(newJobs, &job{uuid: jobUUID, handler: h, args: args, state: JobEnqueued})
		}
		proc.mu.Lock()
		proc.jobs = append(proc.jobs, newJobs...)
		proc.mu.Unlock()
		return proc.uuid, nil
	}

	procUUID := uuid.NewString()
	proc := &Procedure{uuid: procUUID, lockableObjects: lockableObjects}
	for _, h := range handlers {
		jobUUID := uuid.NewString()
		if _, err := e.checkpoint.Schedule(context.Background(), procUUID, jobUUID, h.Name, encoded); err != nil {
			e.log.Error().Err(err).Str("procedure", procUUID).Msg("executor: failed to checkpoint job")
		}
		proc.jobs = append(proc.jobs, &job{uuid: jobUUID, handler: h, args: args, state: JobEnqueued})
	}
	if synchronous {
		proc.waitCh = make(chan struct{})
	}

	e.mu.Lock()
	e.procedures[procUUID] = proc
	e.mu.Unlock()

	if err := e.locks.Enqueue(procUUID, lockableObjects, priority); err != nil {
		return "", err
	}

	if synchronous {
		<-proc.waitCh
	}
	return procUUID, nil
}

// GetProcedure returns a snapshot view of procUUID's current state.
func (e *Executor) GetProcedure(procUUID string) (ProcedureView, bool) {
	e.mu.Lock()
	proc, ok := e.procedures[procUUID]
	e.mu.Unlock()
	if !ok {
		return ProcedureView{}, false
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	view := ProcedureView{
		UUID:        proc.uuid,
		Complete:    proc.complete,
		Success:     proc.success,
		ReturnValue: proc.returnValue,
	}
	for _, j := range proc.jobs {
		view.Activities = append(view.Activities, TrailEntry{
			JobUUID:   j.uuid,
			Action:    j.handler.Name,
			Result:    j.result,
			Diagnosis: j.diagnosis,
		})
	}
	return view, true
}

// WaitForProcedure blocks until procUUID completes or ctx is done.
func (e *Executor) WaitForProcedure(ctx context.Context, procUUID string) (ProcedureView, error) {
	e.mu.Lock()
	proc, ok := e.procedures[procUUID]
	e.mu.Unlock()
	if !ok {
		return ProcedureView{}, ferrors.Procedure("unknown procedure uuid")
	}

	proc.mu.Lock()
	waitCh := proc.waitCh
	complete := proc.complete
	proc.mu.Unlock()

	if !complete && waitCh != nil {
		select {
		case <-waitCh:
		case <-ctx.Done():
			return ProcedureView{}, ferrors.Timeout("wait for procedure", ctx.Err())
		}
	}

	view, _ := e.GetProcedure(procUUID)
	return view, nil
}

// Recover reconstructs in-memory Procedures for every job left unfinished by
// a prior crash and re-enqueues each with priority so recovery work is
// prioritized over newly triggered events. It covers both halves of a crash:
// Unfinished returns procedures with a job that started but never finished,
// while Scheduled additionally catches procedures whose very first job was
// logged but the daemon died before ever calling Begin on it — otherwise
// invisible to Unfinished, since no row has started_at set. Jobs whose
// action no longer resolves to a registered Handler cannot be resumed or
// compensated; they are logged and left for operator attention.
func (e *Executor) Recover(ctx context.Context) error {
	rows, err := e.checkpoint.Unfinished(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		seen[row.ProcedureUUID] = struct{}{}
		e.recoverRow(row)
	}

	scheduled, err := e.checkpoint.Scheduled(ctx)
	if err != nil {
		return err
	}
	for _, row := range scheduled {
		if _, ok := seen[row.ProcedureUUID]; ok {
			continue
		}
		// scheduledSQL orders by (procedure_uuid, sequence), so the first
		// row seen for a procedure here is its earliest scheduled job.
		seen[row.ProcedureUUID] = struct{}{}
		e.recoverRow(row)
	}

	return e.checkpoint.Cleanup(ctx)
}

// recoverRow reconstructs and re-enqueues the single procedure described by
// row, restoring its job's arguments via the handler's DecodeArgs when the
// checkpoint log carried any.
func (e *Executor) recoverRow(row checkpoint.Row) {
	handler, ok := e.handlers.Lookup(row.Action)
	if !ok {
		e.log.Error().
			Str("procedure", row.ProcedureUUID).
			Str("action", row.Action).
			Msg("executor: recovery action no longer resolvable, leaving checkpoint in place")
		return
	}

	var args []any
	if len(row.Args) > 0 && handler.DecodeArgs != nil {
		decoded, err := handler.DecodeArgs(row.Args)
		if err != nil {
			e.log.Error().Err(err).
				Str("procedure", row.ProcedureUUID).
				Str("action", row.Action).
				Msg("executor: failed to decode recovered job arguments, recovering with none")
		} else {
			args = decoded
		}
	}

	proc := &Procedure{uuid: row.ProcedureUUID, lockableObjects: []string{row.ProcedureUUID}}
	proc.jobs = []*job{{uuid: row.JobUUID, handler: handler, args: args, state: JobEnqueued}}

	e.mu.Lock()
	e.procedures[row.ProcedureUUID] = proc
	e.mu.Unlock()

	if err := e.locks.Enqueue(row.ProcedureUUID, proc.lockableObjects, true); err != nil {
		e.log.Error().Err(err).Str("procedure", row.ProcedureUUID).Msg("executor: failed to re-enqueue recovered procedure")
	}
}

// isRegisteredName is a small indirection so runJob's recoverability check
// reads the same way regardless of whether the registry is nil (tests may
// construct an Executor without one).
func (r *HandlerRegistry) isRegisteredName(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Lookup(name)
	return ok
}
