package ha

import (
	"context"

	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/fabric"
)

// PriorityEnqueuer is the executor's priority-enqueue entry point
// (executor.Executor.EnqueueProcedurePriority), kept as a narrow interface
// so this package doesn't need to import internal/executor just for this.
type PriorityEnqueuer interface {
	EnqueueProcedurePriority(lockableObjects []string, handlers []events.Handler, args []any) (string, error)
}

// Escalator implements failuredetector.Escalator: MarkFaulty durably
// transitions a server, and TriggerFailover enqueues a priority promote
// (§4.9's "failover" is automatic promote with no candidate specified).
type Escalator struct {
	repo        *fabric.Repository
	coordinator *Coordinator
	enqueuer    PriorityEnqueuer
}

// NewEscalator builds an Escalator.
func NewEscalator(repo *fabric.Repository, coordinator *Coordinator, enqueuer PriorityEnqueuer) *Escalator {
	return &Escalator{repo: repo, coordinator: coordinator, enqueuer: enqueuer}
}

// MarkFaulty transitions serverUUID to FAULTY.
func (e *Escalator) MarkFaulty(groupUUID, serverUUID string) error {
	return e.repo.UpdateServerStatus(context.Background(), serverUUID, fabric.StatusFaulty)
}

// TriggerFailover enqueues a priority promote procedure for groupUUID with
// no candidate specified, so selectCandidate picks the best available
// secondary. priority is accepted to match failuredetector.Escalator's
// signature; failover is always dispatched at priority.
func (e *Escalator) TriggerFailover(groupUUID string, priority bool) error {
	_, err := e.enqueuer.EnqueueProcedurePriority(
		[]string{groupUUID},
		[]events.Handler{e.coordinator.PromoteHandler()},
		[]any{PromoteRequest{GroupID: groupUUID}},
	)
	return err
}
