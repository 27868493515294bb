// Package lock implements the lock manager / scheduler: the component that
// protects the invariant "no two procedures touching overlapping
// lockable-object sets run simultaneously". Every named lockable object
// owns an ordered queue of procedure uuids; a procedure becomes runnable
// (joins the free FIFO) exactly when it sits at the head of every queue it
// appears in.
package lock

import (
	"context"
	"sync"

	"github.com/signal18/fabricd/internal/ferrors"
)

type procState struct {
	objects []string
	owner   string
}

// Manager is the lock manager described above. The zero value is not
// usable; construct one with NewManager.
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond

	objects    map[string][]string
	procedures map[string]*procState
	free       []string
	broken     map[string]bool
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	m := &Manager{
		objects:    make(map[string][]string),
		procedures: make(map[string]*procState),
		broken:     make(map[string]bool),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enqueue appends procedureUUID to the tail of each named object's queue
// (or, when priority is set, inserts it at the head, displacing the
// current front). If it becomes head of every queue it joins the free FIFO.
func (m *Manager) Enqueue(procedureUUID string, objects []string, priority bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.procedures[procedureUUID]; exists {
		return ferrors.LockManager("procedure already enqueued")
	}
	m.procedures[procedureUUID] = &procState{objects: objects}

	displaced := make(map[string]struct{})
	for _, obj := range objects {
		queue := m.objects[obj]
		if priority {
			if len(queue) > 0 {
				displaced[queue[0]] = struct{}{}
			}
			queue = append([]string{procedureUUID}, queue...)
		} else {
			queue = append(queue, procedureUUID)
		}
		m.objects[obj] = queue
	}

	if len(displaced) > 0 {
		m.removeFromFree(displaced)
	}

	if m.isHeadOfAll(procedureUUID, objects) {
		m.free = append(m.free, procedureUUID)
		m.cond.Broadcast()
	}
	return nil
}

// NextProcedure blocks until the free FIFO is non-empty (or ctx is done)
// and returns its head.
func (m *Manager) NextProcedure(ctx context.Context) (string, error) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-stop:
		}
	}()
	defer close(stop)

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.free) == 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		m.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := m.free[0]
	m.free = m.free[1:]
	return p, nil
}

// Lock binds the calling worker (identified by ownerToken, typically a
// worker id) to procedureUUID, so code running inside its jobs can observe
// "am I the current owner?" for recursive enqueues.
func (m *Manager) Lock(procedureUUID, ownerToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.procedures[procedureUUID]
	if !ok {
		return ferrors.Procedure("unknown procedure uuid")
	}
	ps.owner = ownerToken
	return nil
}

// IsOwner reports whether ownerToken currently owns procedureUUID.
func (m *Manager) IsOwner(procedureUUID, ownerToken string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.procedures[procedureUUID]
	return ok && ps.owner == ownerToken
}

// Release removes procedureUUID from every queue it holds. Every procedure
// that thereby reaches the head of all its queues joins the free FIFO.
func (m *Manager) Release(procedureUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.procedures[procedureUUID]
	if !ok {
		return ferrors.Procedure("unknown procedure uuid")
	}

	for _, obj := range ps.objects {
		queue := m.objects[obj]
		for i, p := range queue {
			if p == procedureUUID {
				queue = append(queue[:i], queue[i+1:]...)
				break
			}
		}
		m.objects[obj] = queue

		if len(queue) == 0 {
			continue
		}
		head := queue[0]
		if hs, ok := m.procedures[head]; ok && m.isHeadOfAll(head, hs.objects) && !m.inFree(head) {
			m.free = append(m.free, head)
		}
	}

	delete(m.procedures, procedureUUID)
	delete(m.broken, procedureUUID)
	m.cond.Broadcast()
	return nil
}

// BreakConflicts is the emergency path: every procedure currently holding or
// waiting on any of objects is marked broken, so their worker sees
// IsBroken return true and fails the job fast with a LockBroken error. It
// returns the uuids of the procedures it marked.
func (m *Manager) BreakConflicts(objects []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	affected := make(map[string]struct{})
	for _, obj := range objects {
		for _, p := range m.objects[obj] {
			affected[p] = struct{}{}
		}
	}

	result := make([]string, 0, len(affected))
	for p := range affected {
		m.broken[p] = true
		result = append(result, p)
	}
	m.cond.Broadcast()
	return result
}

// IsBroken reports whether procedureUUID has been targeted by BreakConflicts.
func (m *Manager) IsBroken(procedureUUID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broken[procedureUUID]
}

// isHeadOfAll must be called with m.mu held.
func (m *Manager) isHeadOfAll(procedureUUID string, objects []string) bool {
	for _, obj := range objects {
		q := m.objects[obj]
		if len(q) == 0 || q[0] != procedureUUID {
			return false
		}
	}
	return true
}

// inFree must be called with m.mu held.
func (m *Manager) inFree(procedureUUID string) bool {
	for _, p := range m.free {
		if p == procedureUUID {
			return true
		}
	}
	return false
}

// removeFromFree must be called with m.mu held.
func (m *Manager) removeFromFree(remove map[string]struct{}) {
	filtered := m.free[:0]
	for _, p := range m.free {
		if _, ok := remove[p]; !ok {
			filtered = append(filtered, p)
		}
	}
	m.free = filtered
}
