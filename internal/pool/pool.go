// Package pool implements the connection pool: server_uuid -> reusable
// connection handles, with an in-flight tracker so a purge can interrupt
// handles currently on loan to a worker.
package pool

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/ferrors"
)

// Conn is a pooled handle to a managed MySQL server.
type Conn interface {
	// User returns the authenticated user the handle connected as, used for
	// the identity check on acquisition.
	User() string
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a fresh Conn to the given server. Implemented by
// internal/mysqlconn.
type Dialer interface {
	Dial(ctx context.Context, serverUUID string) (Conn, error)
}

// Pool is the connection pool for every managed server.
type Pool struct {
	mu       sync.Mutex
	dialer   Dialer
	log      zerolog.Logger
	idle     map[string][]Conn
	inFlight map[string]map[Conn]struct{}
}

// New builds a Pool that dials fresh connections via dialer when needed.
func New(dialer Dialer, log zerolog.Logger) *Pool {
	return &Pool{
		dialer:   dialer,
		log:      log,
		idle:     make(map[string][]Conn),
		inFlight: make(map[string]map[Conn]struct{}),
	}
}

// Get returns a connected, validated handle for serverUUID: a pooled handle
// whose liveness check passes and whose authenticated user matches
// expectedUser, or — if the pool is empty or every pooled handle fails
// liveness/identity — a freshly dialed one.
func (p *Pool) Get(ctx context.Context, serverUUID, expectedUser string) (Conn, error) {
	p.mu.Lock()
	for len(p.idle[serverUUID]) > 0 {
		n := len(p.idle[serverUUID])
		c := p.idle[serverUUID][n-1]
		p.idle[serverUUID] = p.idle[serverUUID][:n-1]
		p.mu.Unlock()

		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			p.mu.Lock()
			continue
		}
		if c.User() != expectedUser {
			p.log.Warn().Str("server", serverUUID).Msg("pool: discarding handle with mismatched identity")
			_ = c.Close()
			p.mu.Lock()
			continue
		}

		p.mu.Lock()
		p.track(serverUUID, c)
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.dialer.Dial(ctx, serverUUID)
	if err != nil {
		return nil, ferrors.Database("failed to dial managed server", err)
	}
	if c.User() != expectedUser {
		_ = c.Close()
		return nil, ferrors.Server("dialed connection identity mismatch")
	}

	p.mu.Lock()
	p.track(serverUUID, c)
	p.mu.Unlock()
	return c, nil
}

// track must be called with p.mu held.
func (p *Pool) track(serverUUID string, c Conn) {
	if p.inFlight[serverUUID] == nil {
		p.inFlight[serverUUID] = make(map[Conn]struct{})
	}
	p.inFlight[serverUUID][c] = struct{}{}
}

// Release returns a handle to the idle pool.
func (p *Pool) Release(serverUUID string, c Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight[serverUUID], c)
	p.idle[serverUUID] = append(p.idle[serverUUID], c)
}

// Purge closes every pooled and in-flight handle for serverUUID. Used when
// a server is marked FAULTY or removed.
func (p *Pool) Purge(serverUUID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.idle[serverUUID] {
		_ = c.Close()
	}
	delete(p.idle, serverUUID)

	for c := range p.inFlight[serverUUID] {
		_ = c.Close()
	}
	delete(p.inFlight, serverUUID)
}

// Size returns the total number of handles (idle + in-flight) tracked for
// serverUUID. Used to assert the connection-hygiene invariant:
// after Purge, Size must be zero.
func (p *Pool) Size(serverUUID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[serverUUID]) + len(p.inFlight[serverUUID])
}
