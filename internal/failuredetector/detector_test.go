package failuredetector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	uuid   string
	mu     sync.Mutex
	fail   bool
	pings  int
}

func (f *fakeServer) UUID() string { return f.uuid }
func (f *fakeServer) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if f.fail {
		return errBoom
	}
	return nil
}

var errBoom = errStr("ping failed")

type errStr string

func (e errStr) Error() string { return string(e) }

type fakeGroup struct {
	uuid    string
	status  string
	primary string
	members []ServerPinger
}

func (g *fakeGroup) UUID() string            { return g.uuid }
func (g *fakeGroup) Status() string          { return g.status }
func (g *fakeGroup) PrimaryUUID() string     { return g.primary }
func (g *fakeGroup) Members() []ServerPinger { return g.members }

type memErrorLog struct {
	mu      sync.Mutex
	entries []ErrorLogEntry
}

func (m *memErrorLog) Append(e ErrorLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memErrorLog) Window(groupUUID, serverUUID string, since time.Time) ([]ErrorLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ErrorLogEntry
	for _, e := range m.entries {
		if e.GroupUUID == groupUUID && e.ServerUUID == serverUUID && !e.At.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type memEscalator struct {
	mu        sync.Mutex
	faulty    map[string]bool
	failovers []string
}

func newMemEscalator() *memEscalator {
	return &memEscalator{faulty: make(map[string]bool)}
}

func (m *memEscalator) MarkFaulty(groupUUID, serverUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faulty[serverUUID] = true
	return nil
}

func (m *memEscalator) TriggerFailover(groupUUID string, priority bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failovers = append(m.failovers, groupUUID)
	return nil
}

func (m *memEscalator) isFaulty(serverUUID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faulty[serverUUID]
}

func TestDetector_ReportFailureMarksFaultyImmediately(t *testing.T) {
	errorLog := &memErrorLog{}
	escalator := newMemEscalator()
	d := New(Config{NNotifications: 3, NReporters: 2, Window: time.Minute}, zerolog.Nop(), errorLog, escalator)

	group := &fakeGroup{uuid: "g1", primary: "s1", members: nil}
	require.NoError(t, d.ReportFailure(group, "s1", "app-client"))
	require.True(t, escalator.isFaulty("s1"))
	require.Contains(t, escalator.failovers, "g1")
}

func TestDetector_ReportErrorOnlyEscalatesAfterThresholds(t *testing.T) {
	errorLog := &memErrorLog{}
	escalator := newMemEscalator()
	d := New(Config{NNotifications: 3, NReporters: 2, Window: time.Minute}, zerolog.Nop(), errorLog, escalator)
	group := &fakeGroup{uuid: "g1", primary: "s2"}

	require.NoError(t, d.ReportError(group, "s1", "reporter-a"))
	require.False(t, escalator.isFaulty("s1"), "single report must not escalate")

	require.NoError(t, d.ReportError(group, "s1", "reporter-b"))
	require.False(t, escalator.isFaulty("s1"), "two distinct reporters but only two timestamps, threshold is three notifications")

	require.NoError(t, d.ReportError(group, "s1", "reporter-b"))
	require.True(t, escalator.isFaulty("s1"), "third notification from a second reporter must cross both thresholds")
	require.Empty(t, escalator.failovers, "non-primary server must not trigger failover")
}

func TestDetector_TickSkipsConfiguringGroup(t *testing.T) {
	errorLog := &memErrorLog{}
	escalator := newMemEscalator()
	d := New(Config{CheckTimeout: 50 * time.Millisecond, NNotifications: 1, NReporters: 1, Window: time.Minute}, zerolog.Nop(), errorLog, escalator)

	server := &fakeServer{uuid: "s1", fail: true}
	group := &fakeGroup{uuid: "g1", status: "CONFIGURING", primary: "s1", members: []ServerPinger{server}}

	d.tick(context.Background(), group)

	require.False(t, escalator.isFaulty("s1"), "CONFIGURING groups must be paused")
	require.Zero(t, server.pings)
}

func TestDetector_TickReportsMissedPing(t *testing.T) {
	errorLog := &memErrorLog{}
	escalator := newMemEscalator()
	d := New(Config{CheckTimeout: 50 * time.Millisecond, NNotifications: 1, NReporters: 1, Window: time.Minute}, zerolog.Nop(), errorLog, escalator)

	server := &fakeServer{uuid: "s1", fail: true}
	group := &fakeGroup{uuid: "g1", status: "RUNNING", primary: "s1", members: []ServerPinger{server}}

	d.tick(context.Background(), group)

	require.True(t, escalator.isFaulty("s1"))
	require.Contains(t, escalator.failovers, "g1")
}
