package pool

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	user    string
	closed  bool
	pingErr error
}

func (f *fakeConn) User() string                   { return f.user }
func (f *fakeConn) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

type fakeDialer struct {
	dialed int
	user   string
}

func (d *fakeDialer) Dial(ctx context.Context, serverUUID string) (Conn, error) {
	d.dialed++
	return &fakeConn{user: d.user}, nil
}

func TestPool_GetDialsFreshWhenEmpty(t *testing.T) {
	dialer := &fakeDialer{user: "fabric"}
	p := New(dialer, zerolog.Nop())

	c, err := p.Get(context.Background(), "server-1", "fabric")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, 1, dialer.dialed)
	require.Equal(t, 1, p.Size("server-1"))
}

func TestPool_ReleaseThenGetReusesHandle(t *testing.T) {
	dialer := &fakeDialer{user: "fabric"}
	p := New(dialer, zerolog.Nop())

	c, err := p.Get(context.Background(), "server-1", "fabric")
	require.NoError(t, err)
	p.Release("server-1", c)

	c2, err := p.Get(context.Background(), "server-1", "fabric")
	require.NoError(t, err)
	require.Same(t, c, c2)
	require.Equal(t, 1, dialer.dialed, "reused handle must not re-dial")
}

func TestPool_GetDiscardsMismatchedIdentity(t *testing.T) {
	dialer := &fakeDialer{user: "wrong-user"}
	p := New(dialer, zerolog.Nop())

	_, err := p.Get(context.Background(), "server-1", "fabric")
	require.Error(t, err)
}

func TestPool_PurgeClosesAllHandlesAndResetsSize(t *testing.T) {
	dialer := &fakeDialer{user: "fabric"}
	p := New(dialer, zerolog.Nop())

	inFlight, err := p.Get(context.Background(), "server-1", "fabric")
	require.NoError(t, err)

	idle, err := p.Get(context.Background(), "server-1", "fabric")
	require.NoError(t, err)
	p.Release("server-1", idle)

	p.Purge("server-1")

	require.Zero(t, p.Size("server-1"))
	require.True(t, inFlight.(*fakeConn).closed)
	require.True(t, idle.(*fakeConn).closed)
}
