package executor

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/signal18/fabricd/internal/checkpoint"
	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/lock"
	"github.com/signal18/fabricd/internal/persister"
)

// openTestDB opens a handle against the fake driver registered in
// fakedriver_test.go. It accepts any statement it's given, which is enough
// to exercise the executor's checkpoint read/write paths end to end without
// a running MySQL server (internal/persister and internal/checkpoint are
// exercised against the real thing separately, via the testcontainers-backed
// integration tests).
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("fabricfake", "")
	require.NoError(t, err)
	return db
}

func newTestExecutor(t *testing.T, handlers *HandlerRegistry) (*Executor, *sql.DB) {
	db := openTestDB(t)
	p := persister.New(db, zerolog.Nop())
	cp := checkpoint.New(db)
	locks := lock.NewManager()
	return New(Config{WorkerCount: 1}, zerolog.Nop(), p, cp, locks, handlers), db
}

func TestExecutor_SingleJobSucceeds(t *testing.T) {
	handlers := NewHandlerRegistry()
	h := events.Handler{
		Name: "noop",
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			return nil, "done", nil
		},
	}
	handlers.Register("noop", h)

	e, _ := newTestExecutor(t, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	procUUID, err := e.EnqueueProcedure(true, "", []string{"group-1"}, []events.Handler{h}, nil)
	require.NoError(t, err)

	view, err := e.WaitForProcedure(ctx, procUUID)
	require.NoError(t, err)
	require.True(t, view.Complete)
	require.True(t, view.Success)
	require.Equal(t, "done", view.ReturnValue)
}

func TestExecutor_FailingJobRunsCompensationAndMarksError(t *testing.T) {
	handlers := NewHandlerRegistry()
	compensated := make(chan struct{}, 1)
	h := events.Handler{
		Name: "failing",
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			return nil, nil, errors.New("boom")
		},
		Compensate: func(jc events.JobContext, args []any) error {
			compensated <- struct{}{}
			return nil
		},
	}
	handlers.Register("failing", h)

	e, _ := newTestExecutor(t, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	procUUID, err := e.EnqueueProcedure(true, "", []string{"group-1"}, []events.Handler{h}, nil)
	require.NoError(t, err)

	view, err := e.WaitForProcedure(ctx, procUUID)
	require.NoError(t, err)
	require.True(t, view.Complete)
	require.False(t, view.Success)
	require.Len(t, view.Activities, 1)
	require.Equal(t, ResultError, view.Activities[0].Result)

	select {
	case <-compensated:
	case <-time.After(time.Second):
		t.Fatal("expected compensation to run")
	}
}

func TestExecutor_ChainedJobsRunWithinSameProcedure(t *testing.T) {
	handlers := NewHandlerRegistry()
	second := events.Handler{
		Name: "second",
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			return nil, "second-done", nil
		},
	}
	first := events.Handler{
		Name: "first",
		Action: func(jc events.JobContext, args []any) ([]events.Handler, any, error) {
			return []events.Handler{second}, "first-done", nil
		},
	}
	handlers.Register("first", first)
	handlers.Register("second", second)

	e, _ := newTestExecutor(t, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	procUUID, err := e.EnqueueProcedure(true, "", []string{"group-1"}, []events.Handler{first}, nil)
	require.NoError(t, err)

	view, err := e.WaitForProcedure(ctx, procUUID)
	require.NoError(t, err)
	require.True(t, view.Success)
	require.Len(t, view.Activities, 2)
	require.Equal(t, "second-done", view.ReturnValue)
}
