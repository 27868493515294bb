// Package fabricd wires every component into the running daemon: it is the
// composition root, analogous to the teacher's memoryservice package. No
// business logic lives here — only construction order and lifecycle.
package fabricd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/signal18/fabricd/internal/checkpoint"
	"github.com/signal18/fabricd/internal/config"
	"github.com/signal18/fabricd/internal/events"
	"github.com/signal18/fabricd/internal/executor"
	"github.com/signal18/fabricd/internal/fabric"
	"github.com/signal18/fabricd/internal/failuredetector"
	"github.com/signal18/fabricd/internal/ha"
	"github.com/signal18/fabricd/internal/lock"
	"github.com/signal18/fabricd/internal/mysqlconn"
	"github.com/signal18/fabricd/internal/persister"
	"github.com/signal18/fabricd/internal/pool"
	"github.com/signal18/fabricd/internal/rpc"
	"github.com/signal18/fabricd/internal/rpc/httpgw"
	"github.com/signal18/fabricd/internal/sharding"
)

// errorLogAdapter converts between fabric.ErrorLog's own ErrorLogEntry and
// failuredetector.ErrorLogStore's, since fabric keeps a parallel type to
// stay a pure data layer (see fabric.ErrorLogEntry's doc comment).
type errorLogAdapter struct {
	log *fabric.ErrorLog
}

func (a errorLogAdapter) Append(entry failuredetector.ErrorLogEntry) error {
	return a.log.Append(fabric.ErrorLogEntry{
		GroupUUID: entry.GroupUUID, ServerUUID: entry.ServerUUID,
		Reporter: entry.Reporter, At: entry.At, Failure: entry.Failure,
	})
}

func (a errorLogAdapter) Window(groupUUID, serverUUID string, since time.Time) ([]failuredetector.ErrorLogEntry, error) {
	rows, err := a.log.Window(groupUUID, serverUUID, since)
	if err != nil {
		return nil, err
	}
	out := make([]failuredetector.ErrorLogEntry, len(rows))
	for i, r := range rows {
		out[i] = failuredetector.ErrorLogEntry{
			GroupUUID: r.GroupUUID, ServerUUID: r.ServerUUID,
			Reporter: r.Reporter, At: r.At, Failure: r.Failure,
		}
	}
	return out, nil
}

func newLogger(target, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	// Only file:///dev/stdout and file:///dev/stderr are interpreted; any
	// other file:// or syslog:// target still logs to stdout, since wiring
	// an actual syslog writer has no component in scope to exercise it
	// beyond this URL parse (spec.md §6's logging target is otherwise only
	// consumed by the out-of-scope wire servers' own deployments).
	w := os.Stdout
	if target == "file:///dev/stderr" {
		w = os.Stderr
	}
	return zerolog.New(w).Level(lvl).With().
		Str("service", "fabricd").
		Timestamp().
		Logger()
}

// Run boots the daemon and blocks until ctx is cancelled or a fatal error
// occurs. It is the single entry point cmd/fabricd's cobra wiring calls.
func Run(ctx context.Context) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := newLogger(cfg.Logging.Target, cfg.Logging.Level)
	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("http_gateway_addr", cfg.HTTPGateway.Address).
		Msg("fabricd starting")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pst, err := persister.Open(cfg.Storage.DSN, cfg.Storage.MaxOpenConns, cfg.Storage.MaxIdleConns, log)
	if err != nil {
		return fmt.Errorf("fatal: state store unreachable: %w", err)
	}
	if err := pst.CreateSchema(ctx); err != nil {
		return fmt.Errorf("fatal: corrupt schema: %w", err)
	}

	fabricRepo := fabric.NewRepository(pst.DB())
	shardRepo := sharding.NewRepository(pst.DB())
	errorLog := fabric.NewErrorLog(pst.DB())

	creds := mysqlconn.Credentials{User: cfg.ManagedServers.User, Password: cfg.ManagedServers.Password}
	dialer := mysqlconn.NewDialer(fabricRepo, creds)
	connPool := pool.New(dialer, log)

	locks := lock.NewManager()
	cpStore := checkpoint.New(pst.DB())
	handlers := executor.NewHandlerRegistry()

	exec := executor.New(executor.Config{WorkerCount: cfg.Executor.WorkerCount}, log, pst, cpStore, locks, handlers)
	dispatcher := events.NewDispatcher(exec)

	backup := sharding.MysqldumpBackupRestorer{Creds: creds}
	haCoord := ha.NewCoordinator(fabricRepo, connPool, locks, creds, log)
	shardCoord := sharding.NewCoordinator(shardRepo, fabricRepo, connPool, creds, backup, log)
	haCoord.Register(dispatcher)
	shardCoord.Register(dispatcher)
	haCoord.RegisterRecoverable(handlers)
	shardCoord.RegisterRecoverable(handlers)

	escalator := ha.NewEscalator(fabricRepo, haCoord, exec)
	detector := failuredetector.New(failuredetector.Config{
		CheckInterval:  cfg.FailureTracking.CheckInterval,
		CheckTimeout:   cfg.FailureTracking.CheckTimeout,
		Window:         cfg.FailureTracking.Window,
		NNotifications: cfg.FailureTracking.NNotifications,
		NReporters:     cfg.FailureTracking.NReporters,
	}, log, errorLogAdapter{log: errorLog}, escalator)

	pinger := func(ctx context.Context, serverUUID string) error {
		pc, err := connPool.Get(ctx, serverUUID, creds.User)
		if err != nil {
			return err
		}
		defer connPool.Release(serverUUID, pc)
		return pc.Ping(ctx)
	}
	groupViews := func(ctx context.Context, groupID string) (failuredetector.GroupView, error) {
		group, err := fabricRepo.GetGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		servers, err := fabricRepo.ServersInGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		return fabric.NewGroupHandle(group, servers, pinger), nil
	}

	groups, err := fabricRepo.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("fatal: failed to list groups at startup: %w", err)
	}
	for _, g := range groups {
		view, err := groupViews(ctx, g.ID)
		if err != nil {
			log.Error().Err(err).Str("group", g.ID).Msg("fabricd: failed to build startup watch, skipping")
			continue
		}
		detector.Watch(ctx, view)
	}

	exec.Start(ctx)
	if err := exec.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("fabricd: recovery pass reported an error, continuing")
	}

	svc := rpc.NewService(cfg.FabricUUID, cfg.TTL, dispatcher, exec, fabricRepo, haCoord, shardCoord, detector, groupViews, connPool, creds, log)
	router := httpgw.NewRouter(svc, log)

	server := &http.Server{
		Addr:    cfg.HTTPGateway.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPGateway.Address).Msg("fabricd: http gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("fabricd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("fabricd: http gateway forced to shutdown")
			return err
		}
		log.Info().Msg("fabricd: shutdown complete")
		return nil
	case err := <-errCh:
		log.Error().Err(err).Msg("fabricd: http gateway failed")
		return err
	}
}
