// Package failuredetector implements the per-group health monitors that feed
// threat notifications back into the event dispatcher: a background task
// pings every non-FAULTY member of each active group at a configured
// interval with a configured timeout, escalating to FAULTY once both a
// notification-count and a reporter-count threshold are exceeded inside a
// sliding window.
package failuredetector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// reporterSelf identifies error log entries produced by this detector
// itself, as opposed to external report_error/report_failure RPCs.
const reporterSelf = "failure_detector"

// ServerPinger is the subset of a managed server the detector needs:
// enough identity to log against, and a way to probe liveness.
type ServerPinger interface {
	UUID() string
	Ping(ctx context.Context) error
}

// GroupView is the subset of a replication group the detector needs. Status
// is checked on every tick so the detector can skip INACTIVE groups and
// honor the CONFIGURING pause rule (set during a shard split's temporary
// replication link).
type GroupView interface {
	UUID() string
	Status() string
	PrimaryUUID() string
	Members() []ServerPinger
}

// ErrorLogEntry records a single missed ping or external threat report.
type ErrorLogEntry struct {
	GroupUUID  string
	ServerUUID string
	Reporter   string
	At         time.Time
	Failure    bool // true for report_failure / an immediate-FAULTY entry
}

// ErrorLogStore persists and windows ErrorLogEntry rows. Window must return
// only entries within [since, now] for the given group/server pair.
type ErrorLogStore interface {
	Append(entry ErrorLogEntry) error
	Window(groupUUID, serverUUID string, since time.Time) ([]ErrorLogEntry, error)
}

// Escalator is notified when a server crosses both failure-detector
// thresholds. MarkFaulty must transition the server's status durably;
// TriggerFailover enqueues a priority failover procedure when the faulty
// server was the group's primary.
type Escalator interface {
	MarkFaulty(groupUUID, serverUUID string) error
	TriggerFailover(groupUUID string, priority bool) error
}

// Config holds the thresholds and cadence governing escalation.
type Config struct {
	CheckInterval  time.Duration
	CheckTimeout   time.Duration
	Window         time.Duration
	NNotifications int
	NReporters     int
}

// Detector runs one background ticker per active group.
type Detector struct {
	cfg       Config
	log       zerolog.Logger
	errorLog  ErrorLogStore
	escalator Escalator

	mu     sync.Mutex
	cancel map[string]context.CancelFunc
}

// New builds a Detector. cfg's zero values are not valid; callers must
// supply positive durations and thresholds (see config.FailureTracking).
func New(cfg Config, log zerolog.Logger, errorLog ErrorLogStore, escalator Escalator) *Detector {
	return &Detector{
		cfg:       cfg,
		log:       log,
		errorLog:  errorLog,
		escalator: escalator,
		cancel:    make(map[string]context.CancelFunc),
	}
}

// Watch starts (or restarts) the background ticker for group. Calling Watch
// again for a group UUID already being watched replaces the prior ticker,
// which is how callers pick up group membership/status changes.
func (d *Detector) Watch(ctx context.Context, group GroupView) {
	d.mu.Lock()
	if cancel, ok := d.cancel[group.UUID()]; ok {
		cancel()
	}
	groupCtx, cancel := context.WithCancel(ctx)
	d.cancel[group.UUID()] = cancel
	d.mu.Unlock()

	go d.run(groupCtx, group)
}

// Unwatch stops monitoring group.
func (d *Detector) Unwatch(groupUUID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.cancel[groupUUID]; ok {
		cancel()
		delete(d.cancel, groupUUID)
	}
}

func (d *Detector) run(ctx context.Context, group GroupView) {
	ticker := time.NewTicker(d.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx, group)
		}
	}
}

func (d *Detector) tick(ctx context.Context, group GroupView) {
	if s := group.Status(); s == "CONFIGURING" || s == "INACTIVE" {
		return
	}
	for _, member := range group.Members() {
		checkCtx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
		err := member.Ping(checkCtx)
		cancel()
		if err == nil {
			continue
		}

		d.log.Warn().
			Str("group", group.UUID()).
			Str("server", member.UUID()).
			Err(err).
			Msg("failure detector: missed ping")

		d.report(group, member.UUID(), reporterSelf, false)
	}
}

// ReportError injects an external report_error RPC entry: it contributes
// toward the threshold count but does not by itself mark the server FAULTY.
func (d *Detector) ReportError(group GroupView, serverUUID, reporter string) error {
	return d.report(group, serverUUID, reporter, false)
}

// ReportFailure injects an external report_failure RPC entry: it marks the
// server FAULTY immediately, bypassing the threshold check.
func (d *Detector) ReportFailure(group GroupView, serverUUID, reporter string) error {
	if err := d.errorLog.Append(ErrorLogEntry{
		GroupUUID:  group.UUID(),
		ServerUUID: serverUUID,
		Reporter:   reporter,
		At:         time.Now(),
		Failure:    true,
	}); err != nil {
		return err
	}
	return d.escalate(group, serverUUID)
}

func (d *Detector) report(group GroupView, serverUUID, reporter string, failure bool) error {
	entry := ErrorLogEntry{
		GroupUUID:  group.UUID(),
		ServerUUID: serverUUID,
		Reporter:   reporter,
		At:         time.Now(),
		Failure:    failure,
	}
	if err := d.errorLog.Append(entry); err != nil {
		return err
	}

	window, err := d.errorLog.Window(group.UUID(), serverUUID, entry.At.Add(-d.cfg.Window))
	if err != nil {
		return err
	}
	if d.exceedsThresholds(window) {
		return d.escalate(group, serverUUID)
	}
	return nil
}

// exceedsThresholds reports whether window has at least NNotifications
// distinct timestamps contributed by at least NReporters distinct reporters.
func (d *Detector) exceedsThresholds(window []ErrorLogEntry) bool {
	timestamps := make(map[time.Time]struct{})
	reporters := make(map[string]struct{})
	for _, e := range window {
		timestamps[e.At] = struct{}{}
		reporters[e.Reporter] = struct{}{}
	}
	return len(timestamps) >= d.cfg.NNotifications && len(reporters) >= d.cfg.NReporters
}

func (d *Detector) escalate(group GroupView, serverUUID string) error {
	if err := d.escalator.MarkFaulty(group.UUID(), serverUUID); err != nil {
		return err
	}
	if group.PrimaryUUID() == serverUUID {
		return d.escalator.TriggerFailover(group.UUID(), true)
	}
	return nil
}
