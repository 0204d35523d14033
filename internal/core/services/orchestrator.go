package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rtctester/internal/core/domain"
	"rtctester/internal/core/ports"
	"rtctester/internal/core/stats"

	"go.uber.org/zap"
)

// RunState is the orchestrator lifecycle.
type RunState int32

const (
	RunStateRunning RunState = iota
	RunStateStopping
	RunStateStopped
)

func (s RunState) String() string {
	switch s {
	case RunStateRunning:
		return "running"
	case RunStateStopping:
		return "stopping"
	case RunStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Trigger names what ended a run.
type Trigger int

const (
	TriggerLifetime Trigger = iota
	TriggerInterrupt
	TriggerCompletion
)

func (t Trigger) String() string {
	switch t {
	case TriggerLifetime:
		return "lifetime"
	case TriggerInterrupt:
		return "interrupt"
	case TriggerCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// DefaultReportInterval replaces a non-positive RunOptions.ReportInterval.
const DefaultReportInterval = 5 * time.Second

// RunOptions describes one load-test run.
type RunOptions struct {
	Target             string
	Clients            int
	ConnectionInterval time.Duration
	ReportInterval     time.Duration
	Lifetime           time.Duration // 0 runs until interrupted
	StopOnCompletion   bool
}

// Orchestrator drives a fleet through a run: periodic summaries while it is
// running and exactly one shutdown with a final report.
type Orchestrator struct {
	fleet     *Fleet
	writer    ports.ReportWriter
	observers []ports.ReportObserver
	opts      RunOptions
	logger    *zap.SugaredLogger
	now       func() time.Time

	state    atomic.Int32
	trigger  atomic.Int32
	printMu  sync.Mutex
	finished chan struct{}
}

func NewOrchestrator(fleet *Fleet, writer ports.ReportWriter, opts RunOptions, logger *zap.SugaredLogger, observers ...ports.ReportObserver) *Orchestrator {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = DefaultReportInterval
	}
	return &Orchestrator{
		fleet:     fleet,
		writer:    writer,
		observers: observers,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		finished:  make(chan struct{}),
	}
}

func (o *Orchestrator) State() RunState {
	return RunState(o.state.Load())
}

// Trigger reports what ended the run. Only meaningful once State is not Running.
func (o *Orchestrator) Trigger() Trigger {
	return Trigger(o.trigger.Load())
}

// Finished is closed after the final report has been written.
func (o *Orchestrator) Finished() <-chan struct{} {
	return o.finished
}

// Run starts the fleet, prints a first summary right away and blocks until the
// run has shut down and the final report has been written. Cancelling ctx is
// treated as an interrupt; clients are stopped by the shutdown, not by ctx.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.fleet.Start(context.WithoutCancel(ctx), o.opts.Target, o.opts.Clients, o.opts.ConnectionInterval); err != nil {
		return err
	}
	o.logger.Infow("test started",
		"target", o.opts.Target,
		"clients", o.opts.Clients,
		"connection_interval", o.opts.ConnectionInterval,
		"report_interval", o.opts.ReportInterval,
		"lifetime", o.opts.Lifetime,
	)

	o.periodic(ctx)
	ticker := time.NewTicker(o.opts.ReportInterval)
	defer ticker.Stop()

	var lifetime <-chan time.Time
	if o.opts.Lifetime > 0 {
		t := time.NewTimer(o.opts.Lifetime)
		defer t.Stop()
		lifetime = t.C
	}

	interrupt := ctx.Done()
	for {
		select {
		case <-interrupt:
			interrupt = nil
			o.Shutdown(ctx, TriggerInterrupt)
		case <-lifetime:
			lifetime = nil
			o.Shutdown(ctx, TriggerLifetime)
		case <-ticker.C:
			o.periodic(ctx)
			if o.opts.StopOnCompletion && o.fleet.AllTerminal() {
				o.Shutdown(ctx, TriggerCompletion)
			}
		case <-o.finished:
			return nil
		}
	}
}

// Shutdown stops every client and writes the final report. Only the first call
// does anything; it returns false for every later call. Concurrent callers
// return once the first has started, not once it has finished: wait on Finished
// for that.
func (o *Orchestrator) Shutdown(ctx context.Context, trigger Trigger) bool {
	if !o.state.CompareAndSwap(int32(RunStateRunning), int32(RunStateStopping)) {
		return false
	}
	o.trigger.Store(int32(trigger))

	switch trigger {
	case TriggerLifetime:
		o.logger.Infow("test ended", "lifetime_seconds", o.opts.Lifetime.Seconds())
	case TriggerInterrupt:
		o.logger.Infow("test stopped by user")
	case TriggerCompletion:
		o.logger.Infow("test ended, every client has finished")
	}

	o.fleet.StopAll()

	snaps := o.fleet.SnapshotAll()
	report := stats.BuildReport(snaps, o.now())
	report.Final = true

	o.printMu.Lock()
	if err := o.writer.Final(report); err != nil {
		o.logger.Warnw("failed to write final report", "error", err)
	}
	for _, c := range o.fleet.Clients() {
		if err := c.Report(o.writer); err != nil {
			o.logger.Warnw("failed to write client report", "client", c.Name(), "error", err)
		}
	}
	o.printMu.Unlock()
	o.notify(context.WithoutCancel(ctx), report)

	o.state.Store(int32(RunStateStopped))
	close(o.finished)
	return true
}

func (o *Orchestrator) periodic(ctx context.Context) {
	snaps := o.fleet.SnapshotAll()
	report := stats.BuildReport(snaps, o.now())

	o.printMu.Lock()
	if o.State() != RunStateRunning {
		o.printMu.Unlock()
		return
	}
	if err := o.writer.Summary(report); err != nil {
		o.logger.Warnw("failed to write summary", "error", err)
	}
	o.printMu.Unlock()
	o.notify(ctx, report)
}

func (o *Orchestrator) notify(ctx context.Context, report stats.AggregateReport) {
	for _, obs := range o.observers {
		obs.ObserveReport(ctx, report)
	}
}

// Snapshot returns the current aggregate without printing it.
func (o *Orchestrator) Snapshot() (stats.AggregateReport, []domain.ClientSnapshot) {
	snaps := o.fleet.SnapshotAll()
	return stats.BuildReport(snaps, o.now()), snaps
}
