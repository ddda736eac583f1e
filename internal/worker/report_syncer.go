// Package worker keeps the configured report sink in step with the ledger.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"debtbook/internal/amqp"
	"debtbook/internal/log"
	"debtbook/internal/metrics"
	"debtbook/internal/sheets"
)

// Sync triggers, used as metric labels.
const (
	TriggerStartup = "startup"
	TriggerEvent   = "event"
	TriggerResync  = "resync"
	TriggerManual  = "manual"
)

const stopTimeout = 10 * time.Second

// ReportSyncer writes fresh report snapshots to a sink. Concurrent requests
// share one snapshot as long as it was taken after they were made.
type ReportSyncer struct {
	source   sheets.ReportSource
	sink     sheets.ReportWriter
	interval time.Duration
	logger   *log.Logger

	group     singleflight.Group
	requested atomic.Uint64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type syncResult struct {
	ref string
	gen uint64
}

// NewReportSyncer creates a syncer. An interval of zero disables the
// periodic resync.
func NewReportSyncer(source sheets.ReportSource, sink sheets.ReportWriter, interval time.Duration, logger *log.Logger) *ReportSyncer {
	if logger == nil {
		logger = log.Nop()
	}
	return &ReportSyncer{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Sync writes a snapshot that includes every write committed before the call.
func (w *ReportSyncer) Sync(ctx context.Context, trigger string) (string, error) {
	want := w.requested.Add(1)
	for {
		v, err, _ := w.group.Do("report", func() (any, error) {
			return w.syncOnce(ctx, trigger)
		})
		if err != nil {
			return "", err
		}
		res := v.(syncResult)
		if res.gen >= want {
			return res.ref, nil
		}
	}
}

func (w *ReportSyncer) syncOnce(ctx context.Context, trigger string) (syncResult, error) {
	gen := w.requested.Load()
	start := time.Now()

	rep, err := w.source.Snapshot(ctx)
	if err != nil {
		metrics.ReportSyncs.WithLabelValues(trigger, metrics.OutcomeError).Inc()
		return syncResult{}, fmt.Errorf("snapshot: %w", err)
	}

	ref, err := w.sink.WriteReport(ctx, rep)
	metrics.ReportSyncs.WithLabelValues(trigger, metrics.Outcome(err)).Inc()
	if err != nil {
		return syncResult{}, fmt.Errorf("write report: %w", err)
	}

	log.FromContextOr(ctx, w.logger).InfoContext(ctx, "Report synced",
		"trigger", trigger,
		log.FieldReportRef, ref,
		log.FieldAmountCents, rep.GrandTotal.Cents,
		log.FieldDuration, time.Since(start).Milliseconds())

	return syncResult{ref: ref, gen: gen}, nil
}

// HandleLedgerEvent is the amqp.EventHandler for the ledger queue.
func (w *ReportSyncer) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	logger := w.logger.With(log.FieldEventID, ev.ID.String(), log.FieldEventKind, string(ev.Kind))
	ctx = log.WithLogger(ctx, logger)
	logger.DebugContext(ctx, "Processing ledger event")

	if _, err := w.Sync(ctx, TriggerEvent); err != nil {
		return fmt.Errorf("sync after %s: %w", ev.Kind, err)
	}
	return nil
}

// Start syncs once and then resyncs on every interval tick. Returns an error
// if already running.
func (w *ReportSyncer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("report syncer is already running")
	}
	w.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	w.stopCh, w.doneCh = stopCh, doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	w.logger.InfoContext(ctx, "Report syncer started", "resync_interval", w.interval)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (w *ReportSyncer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Report syncer stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Report syncer stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the loop is active
func (w *ReportSyncer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Run starts the loop and blocks until ctx is cancelled.
func (w *ReportSyncer) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return w.Stop(stopCtx)
}

// runLoop owns the channels it was started with; a later Start replaces the
// struct fields without affecting it.
func (w *ReportSyncer) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	w.syncLogged(ctx, TriggerStartup)

	if w.interval <= 0 {
		select {
		case <-ctx.Done():
		case <-stopCh:
		}
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.syncLogged(ctx, TriggerResync)
		}
	}
}

func (w *ReportSyncer) syncLogged(ctx context.Context, trigger string) {
	if _, err := w.Sync(ctx, trigger); err != nil && ctx.Err() == nil {
		w.logger.LogError(ctx, "Report sync failed", err, log.OpSync, log.ErrorTypeNetwork,
			log.NewFields().With("trigger", trigger))
	}
}
