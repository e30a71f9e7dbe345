package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/pressrelay/internal/state"
)

const (
	otelScope     = "pressrelay/sync"
	spanRun       = "sync.synchronize"
	metricCreated = "pressrelay.sync.pages.created"
	metricEdited  = "pressrelay.sync.pages.edited"
	metricSkipped = "pressrelay.sync.pages.skipped"
	metricErrors  = "pressrelay.sync.errors"

	// watchDebounce collapses bursts of file events into one run.
	watchDebounce = 500 * time.Millisecond
)

// Engine runs the synchronizer against a desired page source, recording each
// run in the history store. Create one with [NewEngine]; call [Engine.RunOnce]
// for a single pass or [Engine.Watch] to keep the site in step with the
// source.
type Engine struct {
	sync    *Synchronizer
	source  DesiredSource
	history HistoryStore
	log     *slog.Logger

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer     trace.Tracer
	cntCreated metric.Int64Counter
	cntEdited  metric.Int64Counter
	cntSkipped metric.Int64Counter
	cntErrors  metric.Int64Counter
}

// NewEngine creates an Engine. history may be nil to skip run recording.
func NewEngine(s *Synchronizer, source DesiredSource, history HistoryStore, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		sync:    s,
		source:  source,
		history: history,
		log:     logger,

		tracer:     tracer,
		cntCreated: mustCounter(metricCreated, "Number of pages created during sync"),
		cntEdited:  mustCounter(metricEdited, "Number of pages edited during sync"),
		cntSkipped: mustCounter(metricSkipped, "Number of unchanged pages skipped during sync"),
		cntErrors:  mustCounter(metricErrors, "Number of failed sync runs"),
	}
}

// RunOnce loads the desired pages and synchronizes them once, recording a
// trace span, metrics and a history entry.
func (e *Engine) RunOnce(ctx context.Context) (*state.Run, error) {
	ctx, span := e.tracer.Start(ctx, spanRun)
	defer span.End()

	run := &state.Run{StartedAt: time.Now(), DryRun: e.sync.DryRun()}

	report, err := e.synchronize(ctx)
	run.FinishedAt = time.Now()
	run.Remote = report.Remote
	run.Skipped = report.Skipped
	run.Created = report.Created()
	run.Edited = report.Edited()
	run.Changes = report.Changes
	run.Status = state.RunSucceeded
	if err != nil {
		run.Status = state.RunFailed
		run.Error = err.Error()
	}

	// Counters are safe to record even when the span is a no-op.
	if n := report.Created(); n > 0 {
		e.cntCreated.Add(ctx, int64(n))
	}
	if n := report.Edited(); n > 0 {
		e.cntEdited.Add(ctx, int64(n))
	}
	if report.Skipped > 0 {
		e.cntSkipped.Add(ctx, int64(report.Skipped))
	}

	span.SetAttributes(
		attribute.Int("sync.created", report.Created()),
		attribute.Int("sync.edited", report.Edited()),
		attribute.Int("sync.skipped", report.Skipped),
		attribute.Bool("sync.dry_run", run.DryRun),
	)
	if err != nil {
		e.cntErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if e.history != nil {
		// Cancellation must not lose the record of what was applied.
		if herr := e.history.SaveRun(context.WithoutCancel(ctx), run); herr != nil {
			e.log.Warn("recording run history failed", "error", herr)
		}
	}
	return run, err
}

func (e *Engine) synchronize(ctx context.Context) (Report, error) {
	desired, err := e.source.Load()
	if err != nil {
		return Report{}, fmt.Errorf("loading desired pages: %w", err)
	}
	e.log.Debug("desired pages loaded", "pages", len(desired))
	return e.sync.Run(ctx, desired)
}

// Watch runs immediately, then again whenever something under root changes
// and every interval. It blocks until ctx is cancelled. Failed runs are
// logged and do not stop the loop. The cache is flushed after every run.
func (e *Engine) Watch(ctx context.Context, root string, interval time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	relevant, err := watchTree(watcher, root)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run an immediate first pass.
	e.runLogged(ctx, "initial")

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			e.log.Info("watch loop shutting down")
			return ctx.Err()

		case <-ticker.C:
			e.runLogged(ctx, "interval")

		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			if !relevant(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if _, err := watchTree(watcher, ev.Name); err != nil {
						e.log.Warn("watching new directory failed", "path", ev.Name, "error", err)
					}
				}
			}
			e.log.Debug("source changed", "path", ev.Name, "op", ev.Op.String())
			debounce = time.After(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			e.log.Error("file watcher error", "error", err)

		case <-debounce:
			debounce = nil
			e.runLogged(ctx, "change")
		}
	}
}

func (e *Engine) runLogged(ctx context.Context, trigger string) {
	run, err := e.RunOnce(ctx)
	e.flushCache()
	if err != nil {
		if ctx.Err() == nil {
			e.log.Error("sync run failed", "trigger", trigger, "error", err)
		}
		return
	}
	e.log.Info("sync run finished",
		"trigger", trigger,
		"created", run.Created,
		"edited", run.Edited,
		"skipped", run.Skipped,
		"duration", run.Duration().Round(time.Millisecond),
	)
}

// flushCache writes the cache after a run, including a failed one, so
// snapshots fetched so far survive a crash of a long watch session.
func (e *Engine) flushCache() {
	f, ok := e.sync.opts.Cache.(Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		e.log.Warn("saving page cache failed", "error", err)
	}
}

// watchTree adds root to w and reports which event paths matter. A
// directory is watched with all its subdirectories. A single file is watched
// through its parent directory, since editors often replace files on save.
func watchTree(w *fsnotify.Watcher, root string) (func(string) bool, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watching %q: %w", root, err)
	}
	if !info.IsDir() {
		if err := w.Add(filepath.Dir(root)); err != nil {
			return nil, fmt.Errorf("watching %q: %w", root, err)
		}
		return func(name string) bool { return filepath.Clean(name) == root }, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watching %q: %w", root, err)
	}
	return func(string) bool { return true }, nil
}
