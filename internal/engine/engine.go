package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vidforge/vidforge/internal/cache"
	"github.com/vidforge/vidforge/internal/modelark"
	"github.com/vidforge/vidforge/internal/store"
	"github.com/vidforge/vidforge/pkg/models"
)

// Coordinator states.
const (
	StateStopped = "stopped"
	StateRunning = "running"
	StatePaused  = "paused"
)

// Engine reconciles in-flight jobs against the remote generation API on a
// fixed interval. At most one tick runs at a time; a timer firing that lands
// while a tick is still running is skipped, not queued.
type Engine struct {
	store      store.Store
	ark        modelark.Client
	cache      cache.Cache
	downloader *Downloader
	interval   time.Duration

	mu         sync.Mutex
	state      string
	nextTickAt time.Time
	cancel     context.CancelFunc
	done       chan struct{}
	wake       chan struct{}
}

// New creates an Engine. Call Start to begin ticking.
func New(st store.Store, ark modelark.Client, ca cache.Cache, dl *Downloader, interval time.Duration) *Engine {
	return &Engine{
		store:      st,
		ark:        ark,
		cache:      ca,
		downloader: dl,
		interval:   interval,
		state:      StateStopped,
	}
}

// Start launches the tick loop. Starting an engine that is already running
// or paused is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateStopped {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.wake = make(chan struct{}, 1)
	e.state = StateRunning
	e.nextTickAt = time.Now().Add(e.interval)

	go e.run(ctx, e.done, e.wake)
	slog.Info("engine started", "interval", e.interval)
}

// Stop shuts the tick loop down and waits for an in-flight tick to finish.
// Downloads already launched are not awaited or cancelled; they run detached
// and may outlive the engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	e.nextTickAt = time.Time{}
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
	slog.Info("engine stopped")
}

// Resume wakes a paused engine so new work is picked up without waiting out
// a full interval. A stopped engine is started instead; a running engine
// just gets an immediate extra tick.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		e.Start()
		return
	}
	if e.state == StatePaused {
		e.state = StateRunning
		e.nextTickAt = time.Now()
	}
	wake := e.wake
	e.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

// Status is a point-in-time snapshot of the coordinator.
type Status struct {
	State      string
	NextTickAt time.Time
}

// Status reports the coordinator state. NextTickAt is zero unless running.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{State: e.state, NextTickAt: e.nextTickAt}
}

// ForceReconcile reconciles a single job immediately, outside the timer.
// Terminal jobs are left untouched. The staged update is committed on its
// own, and a download candidate, if any, launches the same way a tick
// launches them. Unlike the tick path, a transient remote failure surfaces
// to the caller.
func (e *Engine) ForceReconcile(ctx context.Context, jobID uuid.UUID) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(job.Status) {
		return nil
	}

	update, candidate, err := e.reconcileJob(ctx, job)
	if err != nil {
		return err
	}
	if update == nil {
		return nil
	}

	if err := e.store.ApplyJobUpdates(ctx, []store.JobUpdate{*update}); err != nil {
		return fmt.Errorf("committing job update: %w", err)
	}

	_ = e.cache.SetJobStatus(ctx, update.ID, cache.JobStatusEntry{Status: update.Status, Progress: update.Progress}, 30*time.Minute)

	if candidate != nil {
		e.downloader.Launch(candidate.externalID, candidate.url)
	}

	return nil
}

func (e *Engine) run(ctx context.Context, done chan<- struct{}, wake <-chan struct{}) {
	defer close(done)

	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.tick(ctx, timer)
		case <-wake:
			e.tick(ctx, timer)
		}
	}
}

// tick runs one reconciliation pass and rearms the timer. A firing that
// landed while the pass was running is drained so it cannot queue a second
// back-to-back pass.
func (e *Engine) tick(ctx context.Context, timer *time.Timer) {
	idle := e.runTick(ctx)

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return
	}

	if idle {
		e.state = StatePaused
		e.nextTickAt = time.Time{}
		slog.Info("engine paused, nothing in flight")
		return
	}

	e.state = StateRunning
	e.nextTickAt = time.Now().Add(e.interval)
	timer.Reset(e.interval)
}
