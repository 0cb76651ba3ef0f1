package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultAutosaveSpec is how often pending edits are flushed and saved.
const DefaultAutosaveSpec = "@every 30s"

var ErrAutosaveRunning = errors.New("autosave already running")

// Autosaver periodically flushes pending editor notifications and writes
// native documents back onto their pages. Runs never overlap.
type Autosaver struct {
	spec    string
	docs    *Backend
	pages   *PageService
	emitter EventEmitter
	timeout time.Duration

	guard saveGuard

	mu    sync.Mutex
	sched *cron.Cron
}

// NewAutosaver creates an Autosaver. An empty spec means DefaultAutosaveSpec.
func NewAutosaver(spec string, docs *Backend, pages *PageService, emitter EventEmitter) *Autosaver {
	if spec == "" {
		spec = DefaultAutosaveSpec
	}
	if emitter == nil {
		emitter = &MockEmitter{}
	}
	return &Autosaver{
		spec:    spec,
		docs:    docs,
		pages:   pages,
		emitter: emitter,
		timeout: 30 * time.Second,
	}
}

// Start schedules autosave runs.
func (a *Autosaver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sched != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(a.spec, func() {
		if _, err := a.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrAutosaveRunning) {
			log.Printf("autosave: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("autosave: invalid schedule %q: %w", a.spec, err)
	}
	c.Start()
	a.sched = c
	log.Printf("autosave: scheduled %s", a.spec)
	return nil
}

// RunOnce flushes pending notifications, waits for the host to persist
// them, then saves native documents. It returns the number of pages written.
func (a *Autosaver) RunOnce(ctx context.Context) (int, error) {
	if !a.guard.acquire() {
		return 0, ErrAutosaveRunning
	}
	defer a.guard.release()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.docs.FlushSync(ctx); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	n, err := a.pages.IncrementalSave(ctx)
	if err != nil {
		return n, fmt.Errorf("incremental save: %w", err)
	}
	if n > 0 {
		log.Printf("autosave: wrote %d page(s)", n)
		a.emitter.Emit(ctx, "autosave:completed", map[string]int{"pages": n})
	}
	return n, nil
}

// Stop cancels the schedule, waits for an in-flight run and does a final save.
func (a *Autosaver) Stop(ctx context.Context) error {
	a.mu.Lock()
	sched := a.sched
	a.sched = nil
	a.mu.Unlock()

	if sched != nil {
		stopped := sched.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	a.guard.wait(ctx)

	_, err := a.RunOnce(ctx)
	return err
}

// saveGuard lets one autosave run at a time. idle is closed while no run is
// active, so Stop can wait for the one in flight.
type saveGuard struct {
	mu   sync.Mutex
	idle chan struct{}
}

func (g *saveGuard) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busyLocked() {
		return false
	}
	g.idle = make(chan struct{})
	return true
}

func (g *saveGuard) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.idle)
}

func (g *saveGuard) busyLocked() bool {
	if g.idle == nil {
		return false
	}
	select {
	case <-g.idle:
		return false
	default:
		return true
	}
}

func (g *saveGuard) wait(ctx context.Context) {
	g.mu.Lock()
	idle := g.idle
	g.mu.Unlock()
	if idle == nil {
		return
	}
	select {
	case <-idle:
	case <-ctx.Done():
	}
}
