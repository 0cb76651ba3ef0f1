package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/api"
	"pagebuilder/internal/config"
	"pagebuilder/internal/events"
	mcpserver "pagebuilder/internal/mcp"
	"pagebuilder/internal/project"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

// App wires storage, services and transports for one process.
type App struct {
	cfg config.Config

	store   storage.Store
	adapter *adapter.Adapter
	hub     *events.Hub
	pages   *service.PageService
	docs    *service.Backend

	autosave *service.Autosaver
	watcher  *project.Watcher
}

// noopEmitter is used when no websocket hub is attached (CLI commands).
type noopEmitter struct{}

func (noopEmitter) Emit(_ context.Context, _ string, _ any) {}

// Option customizes New.
type Option func(*options)

type options struct {
	withHub bool
}

// WithEventHub attaches a websocket hub that receives host events.
func WithEventHub() Option {
	return func(o *options) { o.withHub = true }
}

// New opens the store and wires services. Nothing runs until Start.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.Open(cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{
		cfg:     cfg,
		store:   store,
		adapter: adapter.Default(adapter.WithBreakpoints(cfg.Breakpoints)),
	}

	var emitter service.EventEmitter = noopEmitter{}
	if o.withHub {
		a.hub = events.NewHub(events.DefaultSettings())
		emitter = a.hub
	}

	a.pages = service.NewPageService(store, emitter)
	a.docs, err = service.NewBackend(service.BackendConfig{
		Converter: a.adapter,
		Pages:     a.pages,
		Host:      service.MultiHost{a.pages, service.EmitterHost{Emitter: emitter}},
		Debounce:  cfg.Debounce,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create backend: %w", err)
	}
	a.pages.Attach(a.docs)

	if cfg.AutosaveEnabled() {
		a.autosave = service.NewAutosaver(cfg.Autosave, a.docs, a.pages, emitter)
	}
	if cfg.ProjectFile != "" {
		a.watcher = project.NewWatcher(cfg.ProjectFile, a.adapter, a.pages, project.DefaultSettle)
	}
	return a, nil
}

func (a *App) Pages() *service.PageService { return a.pages }
func (a *App) Docs() *service.Backend      { return a.docs }
func (a *App) Adapter() *adapter.Adapter   { return a.adapter }

// Start launches background jobs: the autosave schedule and the project
// file watcher.
func (a *App) Start(ctx context.Context) error {
	if a.autosave != nil {
		if err := a.autosave.Start(); err != nil {
			return err
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown pushes pending edits to the store and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.autosave != nil {
		if err := a.autosave.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final autosave: %w", err))
		}
	} else {
		if err := a.docs.FlushSync(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush: %w", err))
		}
		if _, err := a.pages.IncrementalSave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save: %w", err))
		}
	}
	if err := a.docs.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Handler returns the HTTP API, with the event socket when a hub is attached.
func (a *App) Handler() http.Handler {
	var ws http.Handler
	if a.hub != nil {
		ws = a.hub
	}
	return api.NewServer(a.docs, a.pages, a.adapter, ws, a.cfg.MaxBodyBytes)
}

// ServeHTTP runs the HTTP API until ctx is done, then shuts down gracefully.
func (a *App) ServeHTTP(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("app: listening on %s (store %s)", a.cfg.HTTPAddr, a.cfg.StoreDSN)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if a.hub != nil {
		a.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("app: http shutdown: %v", err)
	}
	return errors.Join(serveErr, a.Shutdown(shutdownCtx))
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func (a *App) ServeMCP(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	var emitter service.EventEmitter = noopEmitter{}
	if a.hub != nil {
		emitter = a.hub
	}
	srv := mcpserver.New(mcpserver.Deps{
		Emitter: emitter,
		Docs:    a.docs,
		Pages:   a.pages,
		Adapter: a.adapter,
	})
	serveErr := srv.ServeStdio()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return errors.Join(serveErr, a.Shutdown(shutdownCtx))
}
