package service

import (
	"context"
	"sync"

	"pagebuilder/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from the push transport
// ─────────────────────────────────────────────────────────────

// Events pushed to connected hosts.
const (
	EventPageChanged = "page:changed"
	EventPageDeleted = "page:deleted"
	EventCacheReset  = "cache:reset"
)

// EventEmitter pushes events to whoever is listening for host updates.
// The websocket hub implements this; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// Debounced notifications emit from timer goroutines, so access is locked.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Recorded returns a copy of the events emitted so far.
func (m *MockEmitter) Recorded() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}

// Named returns the recorded events with the given name.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	var out []EmittedEvent
	for _, e := range m.Recorded() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────
// Host callbacks
// ─────────────────────────────────────────────────────────────

// Host receives canonical pages produced from editor edits.
type Host interface {
	OnPageChange(ctx context.Context, pageID string, page domain.Page)
}

// PageDeleter is optionally implemented by a Host that wants delete hooks.
type PageDeleter interface {
	OnPageDelete(ctx context.Context, pageID string)
}

// HostFuncs adapts plain functions to Host and PageDeleter.
type HostFuncs struct {
	Change func(ctx context.Context, pageID string, page domain.Page)
	Delete func(ctx context.Context, pageID string)
}

func (h HostFuncs) OnPageChange(ctx context.Context, pageID string, page domain.Page) {
	if h.Change != nil {
		h.Change(ctx, pageID, page)
	}
}

func (h HostFuncs) OnPageDelete(ctx context.Context, pageID string) {
	if h.Delete != nil {
		h.Delete(ctx, pageID)
	}
}

// PageChange is the payload of EventPageChanged.
type PageChange struct {
	PageID string      `json:"pageId"`
	Page   domain.Page `json:"page"`
}

// EmitterHost forwards host callbacks as events.
type EmitterHost struct {
	Emitter EventEmitter
}

func (h EmitterHost) OnPageChange(ctx context.Context, pageID string, page domain.Page) {
	h.Emitter.Emit(ctx, EventPageChanged, PageChange{PageID: pageID, Page: page.Stripped()})
}

func (h EmitterHost) OnPageDelete(ctx context.Context, pageID string) {
	h.Emitter.Emit(ctx, EventPageDeleted, map[string]string{"pageId": pageID})
}

// MultiHost fans callbacks out to several hosts in order.
type MultiHost []Host

func (m MultiHost) OnPageChange(ctx context.Context, pageID string, page domain.Page) {
	for _, h := range m {
		h.OnPageChange(ctx, pageID, page)
	}
}

func (m MultiHost) OnPageDelete(ctx context.Context, pageID string) {
	for _, h := range m {
		if d, ok := h.(PageDeleter); ok {
			d.OnPageDelete(ctx, pageID)
		}
	}
}
