package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/service"
	"pagebuilder/internal/storage"
)

// Server is the HTTP surface over the document backend and the page set.
type Server struct {
	router  chi.Router
	docs    *service.Backend
	pages   *service.PageService
	conv    *adapter.Adapter
	events  http.Handler
	maxBody int64
}

// NewServer wires routes. events serves GET /ws and may be nil.
func NewServer(docs *service.Backend, pages *service.PageService, conv *adapter.Adapter, events http.Handler, maxBody int64) *Server {
	if conv == nil {
		conv = adapter.Default()
	}
	s := &Server{
		docs:    docs,
		pages:   pages,
		conv:    conv,
		events:  events,
		maxBody: maxBody,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)

	r.Get("/health", s.handleHealth)
	if s.events != nil {
		r.Handle("/ws", s.events)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limitBody)

		r.Post("/docs", s.handleCreateDoc)
		r.Get("/docs/{id}", s.handleGetDoc)
		r.Put("/docs/{id}", s.handleUpdateDoc)
		r.Post("/docs/{id}/open", s.handleOpenDoc)
		r.Delete("/docs/{id}/cache", s.handleEvictDoc)
		r.Post("/flush", s.handleFlush)

		r.Get("/pages", s.handleListPages)
		r.Get("/pages/{id}", s.handleGetPage)
		r.Delete("/pages/{id}", s.handleDeletePage)
		r.Get("/pages/{id}/roundtrip", s.handleRoundTrip)
		r.Get("/pages/{id}/history", s.handleHistory)
		r.Post("/pages/{id}/undo", s.handleUndo)

		r.Get("/project", s.handleExportProject)
		r.Put("/project", s.handleImportProject)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cached":  s.docs.Cache().Len(),
		"pending": len(s.docs.PendingIDs()),
	})
}

// ── helpers ──────────────────────────────────────────────

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("api: %s %s %d %dms [%s]", r.Method, r.URL.Path, status,
			time.Since(start).Milliseconds(), middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps service errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	jsonError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrNoCachedEntry),
		errors.Is(err, domain.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNativeEntry),
		errors.Is(err, storage.ErrNoHistory):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTree),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, adapter.ErrConversion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
