package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/project"
	"pagebuilder/internal/schema"
)

var errBadRequest = errors.New("bad request")

type updateRequest struct {
	Version int             `json:"version"`
	Entry   json.RawMessage `json:"entry"`
}

// ── Documents ──────────────────────────────────────────────

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	resp, err := s.docs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateDoc(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, err)
		return
	}
	entry, err := decodeEntry(body)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp, err := s.docs.Create(r.Context(), entry)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpdateDoc(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, badRequest("invalid request body: %v", err))
		return
	}
	entry, err := decodeEntry(req.Entry)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp, err := s.docs.Update(r.Context(), chi.URLParam(r, "id"), req.Version, entry)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpenDoc(w http.ResponseWriter, r *http.Request) {
	resp, err := s.docs.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvictDoc is the editor's crash fallback: it drops an adapter-seeded
// document so the next load starts from an empty page.
func (s *Server) handleEvictDoc(w http.ResponseWriter, r *http.Request) {
	evicted, err := s.docs.EvictCrashed(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"evicted": evicted})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	pending := s.docs.PendingIDs()
	if err := s.docs.FlushSync(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flushed": pending})
}

// ── Pages ──────────────────────────────────────────────────

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.pages.Export()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.GetPage(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page.Stripped())
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.pages.GetPage(id); err != nil {
		writeErr(w, err)
		return
	}
	s.docs.DeletePage(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoundTrip(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.GetPage(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.conv.RoundTrip(page.Content))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.pages.History(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	type item struct {
		ID        string `json:"id"`
		Label     string `json:"label"`
		CreatedAt string `json:"createdAt"`
	}
	out := make([]item, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, item{ID: snap.ID, Label: snap.Label, CreatedAt: snap.CreatedAt.Format(time.RFC3339Nano)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	page, err := s.pages.Undo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page.Stripped())
}

// ── Project ────────────────────────────────────────────────

func (s *Server) handleExportProject(w http.ResponseWriter, r *http.Request) {
	pages, err := s.pages.Export()
	if err != nil {
		writeErr(w, err)
		return
	}
	withDocs := cast.ToBool(r.URL.Query().Get("documents"))
	f, err := project.Build(r.Context(), pages, s.conv, withDocs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleImportProject(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, err)
		return
	}
	f, err := project.Decode(body)
	if err != nil {
		writeErr(w, badRequest("%v", err))
		return
	}
	pages, err := f.CanonicalPages(r.Context(), s.conv)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.pages.Import(r.Context(), pages); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": len(pages)})
}

// ── helpers ──────────────────────────────────────────────

func decodeEntry(raw []byte) (domain.Entry, error) {
	if len(raw) == 0 {
		return domain.Entry{}, badRequest("missing entry")
	}
	if err := schema.ValidateEntry(raw); err != nil {
		return domain.Entry{}, badRequest("invalid entry: %v", err)
	}
	var entry domain.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.Entry{}, badRequest("invalid entry: %v", err)
	}
	return entry, nil
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}
