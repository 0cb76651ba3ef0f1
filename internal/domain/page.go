package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrPageNotFound = errors.New("page not found")
	ErrInvalidTree  = errors.New("invalid node tree")
)

// Page is a canonical page: metadata plus the content tree root.
type Page struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Route        string `json:"route"`
	BrowserTitle string `json:"browserTitle,omitempty"`
	Content      Node   `json:"content"`
	Order        int    `json:"order"`

	// NativeEntry is the last entry the visual editor produced for this page.
	// Editor-internal: it re-hydrates the document cache after a restart and
	// must never reach an exported project file.
	NativeEntry json.RawMessage `json:"nativeEntry,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stripped returns a copy of p without the editor-internal native entry.
func (p Page) Stripped() Page {
	p.NativeEntry = nil
	return p
}

// HasNativeEntry reports whether p carries a persisted native entry.
func (p Page) HasNativeEntry() bool {
	return len(p.NativeEntry) > 0 && string(p.NativeEntry) != "null"
}

// PageStore is the host's persistent page set.
type PageStore interface {
	ListPages() ([]Page, error)
	GetPage(id string) (*Page, error)
	SavePage(p *Page) error
	DeletePage(id string) error
	// ReplaceAll atomically swaps the whole page set (project import).
	ReplaceAll(pages []Page) error
	PageIDs() ([]string, error)
	Close() error
}
