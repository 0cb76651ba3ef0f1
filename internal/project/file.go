package project

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"

	"pagebuilder/internal/adapter"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/schema"
)

// Version is the project file format this build writes.
const Version = 1

// File is an exported project: canonical pages, optionally alongside their
// editor-form documents.
type File struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exportedAt"`
	Pages      []domain.Page      `json:"pages"`
	Documents  []adapter.Document `json:"documents,omitempty"`
}

// Build assembles an export from pages. Native entries are always stripped.
func Build(ctx context.Context, pages []domain.Page, a *adapter.Adapter, withDocuments bool) (*File, error) {
	f := &File{
		Version:    Version,
		ExportedAt: time.Now().UTC(),
		Pages:      lo.Map(pages, func(p domain.Page, _ int) domain.Page { return p.Stripped() }),
	}
	if withDocuments && a != nil {
		docs, err := a.PagesToDocuments(ctx, f.Pages)
		if err != nil {
			return nil, fmt.Errorf("build documents: %w", err)
		}
		f.Documents = docs
	}
	return f, nil
}

// CanonicalPages returns the page set the file describes. Files that carry
// only documents are converted through a.
func (f *File) CanonicalPages(ctx context.Context, a *adapter.Adapter) ([]domain.Page, error) {
	if len(f.Pages) > 0 || len(f.Documents) == 0 {
		return lo.Map(f.Pages, func(p domain.Page, _ int) domain.Page { return p.Stripped() }), nil
	}
	if a == nil {
		return nil, fmt.Errorf("project has only documents and no adapter was given")
	}
	return a.DocumentsToPages(ctx, f.Documents)
}

// Decode validates and parses a project file.
func Decode(data []byte) (*File, error) {
	if err := schema.ValidateProject(data); err != nil {
		return nil, fmt.Errorf("invalid project file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode project file: %w", err)
	}
	if f.Version > Version {
		return nil, fmt.Errorf("project file version %d is newer than supported version %d", f.Version, Version)
	}
	return &f, nil
}

// Read loads and validates the project file at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	return Decode(data)
}

// Encode writes f as indented JSON.
func Encode(w io.Writer, f *File) error {
	data, err := marshal(f)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Write stores f at path through a temp file and rename.
func Write(path string, f *File) error {
	data, err := marshal(f)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".project-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write project file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write project file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace project file: %w", err)
	}
	return nil
}

func marshal(f *File) ([]byte, error) {
	out := *f
	out.Pages = lo.Map(f.Pages, func(p domain.Page, _ int) domain.Page { return p.Stripped() })
	if out.Version == 0 {
		out.Version = Version
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode project file: %w", err)
	}
	return append(data, '\n'), nil
}
