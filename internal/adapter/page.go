package adapter

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"pagebuilder/internal/domain"
)

// Document is a whole page in editor form: page metadata beside the root entry.
type Document struct {
	ID           string       `json:"id"`
	Label        string       `json:"label"`
	Route        string       `json:"route"`
	BrowserTitle string       `json:"browserTitle,omitempty"`
	Order        int          `json:"order"`
	Root         domain.Entry `json:"root"`
}

// PageToDocument converts a canonical page. Metadata is copied as is.
func (a *Adapter) PageToDocument(p domain.Page) Document {
	return Document{
		ID:           p.ID,
		Label:        p.Label,
		Route:        p.Route,
		BrowserTitle: p.BrowserTitle,
		Order:        p.Order,
		Root:         a.ToExternal(p.Content),
	}
}

// DocumentToPage converts an editor document back into a canonical page.
func (a *Adapter) DocumentToPage(d Document) domain.Page {
	return domain.Page{
		ID:           d.ID,
		Label:        d.Label,
		Route:        d.Route,
		BrowserTitle: d.BrowserTitle,
		Order:        d.Order,
		Content:      a.ToCanonical(d.Root),
	}
}

// PagesToDocuments converts a page collection, preserving order.
func (a *Adapter) PagesToDocuments(ctx context.Context, pages []domain.Page) ([]Document, error) {
	out := make([]Document, len(pages))
	err := convertAll(ctx, len(pages), func(i int) error {
		doc, err := Safely("pageToDocument", pages[i].ID, func() Document { return a.PageToDocument(pages[i]) })
		out[i] = doc
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DocumentsToPages converts a document collection, preserving order.
func (a *Adapter) DocumentsToPages(ctx context.Context, docs []Document) ([]domain.Page, error) {
	out := make([]domain.Page, len(docs))
	err := convertAll(ctx, len(docs), func(i int) error {
		page, err := Safely("documentToPage", docs[i].ID, func() domain.Page { return a.DocumentToPage(docs[i]) })
		out[i] = page
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func convertAll(ctx context.Context, n int, fn func(i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}
