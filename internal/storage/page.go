package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pagebuilder/internal/domain"
)

const pageColumns = `id, label, route, browser_title, sort_order, content_json, native_entry, created_at, updated_at`

// PageStore persists canonical pages in SQL.
type PageStore struct {
	db *DB
}

func NewPageStore(db *DB) *PageStore {
	return &PageStore{db: db}
}

func (s *PageStore) ListPages() ([]domain.Page, error) {
	rows, err := s.db.conn.Query(`SELECT ` + pageColumns + ` FROM pages ORDER BY sort_order ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

func (s *PageStore) GetPage(id string) (*domain.Page, error) {
	row := s.db.conn.QueryRow(s.db.q(`SELECT `+pageColumns+` FROM pages WHERE id = ?`), id)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get page %s: %w", id, domain.ErrPageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, err)
	}
	return p, nil
}

// SavePage inserts or updates p. CreatedAt is kept from the first insert.
func (s *PageStore) SavePage(p *domain.Page) error {
	return s.savePage(s.db.conn, p)
}

func (s *PageStore) DeletePage(id string) error {
	res, err := s.db.conn.Exec(s.db.q(`DELETE FROM pages WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete page %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete page %s: %w", id, domain.ErrPageNotFound)
	}
	_, err = s.db.conn.Exec(s.db.q(`DELETE FROM page_history WHERE page_id = ?`), id)
	return err
}

// ReplaceAll swaps the whole page set in one transaction and drops history,
// which would otherwise point at pages that were replaced.
func (s *PageStore) ReplaceAll(pages []domain.Page) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM page_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM pages`); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	for i := range pages {
		if err := s.savePage(tx, &pages[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PageStore) PageIDs() ([]string, error) {
	rows, err := s.db.conn.Query(`SELECT id FROM pages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list page ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ── helpers ────────────────────────────────────────────────

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *PageStore) savePage(ex execer, p *domain.Page) error {
	if p.ID == "" {
		return fmt.Errorf("save page: %w: missing id", domain.ErrInvalidTree)
	}
	content, err := json.Marshal(p.Content)
	if err != nil {
		return fmt.Errorf("encode page %s: %w", p.ID, err)
	}
	native := ""
	if p.HasNativeEntry() {
		native = string(p.NativeEntry)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err = ex.Exec(s.db.q(s.upsertPageSQL()),
		p.ID, p.Label, p.Route, p.BrowserTitle, p.Order, string(content), native, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save page %s: %w", p.ID, err)
	}
	return nil
}

func (s *PageStore) upsertPageSQL() string {
	insert := `INSERT INTO pages (` + pageColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.db.dialect.name == "mysql" {
		return insert + ` ON DUPLICATE KEY UPDATE
			label = VALUES(label), route = VALUES(route), browser_title = VALUES(browser_title),
			sort_order = VALUES(sort_order), content_json = VALUES(content_json),
			native_entry = VALUES(native_entry), updated_at = VALUES(updated_at)`
	}
	return insert + ` ON CONFLICT (id) DO UPDATE SET
		label = excluded.label, route = excluded.route, browser_title = excluded.browser_title,
		sort_order = excluded.sort_order, content_json = excluded.content_json,
		native_entry = excluded.native_entry, updated_at = excluded.updated_at`
}

func scanPage(row scanner) (*domain.Page, error) {
	var (
		p       domain.Page
		content string
		native  string
	)
	if err := row.Scan(&p.ID, &p.Label, &p.Route, &p.BrowserTitle, &p.Order, &content, &native, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(content), &p.Content); err != nil {
		return nil, fmt.Errorf("decode page %s: %w", p.ID, err)
	}
	if native != "" {
		p.NativeEntry = json.RawMessage(native)
	}
	return &p, nil
}
