package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"pagebuilder/internal/domain"
)

// MaxSnapshots is how many history entries are kept per page.
const MaxSnapshots = 40

var ErrNoHistory = errors.New("no history")

// Snapshot is a saved earlier version of a page.
type Snapshot struct {
	ID        string      `json:"id"`
	PageID    string      `json:"pageId"`
	Label     string      `json:"label"`
	Page      domain.Page `json:"page"`
	CreatedAt time.Time   `json:"createdAt"`
}

// History records page versions for undo. Snapshot ids are ULIDs, so they
// sort in creation order.
type History interface {
	PushSnapshot(pageID, label string, page domain.Page) (*Snapshot, error)
	// PopSnapshot removes and returns the newest snapshot, or ErrNoHistory.
	PopSnapshot(pageID string) (*Snapshot, error)
	ListSnapshots(pageID string) ([]Snapshot, error)
	ClearHistory(pageID string) error
}

// HistoryStore keeps page history in SQL.
type HistoryStore struct {
	db *DB
}

func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) PushSnapshot(pageID, label string, page domain.Page) (*Snapshot, error) {
	data, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	snap := &Snapshot{
		ID:        ulid.Make().String(),
		PageID:    pageID,
		Label:     label,
		Page:      page,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.conn.Exec(
		s.db.q(`INSERT INTO page_history (id, page_id, label, snapshot_json, created_at) VALUES (?, ?, ?, ?, ?)`),
		snap.ID, pageID, label, string(data), snap.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	s.pruneIfNeeded(pageID, MaxSnapshots)
	return snap, nil
}

func (s *HistoryStore) PopSnapshot(pageID string) (*Snapshot, error) {
	row := s.db.conn.QueryRow(
		s.db.q(`SELECT id, page_id, label, snapshot_json, created_at FROM page_history
		 WHERE page_id = ? ORDER BY id DESC LIMIT 1`), pageID,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("undo %s: %w", pageID, ErrNoHistory)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.db.conn.Exec(s.db.q(`DELETE FROM page_history WHERE id = ?`), snap.ID); err != nil {
		return nil, fmt.Errorf("delete snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns the page's history, newest first.
func (s *HistoryStore) ListSnapshots(pageID string) ([]Snapshot, error) {
	rows, err := s.db.conn.Query(
		s.db.q(`SELECT id, page_id, label, snapshot_json, created_at FROM page_history
		 WHERE page_id = ? ORDER BY id DESC`), pageID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func (s *HistoryStore) ClearHistory(pageID string) error {
	_, err := s.db.conn.Exec(s.db.q(`DELETE FROM page_history WHERE page_id = ?`), pageID)
	return err
}

// pruneIfNeeded removes the oldest snapshots beyond maxSnapshots.
func (s *HistoryStore) pruneIfNeeded(pageID string, maxSnapshots int) {
	var count int
	if err := s.db.conn.QueryRow(s.db.q(`SELECT COUNT(*) FROM page_history WHERE page_id = ?`), pageID).Scan(&count); err != nil {
		return
	}
	if count <= maxSnapshots {
		return
	}

	// Collect ids first, close rows before any writes
	rows, err := s.db.conn.Query(
		s.db.q(`SELECT id FROM page_history WHERE page_id = ? ORDER BY id ASC LIMIT ?`), pageID, count-maxSnapshots,
	)
	if err != nil {
		return
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.db.conn.Exec(s.db.q(`DELETE FROM page_history WHERE id = ?`), id); err != nil {
			log.Printf("storage: prune snapshot %s: %v", id, err)
		}
	}
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var (
		snap Snapshot
		data string
	)
	if err := row.Scan(&snap.ID, &snap.PageID, &snap.Label, &data, &snap.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &snap.Page); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}
