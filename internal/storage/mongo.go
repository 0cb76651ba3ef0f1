package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"pagebuilder/internal/domain"
)

const mongoTimeout = 10 * time.Second

// MongoStore keeps pages and their history in two MongoDB collections.
// Trees are stored as JSON strings so props decode exactly as they do from SQL.
type MongoStore struct {
	client  *mongo.Client
	pages   *mongo.Collection
	history *mongo.Collection
}

type pageDoc struct {
	ID           string    `bson:"_id"`
	Label        string    `bson:"label"`
	Route        string    `bson:"route"`
	BrowserTitle string    `bson:"browser_title"`
	Order        int       `bson:"sort_order"`
	ContentJSON  string    `bson:"content_json"`
	NativeEntry  string    `bson:"native_entry"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type snapshotDoc struct {
	ID           string    `bson:"_id"`
	PageID       string    `bson:"page_id"`
	Label        string    `bson:"label"`
	SnapshotJSON string    `bson:"snapshot_json"`
	CreatedAt    time.Time `bson:"created_at"`
}

// NewMongoStore connects to uri and uses database dbName.
func NewMongoStore(uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:  client,
		pages:   db.Collection("pages"),
		history: db.Collection("page_history"),
	}
	_, err = s.history.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "page_id", Value: 1}}})
	if err != nil {
		log.Printf("storage: mongo history index: %v", err)
	}
	return s, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ── Pages ──────────────────────────────────────────────────

func (s *MongoStore) ListPages() ([]domain.Page, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.pages.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	var docs []pageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	pages := make([]domain.Page, 0, len(docs))
	for _, d := range docs {
		p, err := d.page()
		if err != nil {
			return nil, err
		}
		pages = append(pages, *p)
	}
	return pages, nil
}

func (s *MongoStore) GetPage(id string) (*domain.Page, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	var d pageDoc
	err := s.pages.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("get page %s: %w", id, domain.ErrPageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, err)
	}
	return d.page()
}

func (s *MongoStore) SavePage(p *domain.Page) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	d, err := newPageDoc(p)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M{
			"label":         d.Label,
			"route":         d.Route,
			"browser_title": d.BrowserTitle,
			"sort_order":    d.Order,
			"content_json":  d.ContentJSON,
			"native_entry":  d.NativeEntry,
			"updated_at":    d.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": d.CreatedAt},
	}
	_, err = s.pages.UpdateOne(ctx, bson.M{"_id": p.ID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save page %s: %w", p.ID, err)
	}
	return nil
}

func (s *MongoStore) DeletePage(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	res, err := s.pages.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete page %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete page %s: %w", id, domain.ErrPageNotFound)
	}
	_, err = s.history.DeleteMany(ctx, bson.M{"page_id": id})
	return err
}

// ReplaceAll swaps the page set. MongoDB transactions need a replica set,
// so this runs as delete-then-insert.
func (s *MongoStore) ReplaceAll(pages []domain.Page) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	if _, err := s.history.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	if _, err := s.pages.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	if len(pages) == 0 {
		return nil
	}
	docs := make([]pageDoc, 0, len(pages))
	for i := range pages {
		d, err := newPageDoc(&pages[i])
		if err != nil {
			return err
		}
		docs = append(docs, *d)
	}
	if _, err := s.pages.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert pages: %w", err)
	}
	return nil
}

func (s *MongoStore) PageIDs() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.pages.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list page ids: %w", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// ── History ────────────────────────────────────────────────

func (s *MongoStore) PushSnapshot(pageID, label string, page domain.Page) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

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
	_, err = s.history.InsertOne(ctx, snapshotDoc{
		ID:           snap.ID,
		PageID:       pageID,
		Label:        label,
		SnapshotJSON: string(data),
		CreatedAt:    snap.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	s.prune(ctx, pageID)
	return snap, nil
}

func (s *MongoStore) PopSnapshot(pageID string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	var d snapshotDoc
	opts := options.FindOneAndDelete().SetSort(bson.D{{Key: "_id", Value: -1}})
	err := s.history.FindOneAndDelete(ctx, bson.M{"page_id": pageID}, opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("undo %s: %w", pageID, ErrNoHistory)
	}
	if err != nil {
		return nil, fmt.Errorf("pop snapshot: %w", err)
	}
	return d.snapshot()
}

func (s *MongoStore) ListSnapshots(pageID string) ([]Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cursor, err := s.history.Find(ctx, bson.M{"page_id": pageID}, opts)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	var docs []snapshotDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	snaps := make([]Snapshot, 0, len(docs))
	for _, d := range docs {
		snap, err := d.snapshot()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

func (s *MongoStore) ClearHistory(pageID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	_, err := s.history.DeleteMany(ctx, bson.M{"page_id": pageID})
	return err
}

func (s *MongoStore) prune(ctx context.Context, pageID string) {
	count, err := s.history.CountDocuments(ctx, bson.M{"page_id": pageID})
	if err != nil || count <= MaxSnapshots {
		return
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(count - MaxSnapshots).
		SetProjection(bson.M{"_id": 1})
	cursor, err := s.history.Find(ctx, bson.M{"page_id": pageID}, opts)
	if err != nil {
		return
	}
	var old []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &old); err != nil {
		return
	}
	ids := make([]string, len(old))
	for i, o := range old {
		ids[i] = o.ID
	}
	if _, err := s.history.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		log.Printf("storage: prune mongo history for %s: %v", pageID, err)
	}
}

// ── helpers ────────────────────────────────────────────────

func newPageDoc(p *domain.Page) (*pageDoc, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("save page: %w: missing id", domain.ErrInvalidTree)
	}
	content, err := json.Marshal(p.Content)
	if err != nil {
		return nil, fmt.Errorf("encode page %s: %w", p.ID, err)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	d := &pageDoc{
		ID:           p.ID,
		Label:        p.Label,
		Route:        p.Route,
		BrowserTitle: p.BrowserTitle,
		Order:        p.Order,
		ContentJSON:  string(content),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.HasNativeEntry() {
		d.NativeEntry = string(p.NativeEntry)
	}
	return d, nil
}

func (d pageDoc) page() (*domain.Page, error) {
	p := &domain.Page{
		ID:           d.ID,
		Label:        d.Label,
		Route:        d.Route,
		BrowserTitle: d.BrowserTitle,
		Order:        d.Order,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(d.ContentJSON), &p.Content); err != nil {
		return nil, fmt.Errorf("decode page %s: %w", d.ID, err)
	}
	if d.NativeEntry != "" {
		p.NativeEntry = json.RawMessage(d.NativeEntry)
	}
	return p, nil
}

func (d snapshotDoc) snapshot() (*Snapshot, error) {
	snap := &Snapshot{ID: d.ID, PageID: d.PageID, Label: d.Label, CreatedAt: d.CreatedAt}
	if err := json.Unmarshal([]byte(d.SnapshotJSON), &snap.Page); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", d.ID, err)
	}
	return snap, nil
}
