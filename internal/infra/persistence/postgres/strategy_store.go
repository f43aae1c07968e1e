package postgres

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibetrade/studio/internal/domain/slots"
	"github.com/vibetrade/studio/internal/domain/strategystore"
	"github.com/vibetrade/studio/internal/domain/timestamp"
)

// StrategyStore persists strategy documents in the strategies table.
type StrategyStore struct {
	pool *pgxpool.Pool
	now  func() string
}

// NewStrategyStore constructs a StrategyStore backed by the provided pgx pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{
		pool: pool,
		now:  timestamp.Now,
	}
}

func (s *StrategyStore) ensurePool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("strategy store: nil pool")
	}
	return s.pool, nil
}

// attachmentDoc mirrors strategystore.Attachment. Decoding through the typed
// struct drops legacy keys older documents carried, notably "order".
type attachmentDoc struct {
	CardID         string     `json:"card_id"`
	Role           string     `json:"role"`
	Enabled        bool       `json:"enabled"`
	Overrides      slots.Tree `json:"overrides,omitempty"`
	FollowLatest   bool       `json:"follow_latest"`
	CardRevisionID string     `json:"card_revision_id,omitempty"`
}

type strategyDoc struct {
	OwnerID     string          `json:"owner_id,omitempty"`
	ThreadID    string          `json:"thread_id,omitempty"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Universe    []string        `json:"universe"`
	Attachments []attachmentDoc `json:"attachments"`
	Version     int             `json:"version"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

func encodeStrategy(strategy *strategystore.Strategy) ([]byte, error) {
	doc := strategyDoc{
		OwnerID:     strategy.OwnerID,
		ThreadID:    strategy.ThreadID,
		Name:        strategy.Name,
		Status:      strategy.Status,
		Universe:    strategy.Universe,
		Attachments: make([]attachmentDoc, len(strategy.Attachments)),
		Version:     strategy.Version,
		CreatedAt:   strategy.CreatedAt,
		UpdatedAt:   strategy.UpdatedAt,
	}
	for i, att := range strategy.Attachments {
		doc.Attachments[i] = attachmentDoc{
			CardID:         att.CardID,
			Role:           att.Role,
			Enabled:        att.Enabled,
			Overrides:      att.Overrides,
			FollowLatest:   att.FollowLatest,
			CardRevisionID: att.CardRevisionID,
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("strategy store: encode doc: %w", err)
	}
	return raw, nil
}

func decodeStrategy(id string, raw []byte) (*strategystore.Strategy, error) {
	var doc strategyDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("strategy store: decode doc %s: %w", id, err)
	}
	strategy := &strategystore.Strategy{
		ID:          id,
		OwnerID:     doc.OwnerID,
		ThreadID:    doc.ThreadID,
		Name:        doc.Name,
		Status:      doc.Status,
		Universe:    doc.Universe,
		Attachments: make([]strategystore.Attachment, len(doc.Attachments)),
		Version:     doc.Version,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for i, att := range doc.Attachments {
		strategy.Attachments[i] = strategystore.Attachment{
			CardID:         att.CardID,
			Role:           att.Role,
			Enabled:        att.Enabled,
			Overrides:      att.Overrides,
			FollowLatest:   att.FollowLatest,
			CardRevisionID: att.CardRevisionID,
		}
	}
	return strategy, nil
}

// Create assigns an id, stamps both timestamps, and inserts the document.
func (s *StrategyStore) Create(ctx context.Context, strategy *strategystore.Strategy) (*strategystore.Strategy, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	stored := strategy.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Version == 0 {
		stored.Version = 1
	}

	raw, err := encodeStrategy(stored)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `INSERT INTO strategies (id, doc) VALUES ($1, $2)`, stored.ID, raw); err != nil {
		return nil, fmt.Errorf("strategy store: insert %s: %w", stored.ID, err)
	}
	return stored, nil
}

// Get returns the strategy document for id.
func (s *StrategyStore) Get(ctx context.Context, id string) (*strategystore.Strategy, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = pool.QueryRow(ctx, `SELECT doc FROM strategies WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, strategystore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("strategy store: select %s: %w", id, err)
	}
	return decodeStrategy(id, raw)
}

// Update replaces the document, preserving created_at, bumping version, and
// refreshing updated_at. The version bump rides on the stored document, not a
// compare-and-swap; concurrent editors last-write-win.
func (s *StrategyStore) Update(ctx context.Context, strategy *strategystore.Strategy) (*strategystore.Strategy, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, strategy.ID)
	if err != nil {
		return nil, err
	}
	stored := strategy.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.Version = existing.Version + 1
	stored.UpdatedAt = s.now()

	raw, err := encodeStrategy(stored)
	if err != nil {
		return nil, err
	}
	tag, err := pool.Exec(ctx, `UPDATE strategies SET doc = $2 WHERE id = $1`, stored.ID, raw)
	if err != nil {
		return nil, fmt.Errorf("strategy store: update %s: %w", stored.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, strategystore.ErrNotFound
	}
	return stored, nil
}

// Delete removes the strategy row. Card documents are untouched.
func (s *StrategyStore) Delete(ctx context.Context, id string) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, `DELETE FROM strategies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("strategy store: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return strategystore.ErrNotFound
	}
	return nil
}

// List returns all strategies in insertion order.
func (s *StrategyStore) List(ctx context.Context) ([]*strategystore.Strategy, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	return s.queryMany(ctx, pool, `SELECT id, doc FROM strategies ORDER BY seq`)
}

// FindByOwner returns the owner's strategies in insertion order. Served by an
// expression index on doc->>'owner_id'.
func (s *StrategyStore) FindByOwner(ctx context.Context, ownerID string) ([]*strategystore.Strategy, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	return s.queryMany(ctx, pool, `SELECT id, doc FROM strategies WHERE doc->>'owner_id' = $1 ORDER BY seq`, ownerID)
}

// FindByThread returns the strategy bound to a conversation thread.
func (s *StrategyStore) FindByThread(ctx context.Context, threadID string) (*strategystore.Strategy, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	var (
		id  string
		raw []byte
	)
	err = pool.QueryRow(ctx, `SELECT id, doc FROM strategies WHERE doc->>'thread_id' = $1 ORDER BY seq LIMIT 1`, threadID).Scan(&id, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, strategystore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("strategy store: select by thread: %w", err)
	}
	return decodeStrategy(id, raw)
}

func (s *StrategyStore) queryMany(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) ([]*strategystore.Strategy, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("strategy store: select: %w", err)
	}
	defer rows.Close()

	var out []*strategystore.Strategy
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("strategy store: scan row: %w", err)
		}
		strategy, err := decodeStrategy(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, strategy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("strategy store: iterate rows: %w", err)
	}
	return out, nil
}
