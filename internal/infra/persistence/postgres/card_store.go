package postgres

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibetrade/studio/internal/domain/cardstore"
	"github.com/vibetrade/studio/internal/domain/slots"
	"github.com/vibetrade/studio/internal/domain/timestamp"
)

// CardStore persists card documents in the cards table.
type CardStore struct {
	pool *pgxpool.Pool
	now  func() string
}

// NewCardStore constructs a CardStore backed by the provided pgx pool.
func NewCardStore(pool *pgxpool.Pool) *CardStore {
	return &CardStore{
		pool: pool,
		now:  timestamp.Now,
	}
}

func (s *CardStore) ensurePool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("card store: nil pool")
	}
	return s.pool, nil
}

type cardDoc struct {
	Type       string     `json:"type"`
	Slots      slots.Tree `json:"slots"`
	SchemaEtag string     `json:"schema_etag"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
}

func encodeCard(card *cardstore.Card) ([]byte, error) {
	doc := cardDoc{
		Type:       card.Type,
		Slots:      card.Slots,
		SchemaEtag: card.SchemaEtag,
		CreatedAt:  card.CreatedAt,
		UpdatedAt:  card.UpdatedAt,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("card store: encode doc: %w", err)
	}
	return raw, nil
}

func decodeCard(id string, raw []byte) (*cardstore.Card, error) {
	var doc cardDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("card store: decode doc %s: %w", id, err)
	}
	return &cardstore.Card{
		ID:         id,
		Type:       doc.Type,
		Slots:      doc.Slots,
		SchemaEtag: doc.SchemaEtag,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

// Create assigns an id, stamps both timestamps, and inserts the document.
func (s *CardStore) Create(ctx context.Context, card *cardstore.Card) (*cardstore.Card, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	stored := card.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	raw, err := encodeCard(stored)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `INSERT INTO cards (id, doc) VALUES ($1, $2)`, stored.ID, raw); err != nil {
		return nil, fmt.Errorf("card store: insert %s: %w", stored.ID, err)
	}
	return stored, nil
}

// Get returns the card document for id.
func (s *CardStore) Get(ctx context.Context, id string) (*cardstore.Card, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = pool.QueryRow(ctx, `SELECT doc FROM cards WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cardstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("card store: select %s: %w", id, err)
	}
	return decodeCard(id, raw)
}

// Update replaces the document, preserving created_at and refreshing
// updated_at.
func (s *CardStore) Update(ctx context.Context, card *cardstore.Card) (*cardstore.Card, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	stored := card.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = s.now()

	raw, err := encodeCard(stored)
	if err != nil {
		return nil, err
	}
	tag, err := pool.Exec(ctx, `UPDATE cards SET doc = $2 WHERE id = $1`, stored.ID, raw)
	if err != nil {
		return nil, fmt.Errorf("card store: update %s: %w", stored.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, cardstore.ErrNotFound
	}
	return stored, nil
}

// Delete removes the card row. Strategy attachments referencing it are left
// in place; compile reports them as missing.
func (s *CardStore) Delete(ctx context.Context, id string) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("card store: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return cardstore.ErrNotFound
	}
	return nil
}

// List returns all cards in insertion order.
func (s *CardStore) List(ctx context.Context) ([]*cardstore.Card, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT id, doc FROM cards ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("card store: select all: %w", err)
	}
	defer rows.Close()

	var out []*cardstore.Card
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("card store: scan row: %w", err)
		}
		card, err := decodeCard(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("card store: iterate rows: %w", err)
	}
	return out, nil
}
