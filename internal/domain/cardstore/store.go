// Package cardstore defines the card document model and its persistence
// contract.
package cardstore

import (
	"context"
	"errors"

	"github.com/vibetrade/studio/internal/domain/slots"
)

// ErrNotFound is returned when the referenced card does not exist.
var ErrNotFound = errors.New("card not found")

// Card is a reusable strategy building block: an archetype instance with
// concrete slot values, stamped with the schema fingerprint it validated
// against.
type Card struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Slots      slots.Tree `json:"slots"`
	SchemaEtag string     `json:"schema_etag"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
}

// Clone returns a deep copy of the card.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	out.Slots = slots.Clone(c.Slots)
	return &out
}

// Store persists card documents. Implementations assign ids on Create and
// refresh UpdatedAt on every write.
type Store interface {
	Create(ctx context.Context, card *Card) (*Card, error)
	Get(ctx context.Context, id string) (*Card, error)
	Update(ctx context.Context, card *Card) (*Card, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Card, error)
}
