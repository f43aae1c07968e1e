// Package memory provides in-process store implementations used by tests and
// catalog-only local runs.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vibetrade/studio/internal/domain/cardstore"
	"github.com/vibetrade/studio/internal/domain/strategystore"
	"github.com/vibetrade/studio/internal/domain/timestamp"
)

// CardStore is an in-memory cardstore.Store.
type CardStore struct {
	// Now is the timestamp source; overridable in tests that need to
	// control revision stamps.
	Now func() string

	mu    sync.RWMutex
	cards map[string]*cardstore.Card
	order []string
}

// NewCardStore returns an empty in-memory card store.
func NewCardStore() *CardStore {
	return &CardStore{
		Now:   timestamp.Now,
		cards: make(map[string]*cardstore.Card),
	}
}

func (s *CardStore) Create(_ context.Context, card *cardstore.Card) (*cardstore.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := card.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.cards[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

func (s *CardStore) Get(_ context.Context, id string) (*cardstore.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[id]
	if !ok {
		return nil, cardstore.ErrNotFound
	}
	return card.Clone(), nil
}

func (s *CardStore) Update(_ context.Context, card *cardstore.Card) (*cardstore.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.cards[card.ID]
	if !ok {
		return nil, cardstore.ErrNotFound
	}
	stored := card.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = s.Now()
	s.cards[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *CardStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return cardstore.ErrNotFound
	}
	delete(s.cards, id)
	for i, storedID := range s.order {
		if storedID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *CardStore) List(_ context.Context) ([]*cardstore.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*cardstore.Card, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.cards[id].Clone())
	}
	return out, nil
}

// StrategyStore is an in-memory strategystore.Store.
type StrategyStore struct {
	Now func() string

	mu         sync.RWMutex
	strategies map[string]*strategystore.Strategy
	order      []string
}

// NewStrategyStore returns an empty in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{
		Now:        timestamp.Now,
		strategies: make(map[string]*strategystore.Strategy),
	}
}

func (s *StrategyStore) Create(_ context.Context, strategy *strategystore.Strategy) (*strategystore.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := strategy.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Version == 0 {
		stored.Version = 1
	}
	s.strategies[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

func (s *StrategyStore) Get(_ context.Context, id string) (*strategystore.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	strategy, ok := s.strategies[id]
	if !ok {
		return nil, strategystore.ErrNotFound
	}
	return strategy.Clone(), nil
}

func (s *StrategyStore) Update(_ context.Context, strategy *strategystore.Strategy) (*strategystore.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.strategies[strategy.ID]
	if !ok {
		return nil, strategystore.ErrNotFound
	}
	stored := strategy.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.Version = existing.Version + 1
	stored.UpdatedAt = s.Now()
	s.strategies[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *StrategyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategies[id]; !ok {
		return strategystore.ErrNotFound
	}
	delete(s.strategies, id)
	for i, storedID := range s.order {
		if storedID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *StrategyStore) List(_ context.Context) ([]*strategystore.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*strategystore.Strategy, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.strategies[id].Clone())
	}
	return out, nil
}

func (s *StrategyStore) FindByOwner(_ context.Context, ownerID string) ([]*strategystore.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*strategystore.Strategy
	for _, id := range s.order {
		if s.strategies[id].OwnerID == ownerID {
			out = append(out, s.strategies[id].Clone())
		}
	}
	return out, nil
}

func (s *StrategyStore) FindByThread(_ context.Context, threadID string) (*strategystore.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if s.strategies[id].ThreadID == threadID {
			return s.strategies[id].Clone(), nil
		}
	}
	return nil, strategystore.ErrNotFound
}
