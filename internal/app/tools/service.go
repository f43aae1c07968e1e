// Package tools is the service facade behind the tool surface: it validates
// argument shapes, calls the stores, catalog, and compiler, and converts
// failures into structured errors. It adds no semantics beyond role
// inference on attach and schema etag stamping on card writes.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibetrade/studio/errs"
	"github.com/vibetrade/studio/internal/catalog"
	"github.com/vibetrade/studio/internal/compiler"
	"github.com/vibetrade/studio/internal/domain/cardstore"
	"github.com/vibetrade/studio/internal/domain/strategystore"
)

// Service holds the wired dependencies for every tool operation.
type Service struct {
	catalog    *catalog.Catalog
	validator  *catalog.Validator
	compiler   *compiler.Compiler
	cards      cardstore.Store
	strategies strategystore.Store
}

// NewService wires the facade. The compiler is constructed here so every
// caller shares one schema cache.
func NewService(cat *catalog.Catalog, cards cardstore.Store, strategies strategystore.Store) *Service {
	validator := catalog.NewValidator(cat)
	return &Service{
		catalog:    cat,
		validator:  validator,
		compiler:   compiler.New(strategies, cards, cat, validator),
		cards:      cards,
		strategies: strategies,
	}
}

// storeErr converts an unexpected store failure into a transient structured
// error. Not-found sentinels are handled by the callers, which know the
// resource kind.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Timeout(op, err)
	}
	return errs.Database(op, err)
}

func (s *Service) loadStrategy(ctx context.Context, id string) (*strategystore.Strategy, error) {
	strategy, err := s.strategies.Get(ctx, id)
	if errors.Is(err, strategystore.ErrNotFound) {
		return nil, errs.NotFound("Strategy", id)
	}
	if err != nil {
		return nil, storeErr("get strategy", err)
	}
	return strategy, nil
}

func (s *Service) loadCard(ctx context.Context, id string) (*cardstore.Card, error) {
	card, err := s.cards.Get(ctx, id)
	if errors.Is(err, cardstore.ErrNotFound) {
		return nil, errs.NotFound("Card", id)
	}
	if err != nil {
		return nil, storeErr("get card", err)
	}
	return card, nil
}

// validateAgainstSchema runs draft validation for a card write and returns
// the etag of the schema the slots were checked against.
func (s *Service) validateAgainstSchema(typeID string, doc map[string]any) (string, error) {
	validationErrors, err := s.validator.ValidateSlots(typeID, doc)
	if errors.Is(err, catalog.ErrNotFound) {
		return "", errs.NotFound("Archetype", typeID)
	}
	if err != nil {
		return "", errs.New(errs.CodeInternal,
			errs.WithMessage(fmt.Sprintf("schema validation failed for %s", typeID)),
			errs.WithCause(err),
		)
	}
	if len(validationErrors) > 0 {
		return "", errs.SchemaValidation(typeID, validationErrors)
	}
	etag, err := s.validator.SchemaEtag(typeID)
	if err != nil {
		return "", errs.NotFound("Schema", typeID)
	}
	return etag, nil
}
