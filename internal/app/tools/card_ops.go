package tools

import (
	"context"
	"errors"

	"github.com/vibetrade/studio/errs"
	"github.com/vibetrade/studio/internal/catalog"
	"github.com/vibetrade/studio/internal/domain/cardstore"
	"github.com/vibetrade/studio/internal/domain/slots"
)

// CardResponse is the card document as returned by card operations.
type CardResponse struct {
	CardID     string     `json:"card_id"`
	Type       string     `json:"type"`
	Slots      slots.Tree `json:"slots"`
	SchemaEtag string     `json:"schema_etag"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
}

func cardResponse(card *cardstore.Card) *CardResponse {
	return &CardResponse{
		CardID:     card.ID,
		Type:       card.Type,
		Slots:      card.Slots,
		SchemaEtag: card.SchemaEtag,
		CreatedAt:  card.CreatedAt,
		UpdatedAt:  card.UpdatedAt,
	}
}

// CreateCardRequest creates a card and optionally attaches it to a strategy
// in the same call.
type CreateCardRequest struct {
	Type         string     `json:"type"`
	Slots        slots.Tree `json:"slots"`
	StrategyID   string     `json:"strategy_id,omitempty"`
	Role         string     `json:"role,omitempty"`
	Overrides    slots.Tree `json:"overrides,omitempty"`
	FollowLatest bool       `json:"follow_latest,omitempty"`
	Enabled      *bool      `json:"enabled,omitempty"`
}

// CreateCardResponse reports the stored card plus, when the card was
// attached, the updated strategy attachment state.
type CreateCardResponse struct {
	Card *CardResponse `json:"card"`

	StrategyID      string `json:"strategy_id,omitempty"`
	Role            string `json:"role,omitempty"`
	StrategyVersion int    `json:"strategy_version,omitempty"`
}

// CreateCard validates the slots against the archetype schema, stamps the
// current schema etag, and stores the card. When StrategyID is set the card
// is attached as well; attachment preconditions are checked before the card
// is written so a failed attach leaves no orphan card.
func (s *Service) CreateCard(ctx context.Context, req CreateCardRequest) (*CreateCardResponse, error) {
	role := req.Role
	if req.StrategyID != "" {
		var err error
		role, err = s.resolveRole(req.Role, req.Type)
		if err != nil {
			return nil, err
		}
		// Fail before the card write so a bad strategy id leaves no orphan.
		if _, err := s.loadStrategy(ctx, req.StrategyID); err != nil {
			return nil, err
		}
	}

	etag, err := s.validateAgainstSchema(req.Type, req.Slots)
	if err != nil {
		return nil, err
	}

	card, err := s.cards.Create(ctx, &cardstore.Card{
		Type:       req.Type,
		Slots:      req.Slots,
		SchemaEtag: etag,
	})
	if err != nil {
		return nil, storeErr("create card", err)
	}

	resp := &CreateCardResponse{Card: cardResponse(card)}
	if req.StrategyID == "" {
		return resp, nil
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	strategy, err := s.attach(ctx, req.StrategyID, card, role, req.Overrides, req.FollowLatest, enabled)
	if err != nil {
		return nil, err
	}
	resp.StrategyID = strategy.ID
	resp.Role = role
	resp.StrategyVersion = strategy.Version
	return resp, nil
}

// GetCard returns one card by id.
func (s *Service) GetCard(ctx context.Context, cardID string) (*CardResponse, error) {
	card, err := s.loadCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return cardResponse(card), nil
}

// ListCardsResponse lists every stored card.
type ListCardsResponse struct {
	Cards []*CardResponse `json:"cards"`
	Count int             `json:"count"`
}

// ListCards returns all cards in creation order.
func (s *Service) ListCards(ctx context.Context) (*ListCardsResponse, error) {
	cards, err := s.cards.List(ctx)
	if err != nil {
		return nil, storeErr("list cards", err)
	}
	out := make([]*CardResponse, len(cards))
	for i, card := range cards {
		out[i] = cardResponse(card)
	}
	return &ListCardsResponse{Cards: out, Count: len(out)}, nil
}

// UpdateCard replaces the card's slots after validating them against the
// current schema, and restamps the schema etag. Client-supplied etags are
// never trusted for writes.
func (s *Service) UpdateCard(ctx context.Context, cardID string, doc slots.Tree) (*CardResponse, error) {
	card, err := s.loadCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	etag, err := s.validateAgainstSchema(card.Type, doc)
	if err != nil {
		return nil, err
	}
	card.Slots = doc
	card.SchemaEtag = etag
	updated, err := s.cards.Update(ctx, card)
	if errors.Is(err, cardstore.ErrNotFound) {
		return nil, errs.NotFound("Card", cardID)
	}
	if err != nil {
		return nil, storeErr("update card", err)
	}
	return cardResponse(updated), nil
}

// DeleteCardResponse confirms a card deletion.
type DeleteCardResponse struct {
	CardID  string `json:"card_id"`
	Success bool   `json:"success"`
}

// DeleteCard removes the card. Attachments referencing it are not cascaded;
// the next compile reports them as missing.
func (s *Service) DeleteCard(ctx context.Context, cardID string) (*DeleteCardResponse, error) {
	err := s.cards.Delete(ctx, cardID)
	if errors.Is(err, cardstore.ErrNotFound) {
		return nil, errs.NotFound("Card", cardID)
	}
	if err != nil {
		return nil, storeErr("delete card", err)
	}
	return &DeleteCardResponse{CardID: cardID, Success: true}, nil
}

// ValidateSlotsDraftResponse reports draft validation of slot values.
type ValidateSlotsDraftResponse struct {
	TypeID     string   `json:"type_id"`
	Valid      bool     `json:"valid"`
	Errors     []string `json:"errors"`
	SchemaEtag string   `json:"schema_etag"`
}

// ValidateSlotsDraft checks slot values without storing anything, so agents
// can iterate before create_card.
func (s *Service) ValidateSlotsDraft(_ context.Context, typeID string, doc slots.Tree) (*ValidateSlotsDraftResponse, error) {
	validationErrors, err := s.validator.ValidateSlots(typeID, doc)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, errs.NotFound("Archetype", typeID)
	}
	if err != nil {
		return nil, errs.Database("validate slots", err)
	}
	etag, err := s.validator.SchemaEtag(typeID)
	if err != nil {
		return nil, errs.NotFound("Schema", typeID)
	}
	if validationErrors == nil {
		validationErrors = []string{}
	}
	return &ValidateSlotsDraftResponse{
		TypeID:     typeID,
		Valid:      len(validationErrors) == 0,
		Errors:     validationErrors,
		SchemaEtag: etag,
	}, nil
}
