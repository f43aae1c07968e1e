package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/vibetrade/studio/errs"
	"github.com/vibetrade/studio/internal/compiler"
	"github.com/vibetrade/studio/internal/domain/cardstore"
	"github.com/vibetrade/studio/internal/domain/slots"
	"github.com/vibetrade/studio/internal/domain/strategystore"
)

// StrategyResponse is the strategy document as returned by strategy
// operations.
type StrategyResponse struct {
	StrategyID  string                     `json:"strategy_id"`
	OwnerID     string                     `json:"owner_id,omitempty"`
	ThreadID    string                     `json:"thread_id,omitempty"`
	Name        string                     `json:"name"`
	Status      string                     `json:"status"`
	Universe    []string                   `json:"universe"`
	Attachments []strategystore.Attachment `json:"attachments"`
	Version     int                        `json:"version"`
	CreatedAt   string                     `json:"created_at"`
	UpdatedAt   string                     `json:"updated_at"`
}

func strategyResponse(strategy *strategystore.Strategy) *StrategyResponse {
	attachments := strategy.Attachments
	if attachments == nil {
		attachments = []strategystore.Attachment{}
	}
	universe := strategy.Universe
	if universe == nil {
		universe = []string{}
	}
	return &StrategyResponse{
		StrategyID:  strategy.ID,
		OwnerID:     strategy.OwnerID,
		ThreadID:    strategy.ThreadID,
		Name:        strategy.Name,
		Status:      strategy.Status,
		Universe:    universe,
		Attachments: attachments,
		Version:     strategy.Version,
		CreatedAt:   strategy.CreatedAt,
		UpdatedAt:   strategy.UpdatedAt,
	}
}

// CreateStrategyRequest creates a named strategy shell.
type CreateStrategyRequest struct {
	Name     string   `json:"name"`
	OwnerID  string   `json:"owner_id,omitempty"`
	ThreadID string   `json:"thread_id,omitempty"`
	Universe []string `json:"universe,omitempty"`
}

// CreateStrategy stores a new draft strategy with no attachments.
func (s *Service) CreateStrategy(ctx context.Context, req CreateStrategyRequest) (*StrategyResponse, error) {
	if req.Name == "" {
		return nil, errs.Validation("Strategy name must not be empty.")
	}
	strategy, err := s.strategies.Create(ctx, &strategystore.Strategy{
		OwnerID:     req.OwnerID,
		ThreadID:    req.ThreadID,
		Name:        req.Name,
		Status:      strategystore.StatusDraft,
		Universe:    req.Universe,
		Attachments: nil,
	})
	if err != nil {
		return nil, storeErr("create strategy", err)
	}
	return strategyResponse(strategy), nil
}

// GetStrategy returns one strategy by id.
func (s *Service) GetStrategy(ctx context.Context, id string) (*StrategyResponse, error) {
	strategy, err := s.loadStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	return strategyResponse(strategy), nil
}

// StrategySummary is the listing shape: metadata plus attachment count.
type StrategySummary struct {
	StrategyID       string   `json:"strategy_id"`
	OwnerID          string   `json:"owner_id,omitempty"`
	Name             string   `json:"name"`
	Status           string   `json:"status"`
	Universe         []string `json:"universe"`
	AttachmentsCount int      `json:"attachments_count"`
	Version          int      `json:"version"`
	UpdatedAt        string   `json:"updated_at"`
}

// ListStrategiesResponse lists every stored strategy.
type ListStrategiesResponse struct {
	Strategies []StrategySummary `json:"strategies"`
	Count      int               `json:"count"`
}

// ListStrategies returns all strategies in creation order.
func (s *Service) ListStrategies(ctx context.Context) (*ListStrategiesResponse, error) {
	strategies, err := s.strategies.List(ctx)
	if err != nil {
		return nil, storeErr("list strategies", err)
	}
	out := make([]StrategySummary, len(strategies))
	for i, strategy := range strategies {
		universe := strategy.Universe
		if universe == nil {
			universe = []string{}
		}
		out[i] = StrategySummary{
			StrategyID:       strategy.ID,
			OwnerID:          strategy.OwnerID,
			Name:             strategy.Name,
			Status:           strategy.Status,
			Universe:         universe,
			AttachmentsCount: len(strategy.Attachments),
			Version:          strategy.Version,
			UpdatedAt:        strategy.UpdatedAt,
		}
	}
	return &ListStrategiesResponse{Strategies: out, Count: len(out)}, nil
}

// UpdateStrategyMetaRequest carries partial metadata updates. Nil fields are
// left unchanged.
type UpdateStrategyMetaRequest struct {
	Name     *string   `json:"name,omitempty"`
	Status   *string   `json:"status,omitempty"`
	Universe *[]string `json:"universe,omitempty"`
}

// UpdateStrategyMeta applies a partial metadata update and bumps the
// strategy version.
func (s *Service) UpdateStrategyMeta(ctx context.Context, id string, req UpdateStrategyMetaRequest) (*StrategyResponse, error) {
	strategy, err := s.loadStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errs.Validation("Strategy name must not be empty.")
		}
		strategy.Name = *req.Name
	}
	if req.Status != nil {
		if !strategystore.ValidStatus(*req.Status) {
			return nil, errs.New(errs.CodeInvalidStatus,
				errs.WithMessage(fmt.Sprintf("Invalid status: %s. Must be one of: [draft ready running paused stopped error].", *req.Status)),
				errs.WithHint("Set one of the listed lifecycle statuses."),
				errs.WithDetail("status", *req.Status),
			)
		}
		strategy.Status = *req.Status
	}
	if req.Universe != nil {
		strategy.Universe = *req.Universe
	}
	updated, err := s.strategies.Update(ctx, strategy)
	if errors.Is(err, strategystore.ErrNotFound) {
		return nil, errs.NotFound("Strategy", id)
	}
	if err != nil {
		return nil, storeErr("update strategy", err)
	}
	return strategyResponse(updated), nil
}

// AddCardRequest is the composite create-and-attach call.
type AddCardRequest struct {
	StrategyID   string     `json:"strategy_id"`
	Type         string     `json:"type"`
	Slots        slots.Tree `json:"slots"`
	Role         string     `json:"role,omitempty"`
	Overrides    slots.Tree `json:"overrides,omitempty"`
	FollowLatest bool       `json:"follow_latest,omitempty"`
	Enabled      *bool      `json:"enabled,omitempty"`
}

// AttachResponse reports the strategy's attachment state after a change.
type AttachResponse struct {
	StrategyID  string                     `json:"strategy_id"`
	CardID      string                     `json:"card_id,omitempty"`
	Attachments []strategystore.Attachment `json:"attachments"`
	Version     int                        `json:"version"`
	UpdatedAt   string                     `json:"updated_at"`
}

// AddCard creates a card from the given slots and attaches it to the
// strategy in one step.
func (s *Service) AddCard(ctx context.Context, req AddCardRequest) (*AttachResponse, error) {
	created, err := s.CreateCard(ctx, CreateCardRequest{
		Type:         req.Type,
		Slots:        req.Slots,
		StrategyID:   req.StrategyID,
		Role:         req.Role,
		Overrides:    req.Overrides,
		FollowLatest: req.FollowLatest,
		Enabled:      req.Enabled,
	})
	if err != nil {
		return nil, err
	}
	strategy, err := s.loadStrategy(ctx, req.StrategyID)
	if err != nil {
		return nil, err
	}
	return &AttachResponse{
		StrategyID:  strategy.ID,
		CardID:      created.Card.CardID,
		Attachments: strategy.Attachments,
		Version:     strategy.Version,
		UpdatedAt:   strategy.UpdatedAt,
	}, nil
}

// RemoveCard detaches a card from the strategy. The card document itself is
// not deleted.
func (s *Service) RemoveCard(ctx context.Context, strategyID, cardID string) (*AttachResponse, error) {
	strategy, err := s.loadStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, attachment := range strategy.Attachments {
		if attachment.CardID == cardID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, errs.New(errs.CodeAttachmentNotFound,
			errs.WithMessage(fmt.Sprintf("Card %s is not attached to strategy %s.", cardID, strategyID)),
			errs.WithHint("Use get_strategy to inspect the current attachments."),
			errs.WithDetail("card_id", cardID),
			errs.WithDetail("strategy_id", strategyID),
		)
	}
	strategy.Attachments = append(strategy.Attachments[:index], strategy.Attachments[index+1:]...)
	updated, err := s.strategies.Update(ctx, strategy)
	if err != nil {
		return nil, storeErr("update strategy", err)
	}
	return &AttachResponse{
		StrategyID:  updated.ID,
		CardID:      cardID,
		Attachments: updated.Attachments,
		Version:     updated.Version,
		UpdatedAt:   updated.UpdatedAt,
	}, nil
}

// ValidateStrategy runs the compile pipeline without emitting a plan.
func (s *Service) ValidateStrategy(ctx context.Context, id string) (*compiler.Result, error) {
	result, err := s.compiler.Validate(ctx, id)
	return result, s.compileErr(id, err)
}

// CompileStrategy resolves the strategy into a runnable plan or issue list.
func (s *Service) CompileStrategy(ctx context.Context, id string) (*compiler.Result, error) {
	result, err := s.compiler.Compile(ctx, id)
	return result, s.compileErr(id, err)
}

func (s *Service) compileErr(id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, strategystore.ErrNotFound) {
		return errs.NotFound("Strategy", id)
	}
	return storeErr("compile strategy", err)
}

// resolveRole returns the explicit role, or infers it from the archetype
// kind prefix when absent.
func (s *Service) resolveRole(role, typeID string) (string, error) {
	if role == "" {
		role = strategystore.InferRole(typeID)
	}
	if !strategystore.ValidRole(role) {
		return "", errs.New(errs.CodeInvalidRole,
			errs.WithMessage(fmt.Sprintf("Invalid role: %s. Must be one of: [entry gate exit overlay]. Role was inferred from type '%s'. Provide an explicit role if the type doesn't match a valid role.", role, typeID)),
			errs.WithHint("Pass an explicit role from the allowed set."),
			errs.WithDetail("role", role),
			errs.WithDetail("type", typeID),
		)
	}
	return role, nil
}

// attach appends the attachment and persists the strategy. Pinned
// attachments record the card's current updated_at as the revision stamp.
func (s *Service) attach(ctx context.Context, strategyID string, card *cardstore.Card, role string, overrides slots.Tree, followLatest, enabled bool) (*strategystore.Strategy, error) {
	strategy, err := s.loadStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if _, attached := strategy.Attachment(card.ID); attached {
		return nil, errs.New(errs.CodeDuplicateAttachment,
			errs.WithMessage(fmt.Sprintf("Card %s is already attached to strategy %s.", card.ID, strategyID)),
			errs.WithHint("Detach the card first, or attach a different card."),
			errs.WithDetail("card_id", card.ID),
			errs.WithDetail("strategy_id", strategyID),
		)
	}

	attachment := strategystore.Attachment{
		CardID:       card.ID,
		Role:         role,
		Enabled:      enabled,
		Overrides:    overrides,
		FollowLatest: followLatest,
	}
	if !followLatest {
		attachment.CardRevisionID = card.UpdatedAt
	}
	strategy.Attachments = append(strategy.Attachments, attachment)

	updated, err := s.strategies.Update(ctx, strategy)
	if err != nil {
		return nil, storeErr("update strategy", err)
	}
	return updated, nil
}

// StrategyWithCards is the HTTP read model: strategy metadata joined with
// the attached card documents.
type StrategyWithCards struct {
	Strategy  *StrategyResponse `json:"strategy"`
	Cards     []AttachedCard    `json:"cards"`
	CardCount int               `json:"card_count"`
}

// AttachedCard is a card document merged with its attachment fields.
type AttachedCard struct {
	CardID         string     `json:"card_id"`
	Type           string     `json:"type"`
	Slots          slots.Tree `json:"slots"`
	SchemaEtag     string     `json:"schema_etag"`
	CreatedAt      string     `json:"created_at"`
	UpdatedAt      string     `json:"updated_at"`
	Role           string     `json:"role"`
	Enabled        bool       `json:"enabled"`
	Overrides      slots.Tree `json:"overrides,omitempty"`
	FollowLatest   bool       `json:"follow_latest"`
	CardRevisionID string     `json:"card_revision_id,omitempty"`
}

// GetStrategyWithCards joins the strategy with its attached cards.
// Attachments whose card no longer exists are skipped; compile reports them.
func (s *Service) GetStrategyWithCards(ctx context.Context, id string) (*StrategyWithCards, error) {
	strategy, err := s.loadStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	cards := make([]AttachedCard, 0, len(strategy.Attachments))
	for _, attachment := range strategy.Attachments {
		card, err := s.cards.Get(ctx, attachment.CardID)
		if errors.Is(err, cardstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeErr("get card", err)
		}
		cards = append(cards, AttachedCard{
			CardID:         card.ID,
			Type:           card.Type,
			Slots:          card.Slots,
			SchemaEtag:     card.SchemaEtag,
			CreatedAt:      card.CreatedAt,
			UpdatedAt:      card.UpdatedAt,
			Role:           attachment.Role,
			Enabled:        attachment.Enabled,
			Overrides:      attachment.Overrides,
			FollowLatest:   attachment.FollowLatest,
			CardRevisionID: attachment.CardRevisionID,
		})
	}
	return &StrategyWithCards{
		Strategy:  strategyResponse(strategy),
		Cards:     cards,
		CardCount: len(cards),
	}, nil
}
