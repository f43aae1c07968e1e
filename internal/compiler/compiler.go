// Package compiler turns a stored strategy into a runnable plan, or into a
// list of issues explaining why it cannot run. Compilation is read-only and
// deterministic: attachments are processed in stored order and issues
// accumulate instead of aborting.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vibetrade/studio/internal/catalog"
	"github.com/vibetrade/studio/internal/domain/cardstore"
	"github.com/vibetrade/studio/internal/domain/slots"
	"github.com/vibetrade/studio/internal/domain/strategystore"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue codes reported by compilation. These are part of the tool contract.
const (
	IssueCardNotFound         = "CARD_NOT_FOUND"
	IssueCardRevisionNotFound = "CARD_REVISION_NOT_FOUND"
	IssueSchemaNotFound       = "SCHEMA_NOT_FOUND"
	IssueSlotValidation       = "SLOT_VALIDATION_ERROR"
	IssueMissingContext       = "MISSING_CONTEXT"
	IssueEmptyUniverse        = "EMPTY_UNIVERSE"
	IssueNoEntries            = "NO_ENTRIES"
	IssueNoExits              = "NO_EXITS"
	IssueMultipleExits        = "MULTIPLE_EXITS"
	IssueSingleAssetViolation = "MVP_SINGLE_ASSET_VIOLATION"
	IssueMultipleAssets       = "MVP_MULTIPLE_ASSETS"
	IssueUniverseMismatch     = "MVP_UNIVERSE_MISMATCH"
)

// Issue is one validation finding tied to a location in the strategy.
type Issue struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
}

// CompiledCard is an attachment resolved to its effective configuration.
type CompiledCard struct {
	Role              string         `json:"role"`
	CardID            string         `json:"card_id"`
	CardRevisionID    string         `json:"card_revision_id,omitempty"`
	Type              string         `json:"type"`
	EffectiveSlots    slots.Tree     `json:"effective_slots"`
	CompiledCondition map[string]any `json:"compiled_condition,omitempty"`
	ExecutionSpec     map[string]any `json:"execution_spec,omitempty"`
	SizingSpec        map[string]any `json:"sizing_spec,omitempty"`
}

// DataRequirement states how much history one (symbol, timeframe) pair needs.
type DataRequirement struct {
	Symbol        string  `json:"symbol"`
	TF            string  `json:"tf"`
	MinBars       int     `json:"min_bars"`
	LookbackHours float64 `json:"lookback_hours"`
}

// CompiledStrategy is the runnable plan emitted when compilation is clean.
type CompiledStrategy struct {
	StrategyID       string            `json:"strategy_id"`
	Universe         []string          `json:"universe"`
	Cards            []CompiledCard    `json:"cards"`
	DataRequirements []DataRequirement `json:"data_requirements"`
}

// Summary counts the findings of one compilation pass.
type Summary struct {
	Errors         int `json:"errors"`
	Warnings       int `json:"warnings"`
	CardsValidated int `json:"cards_validated"`
}

// Status hints.
const (
	StatusReady       = "ready"
	StatusFixRequired = "fix_required"
)

// Result is the outcome of compiling or validating one strategy.
type Result struct {
	StatusHint string            `json:"status_hint"`
	Compiled   *CompiledStrategy `json:"compiled,omitempty"`
	Issues     []Issue           `json:"issues"`
	Summary    Summary           `json:"validation_summary"`
}

// Compiler resolves strategies against the card store and the archetype
// catalog.
type Compiler struct {
	strategies strategystore.Store
	cards      cardstore.Store
	catalog    *catalog.Catalog
	validator  *catalog.Validator
}

// New returns a compiler over the given stores and catalog.
func New(strategies strategystore.Store, cards cardstore.Store, cat *catalog.Catalog, validator *catalog.Validator) *Compiler {
	return &Compiler{
		strategies: strategies,
		cards:      cards,
		catalog:    cat,
		validator:  validator,
	}
}

// Compile resolves the strategy into a runnable plan. The plan is present
// only when no error-severity issues were found.
func (c *Compiler) Compile(ctx context.Context, strategyID string) (*Result, error) {
	return c.run(ctx, strategyID, true)
}

// Validate runs the identical pipeline but never emits a plan, so agents can
// preflight without implying the strategy is runnable.
func (c *Compiler) Validate(ctx context.Context, strategyID string) (*Result, error) {
	return c.run(ctx, strategyID, false)
}

func (c *Compiler) run(ctx context.Context, strategyID string, emitPlan bool) (*Result, error) {
	strategy, err := c.strategies.Get(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("compile: load strategy: %w", err)
	}

	var (
		issues        []Issue
		compiledCards []CompiledCard
		reqKeys       []symbolTF
		reqBars       = make(map[symbolTF]int)
	)

	for _, attachment := range strategy.Attachments {
		if !attachment.Enabled {
			continue
		}

		card, revisionID, issue, err := c.resolveCard(ctx, attachment)
		if err != nil {
			return nil, err
		}
		if issue != nil {
			issues = append(issues, *issue)
			continue
		}

		effective := slots.Merge(card.Slots, attachment.Overrides)

		schema, err := c.catalog.Schema(card.Type)
		if errors.Is(err, catalog.ErrNotFound) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     IssueSchemaNotFound,
				Message:  fmt.Sprintf("Schema for archetype %s not found", card.Type),
				Path:     fmt.Sprintf("attachments[%s].type", attachment.CardID),
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("compile: load schema: %w", err)
		}

		validationErrors, err := c.validator.ValidateSlots(card.Type, effective)
		if err != nil {
			return nil, fmt.Errorf("compile: validate slots: %w", err)
		}
		if len(validationErrors) > 0 {
			for _, msg := range validationErrors {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Code:     IssueSlotValidation,
					Message:  fmt.Sprintf("Effective slots for card '%s' (type '%s') failed schema validation: %s", attachment.CardID, card.Type, msg),
					Path:     fmt.Sprintf("attachments[%s].effective_slots", attachment.CardID),
				})
			}
			continue
		}

		symbol := slots.String(effective, "context", "symbol")
		tf := slots.String(effective, "context", "tf")
		if symbol == "" || tf == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     IssueMissingContext,
				Message:  fmt.Sprintf("Card %s missing symbol or tf in context", attachment.CardID),
				Path:     fmt.Sprintf("attachments[%s].effective_slots.context", attachment.CardID),
			})
			continue
		}

		minBars := schema.Constraints.MinHistoryBars
		if minBars <= 0 {
			minBars = defaultMinBars
		}
		key := symbolTF{symbol, tf}
		if current, seen := reqBars[key]; !seen {
			reqKeys = append(reqKeys, key)
			reqBars[key] = minBars
		} else if minBars > current {
			reqBars[key] = minBars
		}

		compiledCards = append(compiledCards, CompiledCard{
			Role:              attachment.Role,
			CardID:            attachment.CardID,
			CardRevisionID:    revisionID,
			Type:              card.Type,
			EffectiveSlots:    effective,
			CompiledCondition: extractCondition(effective),
			ExecutionSpec:     extractExecution(effective),
			SizingSpec:        extractSizing(effective),
		})
	}

	if len(strategy.Universe) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     IssueEmptyUniverse,
			Message:  "Strategy has no symbols in universe. Set universe via update_strategy_meta before compilation.",
			Path:     "universe",
		})
	}

	issues = append(issues, compositionIssues(compiledCards)...)
	issues = append(issues, c.singleAssetIssues(strategy, compiledCards)...)

	requirements := make([]DataRequirement, 0, len(reqKeys))
	for _, key := range reqKeys {
		minBars := reqBars[key]
		requirements = append(requirements, DataRequirement{
			Symbol:        key.symbol,
			TF:            key.tf,
			MinBars:       minBars,
			LookbackHours: float64(minBars) * hoursPerBar(key.tf),
		})
	}

	summary := Summary{CardsValidated: len(compiledCards)}
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			summary.Errors++
		case SeverityWarning:
			summary.Warnings++
		}
	}

	result := &Result{
		StatusHint: StatusFixRequired,
		Issues:     issues,
		Summary:    summary,
	}
	if summary.Errors == 0 {
		result.StatusHint = StatusReady
		if emitPlan {
			result.Compiled = &CompiledStrategy{
				StrategyID:       strategy.ID,
				Universe:         strategy.Universe,
				Cards:            compiledCards,
				DataRequirements: requirements,
			}
		}
	}
	return result, nil
}

func (c *Compiler) resolveCard(ctx context.Context, attachment strategystore.Attachment) (*cardstore.Card, string, *Issue, error) {
	card, err := c.cards.Get(ctx, attachment.CardID)
	if errors.Is(err, cardstore.ErrNotFound) {
		card = nil
	} else if err != nil {
		return nil, "", nil, fmt.Errorf("compile: load card: %w", err)
	}

	if attachment.FollowLatest {
		if card == nil {
			return nil, "", &Issue{
				Severity: SeverityError,
				Code:     IssueCardNotFound,
				Message:  fmt.Sprintf("Card %s not found (follow_latest=true)", attachment.CardID),
				Path:     fmt.Sprintf("attachments[%s]", attachment.CardID),
			}, nil
		}
		return card, card.UpdatedAt, nil, nil
	}

	// Pinned: the stored revision stamp must match the card's current
	// updated_at exactly.
	if card == nil || card.UpdatedAt != attachment.CardRevisionID {
		return nil, "", &Issue{
			Severity: SeverityError,
			Code:     IssueCardRevisionNotFound,
			Message:  fmt.Sprintf("Pinned card revision for card '%s' (revision '%s') not found or does not match current card's updated_at.", attachment.CardID, attachment.CardRevisionID),
			Path:     fmt.Sprintf("attachments[%s]", attachment.CardID),
		}, nil
	}
	return card, attachment.CardRevisionID, nil, nil
}

func compositionIssues(cards []CompiledCard) []Issue {
	var entryCount, exitCount int
	for _, card := range cards {
		switch card.Role {
		case strategystore.RoleEntry:
			entryCount++
		case strategystore.RoleExit:
			exitCount++
		}
	}

	var issues []Issue
	if entryCount == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     IssueNoEntries,
			Message:  "Strategy has no entry cards attached",
			Path:     "attachments",
		})
	}
	if exitCount == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Code:     IssueNoExits,
			Message:  "Strategy has no exit cards attached (positions may not close automatically)",
			Path:     "attachments",
		})
	}
	if exitCount > 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Code:     IssueMultipleExits,
			Message:  fmt.Sprintf("Strategy has %d exit cards (may cause conflicts)", exitCount),
			Path:     "attachments",
		})
	}
	return issues
}

// singleAssetIssues enforces the single traded asset guarantee: entries may
// observe other symbols, but only one symbol may be traded, and the universe
// must agree with it.
func (c *Compiler) singleAssetIssues(strategy *strategystore.Strategy, cards []CompiledCard) []Issue {
	var issues []Issue
	traded := make(map[string]bool)

	for _, card := range cards {
		if card.Role != strategystore.RoleEntry {
			continue
		}
		symbol := slots.String(card.EffectiveSlots, "context", "symbol")

		if card.Type == "entry.intermarket_trigger" {
			if leadFollow, ok := slots.Object(card.EffectiveSlots, "event", "lead_follow"); ok {
				follower, _ := leadFollow["follower_symbol"].(string)
				if symbol != follower {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Code:     IssueSingleAssetViolation,
						Message:  fmt.Sprintf("entry.intermarket_trigger requires context.symbol (%s) to equal event.lead_follow.follower_symbol (%s). Leader symbols are observation-only.", symbol, follower),
						Path:     fmt.Sprintf("attachments[%s].effective_slots", card.CardID),
					})
				}
				symbol = follower
			}
		}

		if symbol != "" {
			traded[symbol] = true
		}
	}

	symbols := make([]string, 0, len(traded))
	for symbol := range traded {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	switch {
	case len(symbols) > 1:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Code:     IssueMultipleAssets,
			Message:  fmt.Sprintf("Strategy trades multiple assets %v. Single-asset trading is required. Use entry.intermarket_trigger for observation-only triggers from other symbols.", symbols),
			Path:     "attachments",
		})
	case len(symbols) == 1:
		tradedSymbol := symbols[0]
		if len(strategy.Universe) > 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     IssueUniverseMismatch,
				Message:  fmt.Sprintf("Strategy universe %v contains multiple symbols, but only %s is traded. Single-asset strategies are required.", strategy.Universe, tradedSymbol),
				Path:     "universe",
			})
		} else if len(strategy.Universe) == 1 && strategy.Universe[0] != tradedSymbol {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Code:     IssueUniverseMismatch,
				Message:  fmt.Sprintf("Traded symbol %s not in strategy universe %v", tradedSymbol, strategy.Universe),
				Path:     "universe",
			})
		}
	}
	return issues
}

type symbolTF struct {
	symbol string
	tf     string
}

const defaultMinBars = 100

func hoursPerBar(tf string) float64 {
	switch tf {
	case "1m":
		return 1.0 / 60
	case "5m":
		return 5.0 / 60
	case "15m":
		return 15.0 / 60
	case "1h":
		return 1
	case "4h":
		return 4
	case "1d":
		return 24
	default:
		return 1
	}
}
