package tools

import (
	"context"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vibetrade/studio/errs"
	"github.com/vibetrade/studio/internal/catalog"
	"github.com/vibetrade/studio/internal/compiler"
	"github.com/vibetrade/studio/internal/domain/cardstore"
	"github.com/vibetrade/studio/internal/domain/slots"
	"github.com/vibetrade/studio/internal/infra/persistence/memory"
)

func newTestService(t *testing.T) (*Service, *memory.CardStore, *memory.StrategyStore) {
	t.Helper()
	cat := catalog.New("../../../data")
	cards := memory.NewCardStore()
	strategies := memory.NewStrategyStore()
	return NewService(cat, cards, strategies), cards, strategies
}

func trendPullbackSlots() slots.Tree {
	return slots.Tree{
		"context": map[string]any{"tf": "1h", "symbol": "BTC-USD"},
		"event": map[string]any{
			"trend_ma": map[string]any{"kind": "ema", "window": float64(50)},
			"dip_band": map[string]any{"mult": 2.0},
		},
		"action": map[string]any{
			"execution": map[string]any{"order_type": "market"},
			"sizing":    map[string]any{"mode": "risk_based", "risk_pct": 1.0},
		},
	}
}

func exitStopSlots() slots.Tree {
	return slots.Tree{
		"context": map[string]any{"tf": "1h", "symbol": "BTC-USD"},
		"event": map[string]any{
			"condition": map[string]any{"type": "stop_loss", "pct": 8.0},
		},
		"action": map[string]any{
			"execution": map[string]any{"order_type": "market"},
		},
	}
}

func TestGetArchetypesKindFilter(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	all, err := svc.GetArchetypes(ctx, "")
	if err != nil {
		t.Fatalf("get archetypes: %v", err)
	}
	if len(all.Types) == 0 {
		t.Fatal("expected archetypes")
	}
	for _, at := range all.Types {
		if at.Deprecated {
			t.Fatalf("deprecated archetype %s in listing", at.ID)
		}
	}
	if all.AsOf == "" {
		t.Fatal("expected as_of timestamp")
	}

	exits, err := svc.GetArchetypes(ctx, "exit")
	if err != nil {
		t.Fatalf("get exit archetypes: %v", err)
	}
	for _, at := range exits.Types {
		if !strings.HasPrefix(at.ID, "exit.") {
			t.Fatalf("kind filter leaked %s", at.ID)
		}
	}
}

func TestGetArchetypesInvalidKind(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetArchetypes(context.Background(), "signal")
	if errs.CodeOf(err) != errs.CodeValidation {
		t.Fatalf("code = %s, want VALIDATION_ERROR", errs.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "Invalid kind: signal") {
		t.Fatalf("message missing kind: %v", err)
	}
}

func TestGetArchetypeSchemaResolvesRefs(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp, err := svc.GetArchetypeSchema(context.Background(), "entry.trend_pullback", "")
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if resp.Etag == "" {
		t.Fatal("expected etag")
	}
	raw, err := json.Marshal(resp.JSONSchema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	if strings.Contains(string(raw), "common_defs.schema.json") {
		t.Fatal("shared $refs not inlined")
	}
}

func TestGetSchemaExampleIndexRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	example, err := svc.GetSchemaExample(ctx, "entry.trend_pullback", 0)
	if err != nil {
		t.Fatalf("get example: %v", err)
	}
	if example.ExampleSlots == nil || example.SchemaEtag == "" {
		t.Fatal("example payload incomplete")
	}

	_, err = svc.GetSchemaExample(ctx, "entry.trend_pullback", 7)
	if errs.CodeOf(err) != errs.CodeValidation {
		t.Fatalf("code = %s, want VALIDATION_ERROR", errs.CodeOf(err))
	}

	_, err = svc.GetSchemaExample(ctx, "entry.unknown", 0)
	if errs.CodeOf(err) != errs.CodeSchemaNotFound {
		t.Fatalf("code = %s, want SCHEMA_NOT_FOUND", errs.CodeOf(err))
	}
}

func TestCreateCardStampsEtag(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp, err := svc.CreateCard(context.Background(), CreateCardRequest{
		Type:  "entry.trend_pullback",
		Slots: trendPullbackSlots(),
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	if resp.Card.SchemaEtag != `W/"entry.trend_pullback@3"` {
		t.Fatalf("schema_etag = %q", resp.Card.SchemaEtag)
	}
	if resp.Card.CardID == "" || resp.Card.CreatedAt == "" {
		t.Fatal("card identity incomplete")
	}
	if resp.StrategyID != "" {
		t.Fatal("detached create must not report a strategy")
	}
}

func TestCreateCardRejectsInvalidSlots(t *testing.T) {
	svc, _, _ := newTestService(t)
	bad := trendPullbackSlots()
	bad["event"].(map[string]any)["dip_band"] = map[string]any{"mult": 10.0}

	_, err := svc.CreateCard(context.Background(), CreateCardRequest{
		Type:  "entry.trend_pullback",
		Slots: bad,
	})
	if errs.CodeOf(err) != errs.CodeSchemaValidation {
		t.Fatalf("code = %s, want SCHEMA_VALIDATION_ERROR", errs.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "event.dip_band.mult") {
		t.Fatalf("message missing path: %v", err)
	}
}

func TestCreateCardUnknownArchetype(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateCard(context.Background(), CreateCardRequest{
		Type:  "entry.unknown",
		Slots: slots.Tree{},
	})
	if errs.CodeOf(err) != errs.CodeArchetypeNotFound {
		t.Fatalf("code = %s, want ARCHETYPE_NOT_FOUND", errs.CodeOf(err))
	}
}

func TestCreateCardAttachInfersRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "trend", Universe: []string{"BTC-USD"}})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}

	resp, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:       "exit.rule_trigger",
		Slots:      exitStopSlots(),
		StrategyID: strategy.StrategyID,
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	if resp.Role != "exit" {
		t.Fatalf("role = %q, want exit (inferred from type prefix)", resp.Role)
	}
	if resp.StrategyVersion != 2 {
		t.Fatalf("strategy version = %d, want 2 after attach", resp.StrategyVersion)
	}

	got, err := svc.GetStrategy(ctx, strategy.StrategyID)
	if err != nil {
		t.Fatalf("get strategy: %v", err)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Role != "exit" || !att.Enabled || att.FollowLatest {
		t.Fatalf("attachment defaults wrong: %+v", att)
	}
	if att.CardRevisionID == "" {
		t.Fatal("pinned attachment must record the card revision")
	}
}

func TestCreateCardInvalidRole(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "s"})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}

	_, err = svc.CreateCard(ctx, CreateCardRequest{
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
		StrategyID: strategy.StrategyID,
		Role:       "filter",
	})
	if errs.CodeOf(err) != errs.CodeInvalidRole {
		t.Fatalf("code = %s, want INVALID_ROLE", errs.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "Invalid role: filter") {
		t.Fatalf("message missing role: %v", err)
	}

	cards, err := svc.ListCards(ctx)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if cards.Count != 0 {
		t.Fatalf("invalid role must fail before the card write, found %d cards", cards.Count)
	}
}

func TestCreateCardMissingStrategyLeavesNoOrphan(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
		StrategyID: "missing",
	})
	if errs.CodeOf(err) != errs.CodeStrategyNotFound {
		t.Fatalf("code = %s, want STRATEGY_NOT_FOUND", errs.CodeOf(err))
	}

	cards, err := svc.ListCards(ctx)
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if cards.Count != 0 {
		t.Fatalf("found %d orphan cards", cards.Count)
	}
}

func TestDuplicateAttachment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "s"})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	created, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
		StrategyID: strategy.StrategyID,
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	_, err = svc.attach(ctx, strategy.StrategyID, mustLoadCard(t, svc, created.Card.CardID), "entry", nil, false, true)
	if errs.CodeOf(err) != errs.CodeDuplicateAttachment {
		t.Fatalf("code = %s, want DUPLICATE_ATTACHMENT", errs.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "already attached") {
		t.Fatalf("message: %v", err)
	}
}

func TestUpdateCardRestampsEtag(t *testing.T) {
	svc, cards, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:  "entry.trend_pullback",
		Slots: trendPullbackSlots(),
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	stored, err := cards.Get(ctx, created.Card.CardID)
	if err != nil {
		t.Fatalf("get stored card: %v", err)
	}
	stored.SchemaEtag = `W/"client-supplied"`
	if _, err := cards.Update(ctx, stored); err != nil {
		t.Fatalf("seed stale etag: %v", err)
	}

	next := trendPullbackSlots()
	next["event"].(map[string]any)["dip_band"] = map[string]any{"mult": 3.0}
	updated, err := svc.UpdateCard(ctx, created.Card.CardID, next)
	if err != nil {
		t.Fatalf("update card: %v", err)
	}
	if updated.SchemaEtag != `W/"entry.trend_pullback@3"` {
		t.Fatalf("etag = %q, want restamped current etag", updated.SchemaEtag)
	}
}

func TestDeleteCardDoesNotCascade(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "s", Universe: []string{"BTC-USD"}})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	created, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
		StrategyID: strategy.StrategyID,
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	deleted, err := svc.DeleteCard(ctx, created.Card.CardID)
	if err != nil {
		t.Fatalf("delete card: %v", err)
	}
	if !deleted.Success || deleted.CardID != created.Card.CardID {
		t.Fatalf("delete response: %+v", deleted)
	}

	got, err := svc.GetStrategy(ctx, strategy.StrategyID)
	if err != nil {
		t.Fatalf("get strategy: %v", err)
	}
	if len(got.Attachments) != 1 {
		t.Fatal("dangling attachment must survive card deletion")
	}

	result, err := svc.CompileStrategy(ctx, strategy.StrategyID)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !hasIssue(result.Issues, compiler.IssueCardNotFound) {
		t.Fatalf("expected CARD_NOT_FOUND after deletion, got %+v", result.Issues)
	}
}

func TestValidateSlotsDraftMatchesCreate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ok, err := svc.ValidateSlotsDraft(ctx, "entry.trend_pullback", trendPullbackSlots())
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if !ok.Valid || len(ok.Errors) != 0 {
		t.Fatalf("expected valid draft, got %+v", ok)
	}
	if ok.SchemaEtag != `W/"entry.trend_pullback@3"` {
		t.Fatalf("etag = %q", ok.SchemaEtag)
	}

	bad := trendPullbackSlots()
	bad["event"].(map[string]any)["dip_band"] = map[string]any{"mult": 10.0}
	draft, err := svc.ValidateSlotsDraft(ctx, "entry.trend_pullback", bad)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Valid || len(draft.Errors) == 0 {
		t.Fatalf("expected draft rejection, got %+v", draft)
	}

	_, createErr := svc.CreateCard(ctx, CreateCardRequest{Type: "entry.trend_pullback", Slots: bad})
	if errs.CodeOf(createErr) != errs.CodeSchemaValidation {
		t.Fatal("draft and create must agree on invalid slots")
	}
}

func TestUpdateStrategyMeta(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "s"})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	if strategy.Status != "draft" {
		t.Fatalf("status = %q, want draft", strategy.Status)
	}

	name := "momentum"
	status := "ready"
	universe := []string{"BTC-USD", "ETH-USD"}
	updated, err := svc.UpdateStrategyMeta(ctx, strategy.StrategyID, UpdateStrategyMetaRequest{
		Name:     &name,
		Status:   &status,
		Universe: &universe,
	})
	if err != nil {
		t.Fatalf("update meta: %v", err)
	}
	if updated.Name != "momentum" || updated.Status != "ready" || len(updated.Universe) != 2 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Version)
	}

	bad := "archived"
	_, err = svc.UpdateStrategyMeta(ctx, strategy.StrategyID, UpdateStrategyMetaRequest{Status: &bad})
	if errs.CodeOf(err) != errs.CodeInvalidStatus {
		t.Fatalf("code = %s, want INVALID_STATUS", errs.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "Invalid status: archived") {
		t.Fatalf("message: %v", err)
	}
}

func TestRemoveCard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "s"})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	created, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
		StrategyID: strategy.StrategyID,
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	removed, err := svc.RemoveCard(ctx, strategy.StrategyID, created.Card.CardID)
	if err != nil {
		t.Fatalf("remove card: %v", err)
	}
	if len(removed.Attachments) != 0 {
		t.Fatalf("attachments = %d, want 0", len(removed.Attachments))
	}

	if _, err := svc.GetCard(ctx, created.Card.CardID); err != nil {
		t.Fatalf("detach must not delete the card: %v", err)
	}

	_, err = svc.RemoveCard(ctx, strategy.StrategyID, created.Card.CardID)
	if errs.CodeOf(err) != errs.CodeAttachmentNotFound {
		t.Fatalf("code = %s, want ATTACHMENT_NOT_FOUND", errs.CodeOf(err))
	}
}

func TestCompileThroughFacade(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "trend", Universe: []string{"BTC-USD"}})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	if _, err := svc.AddCard(ctx, AddCardRequest{
		StrategyID: strategy.StrategyID,
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
	}); err != nil {
		t.Fatalf("add entry: %v", err)
	}
	attached, err := svc.AddCard(ctx, AddCardRequest{
		StrategyID: strategy.StrategyID,
		Type:       "exit.rule_trigger",
		Slots:      exitStopSlots(),
	})
	if err != nil {
		t.Fatalf("add exit: %v", err)
	}
	if len(attached.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(attached.Attachments))
	}

	validated, err := svc.ValidateStrategy(ctx, strategy.StrategyID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if validated.StatusHint != "ready" || validated.Compiled != nil {
		t.Fatalf("validate result: hint=%s compiled=%v", validated.StatusHint, validated.Compiled)
	}

	compiled, err := svc.CompileStrategy(ctx, strategy.StrategyID)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if compiled.StatusHint != "ready" || compiled.Compiled == nil {
		t.Fatalf("compile result: hint=%s compiled=%v", compiled.StatusHint, compiled.Compiled)
	}
	if len(compiled.Compiled.Cards) != 2 {
		t.Fatalf("compiled cards = %d, want 2", len(compiled.Compiled.Cards))
	}

	_, err = svc.CompileStrategy(ctx, "missing")
	if errs.CodeOf(err) != errs.CodeStrategyNotFound {
		t.Fatalf("code = %s, want STRATEGY_NOT_FOUND", errs.CodeOf(err))
	}
}

func TestGetStrategyWithCards(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	strategy, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "trend", Universe: []string{"BTC-USD"}})
	if err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	created, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
		StrategyID: strategy.StrategyID,
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	joined, err := svc.GetStrategyWithCards(ctx, strategy.StrategyID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.CardCount != 1 || len(joined.Cards) != 1 {
		t.Fatalf("card_count = %d", joined.CardCount)
	}
	card := joined.Cards[0]
	if card.CardID != created.Card.CardID || card.Role != "entry" || !card.Enabled {
		t.Fatalf("joined card: %+v", card)
	}

	if _, err := svc.DeleteCard(ctx, created.Card.CardID); err != nil {
		t.Fatalf("delete card: %v", err)
	}
	joined, err = svc.GetStrategyWithCards(ctx, strategy.StrategyID)
	if err != nil {
		t.Fatalf("join after delete: %v", err)
	}
	if joined.CardCount != 0 {
		t.Fatalf("card_count = %d, want 0 after card deletion", joined.CardCount)
	}
}

func TestListStrategiesSummaries(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "a", OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateStrategy(ctx, CreateStrategyRequest{Name: "b"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateCard(ctx, CreateCardRequest{
		Type:       "entry.trend_pullback",
		Slots:      trendPullbackSlots(),
		StrategyID: first.StrategyID,
	}); err != nil {
		t.Fatalf("create card: %v", err)
	}

	list, err := svc.ListStrategies(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Count != 2 || len(list.Strategies) != 2 {
		t.Fatalf("count = %d, want 2", list.Count)
	}
	if list.Strategies[0].Name != "a" || list.Strategies[0].AttachmentsCount != 1 {
		t.Fatalf("summary: %+v", list.Strategies[0])
	}
	if list.Strategies[1].AttachmentsCount != 0 {
		t.Fatalf("summary: %+v", list.Strategies[1])
	}
}

func hasIssue(issues []compiler.Issue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func mustLoadCard(t *testing.T, svc *Service, id string) *cardstore.Card {
	t.Helper()
	card, err := svc.cards.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("load card %s: %v", id, err)
	}
	return card
}
