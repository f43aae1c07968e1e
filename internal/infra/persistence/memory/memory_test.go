package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vibetrade/studio/internal/domain/strategystore"
)

func seedStrategy(t *testing.T, store *StrategyStore, owner, thread, name string) *strategystore.Strategy {
	t.Helper()
	created, err := store.Create(context.Background(), &strategystore.Strategy{
		OwnerID:  owner,
		ThreadID: thread,
		Name:     name,
		Status:   strategystore.StatusDraft,
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return created
}

func TestFindByOwnerFiltersInInsertionOrder(t *testing.T) {
	store := NewStrategyStore()
	ctx := context.Background()

	first := seedStrategy(t, store, "agent-1", "", "first")
	seedStrategy(t, store, "agent-2", "", "other")
	second := seedStrategy(t, store, "agent-1", "", "second")

	owned, err := store.FindByOwner(ctx, "agent-1")
	if err != nil {
		t.Fatalf("FindByOwner: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("len = %d, want 2", len(owned))
	}
	if owned[0].ID != first.ID || owned[1].ID != second.ID {
		t.Fatalf("order = %s, %s; want %s, %s", owned[0].ID, owned[1].ID, first.ID, second.ID)
	}

	none, err := store.FindByOwner(ctx, "agent-3")
	if err != nil {
		t.Fatalf("FindByOwner unknown owner: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("unknown owner returned %d strategies", len(none))
	}
}

func TestFindByOwnerReturnsCopies(t *testing.T) {
	store := NewStrategyStore()
	ctx := context.Background()

	seedStrategy(t, store, "agent-1", "", "mine")

	owned, err := store.FindByOwner(ctx, "agent-1")
	if err != nil {
		t.Fatalf("FindByOwner: %v", err)
	}
	owned[0].Name = "mutated"

	reread, err := store.Get(ctx, owned[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reread.Name != "mine" {
		t.Fatalf("stored name changed through returned copy: %q", reread.Name)
	}
}

func TestFindByThreadReturnsFirstMatch(t *testing.T) {
	store := NewStrategyStore()
	ctx := context.Background()

	first := seedStrategy(t, store, "agent-1", "thread-a", "first")
	seedStrategy(t, store, "agent-1", "thread-a", "second")

	found, err := store.FindByThread(ctx, "thread-a")
	if err != nil {
		t.Fatalf("FindByThread: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("FindByThread = %s, want earliest %s", found.ID, first.ID)
	}
}

func TestFindByThreadMissing(t *testing.T) {
	store := NewStrategyStore()

	_, err := store.FindByThread(context.Background(), "no-such-thread")
	if !errors.Is(err, strategystore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
