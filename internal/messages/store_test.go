package messages

import (
	"context"
	"testing"
	"time"

	"github.com/cocommand/cocommand/pkg/models"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStoreInfoAndListOrdering(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			ids := []string{"m1", "m2", "m3"}
			for i, id := range ids {
				info := models.MessageInfo{
					ID:        id,
					SessionID: "s1",
					Role:      models.RoleUser,
					CreatedAt: now.Add(time.Duration(i) * time.Second),
				}
				if err := store.StoreInfo(ctx, info); err != nil {
					t.Fatalf("StoreInfo(%s): %v", id, err)
				}
			}

			got, err := store.List(ctx, "s1")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(got))
			}
			for i, id := range ids {
				if got[i].Info.ID != id {
					t.Errorf("message %d: expected id %q, got %q", i, id, got[i].Info.ID)
				}
			}
		})
	}
}

func TestStorePartUpsertAndOrder(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info := models.MessageInfo{ID: "m1", SessionID: "s1", Role: models.RoleAssistant, CreatedAt: time.Now()}
			if err := store.StoreInfo(ctx, info); err != nil {
				t.Fatalf("StoreInfo: %v", err)
			}

			part1 := models.MessagePart{ID: "p1", MessageID: "m1", SessionID: "s1", Type: models.PartText, CreatedAt: time.Now(), Text: &models.TextPart{Text: "hello"}}
			part2 := models.MessagePart{ID: "p2", MessageID: "m1", SessionID: "s1", Type: models.PartText, CreatedAt: time.Now(), Text: &models.TextPart{Text: "world"}}
			if err := store.StorePart(ctx, part1); err != nil {
				t.Fatalf("StorePart(p1): %v", err)
			}
			if err := store.StorePart(ctx, part2); err != nil {
				t.Fatalf("StorePart(p2): %v", err)
			}

			// Upsert: re-store p1 with updated text.
			part1.Text.Text = "hello again"
			if err := store.StorePart(ctx, part1); err != nil {
				t.Fatalf("StorePart(p1 upsert): %v", err)
			}

			msg, ok, err := store.Get(ctx, "s1", "m1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !ok {
				t.Fatalf("expected message to exist")
			}
			if len(msg.Parts) != 2 {
				t.Fatalf("expected 2 parts, got %d", len(msg.Parts))
			}
			if msg.Parts[0].ID != "p1" || msg.Parts[1].ID != "p2" {
				t.Fatalf("expected parts in id order, got %v", []string{msg.Parts[0].ID, msg.Parts[1].ID})
			}
			if msg.Parts[0].Text.Text != "hello again" {
				t.Errorf("expected upsert to overwrite text, got %q", msg.Parts[0].Text.Text)
			}
		})
	}
}

func TestGetMissingMessage(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(context.Background(), "s1", "nope")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if ok {
				t.Fatalf("expected ok=false for missing message")
			}
		})
	}
}
