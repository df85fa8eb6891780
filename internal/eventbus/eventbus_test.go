package eventbus

import (
	"testing"

	"github.com/cocommand/cocommand/pkg/models"
)

func TestPublishDeliversToUnfilteredSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe("", 4)
	defer sub.Close()

	b.Publish(models.Event{Type: models.EventSessionMessageStarted, SessionID: "s1"})

	select {
	case ev := <-sub.Events():
		if ev.SessionID != "s1" {
			t.Fatalf("expected session s1, got %q", ev.SessionID)
		}
		if ev.Sequence == 0 {
			t.Fatalf("expected a nonzero sequence to be stamped")
		}
	default:
		t.Fatalf("expected an event to be delivered")
	}
}

func TestPublishFiltersBySession(t *testing.T) {
	b := New()
	subA := b.Subscribe("a", 4)
	subB := b.Subscribe("b", 4)
	defer subA.Close()
	defer subB.Close()

	b.Publish(models.Event{Type: models.EventSessionMessageStarted, SessionID: "a"})

	select {
	case <-subA.Events():
	default:
		t.Fatalf("expected subscriber a to receive its session's event")
	}
	select {
	case <-subB.Events():
		t.Fatalf("expected subscriber b to not receive session a's event")
	default:
	}
}

func TestPublishDropsOldestOnLag(t *testing.T) {
	b := New()
	sub := b.Subscribe("", 2)
	defer sub.Close()

	b.Publish(models.Event{Type: models.EventSessionMessageStarted, RunID: "1"})
	b.Publish(models.Event{Type: models.EventSessionMessageStarted, RunID: "2"})
	b.Publish(models.Event{Type: models.EventSessionMessageStarted, RunID: "3"})

	first := <-sub.Events()
	second := <-sub.Events()
	if first.RunID != "2" || second.RunID != "3" {
		t.Fatalf("expected the oldest event to be dropped, got %q then %q", first.RunID, second.RunID)
	}
	if sub.Dropped() != 1 {
		t.Fatalf("expected Dropped() == 1, got %d", sub.Dropped())
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe("", 4)
	sub.Close()
	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers after Close, got %d", got)
	}
}
