package services

import (
	"testing"
	"time"

	"github.com/debatehub/backend/internal/models"
)

func TestSSEHub_NewSSEHub(t *testing.T) {
	hub := NewSSEHub()
	if hub == nil {
		t.Fatal("NewSSEHub should not return nil")
	}
	if hub.clients == nil {
		t.Error("clients map should be initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("new hub should have 0 clients, got %d", hub.ClientCount())
	}
}

func TestSSEHub_Subscribe(t *testing.T) {
	hub := NewSSEHub()

	ch := hub.Subscribe("client1")
	if ch == nil {
		t.Error("Subscribe should return a channel")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}

	ch2 := hub.Subscribe("client2")
	if ch2 == nil {
		t.Error("Subscribe should return a channel")
	}
	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := NewSSEHub()

	hub.Subscribe("client1")
	hub.Subscribe("client2")

	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client1")
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unsubscribe, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("nonexistent")
	if hub.ClientCount() != 1 {
		t.Errorf("unsubscribing nonexistent should not affect count, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client2")
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestSSEHub_Publish(t *testing.T) {
	hub := NewSSEHub()

	ch := hub.Subscribe("client1")

	event := ModerationEvent{
		Type:                EventRecordFlagged,
		ID:                  7,
		Status:              "REJECTED",
		RiskLevel:           "HIGH",
		RequiresHumanReview: true,
	}

	hub.Publish(event)

	select {
	case received := <-ch:
		if received.ID != event.ID {
			t.Errorf("ID = %d, expected %d", received.ID, event.ID)
		}
		if received.Type != EventRecordFlagged {
			t.Errorf("Type = %q, expected %q", received.Type, EventRecordFlagged)
		}
		if !received.RequiresHumanReview {
			t.Error("RequiresHumanReview should be carried through")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for event")
	}
}

func TestSSEHub_PublishMultipleClients(t *testing.T) {
	hub := NewSSEHub()

	ch1 := hub.Subscribe("client1")
	ch2 := hub.Subscribe("client2")

	hub.Publish(ModerationEvent{ID: 1, Status: "APPROVED"})

	for i, ch := range []<-chan ModerationEvent{ch1, ch2} {
		select {
		case received := <-ch:
			if received.ID != 1 {
				t.Errorf("client%d: ID = %d, expected 1", i+1, received.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client%d: timed out waiting for event", i+1)
		}
	}
}

func TestSSEHub_NonBlockingPublish(t *testing.T) {
	hub := NewSSEHub()

	hub.Subscribe("slow_client")

	for i := 0; i < 200; i++ {
		hub.Publish(ModerationEvent{ID: uint(i)})
	}
}

func TestNewModerationEvent(t *testing.T) {
	record := &models.ModerationRecord{
		ID:                  42,
		ContentRef:          "argument-9",
		Status:              "FLAGGED",
		RiskLevel:           "CRITICAL",
		RequiresHumanReview: true,
		ReviewCount:         2,
		ReviewedBy:          "mod-1",
	}

	event := newModerationEvent(EventRecordReviewed, record)

	if event.ID != 42 || event.ContentRef != "argument-9" {
		t.Errorf("identity = %d/%q, expected 42/argument-9", event.ID, event.ContentRef)
	}
	if event.Status != "FLAGGED" || event.RiskLevel != "CRITICAL" {
		t.Errorf("status/risk = %s/%s, expected FLAGGED/CRITICAL", event.Status, event.RiskLevel)
	}
	if event.ReviewCount != 2 || event.ReviewedBy != "mod-1" {
		t.Errorf("review fields = %d/%q, expected 2/mod-1", event.ReviewCount, event.ReviewedBy)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestGetSSEHub_Singleton(t *testing.T) {
	hub1 := GetSSEHub()
	hub2 := GetSSEHub()

	if hub1 != hub2 {
		t.Error("GetSSEHub should return the same instance")
	}
}
