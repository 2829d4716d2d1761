package services

import (
	"sync"
	"time"

	"github.com/debatehub/backend/internal/models"
)

// Moderation event types.
const (
	EventRecordCreated  = "record.created"
	EventRecordReviewed = "record.reviewed"
	EventRecordFlagged  = "record.flagged"
)

// ModerationEvent is a real-time update about one moderation record.
type ModerationEvent struct {
	Type                string    `json:"type"`
	ID                  uint      `json:"id"`
	ContentRef          string    `json:"content_ref,omitempty"`
	Status              string    `json:"status"`
	RiskLevel           string    `json:"risk_level"`
	RequiresHumanReview bool      `json:"requires_human_review"`
	ReviewCount         int       `json:"review_count"`
	ReviewedBy          string    `json:"reviewed_by,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

func newModerationEvent(eventType string, r *models.ModerationRecord) ModerationEvent {
	return ModerationEvent{
		Type:                eventType,
		ID:                  r.ID,
		ContentRef:          r.ContentRef,
		Status:              r.Status,
		RiskLevel:           r.RiskLevel,
		RequiresHumanReview: r.RequiresHumanReview,
		ReviewCount:         r.ReviewCount,
		ReviewedBy:          r.ReviewedBy,
		Timestamp:           time.Now(),
	}
}

// SSEHub manages SSE client connections and event broadcasting
type SSEHub struct {
	clients map[string]chan ModerationEvent
	mu      sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients: make(map[string]chan ModerationEvent),
	}
}

// Subscribe registers a new client and returns a channel for receiving events
func (h *SSEHub) Subscribe(clientID string) <-chan ModerationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan ModerationEvent, 100)
	h.clients[clientID] = ch
	return ch
}

func (h *SSEHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts an event to all connected clients. Slow clients miss
// events rather than block the publisher.
func (h *SSEHub) Publish(event ModerationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var (
	globalSSEHub *SSEHub
	sseHubOnce   sync.Once
)

// GetSSEHub returns the global SSE hub singleton
func GetSSEHub() *SSEHub {
	sseHubOnce.Do(func() {
		globalSSEHub = NewSSEHub()
	})
	return globalSSEHub
}
