package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stationops/firecheck/cache"
	"go.uber.org/zap"
)

// Type identifies a session event variant.
type Type string

const (
	TypeCheckStarted   Type = "check_started"
	TypeItemVerified   Type = "item_verified"
	TypeLockChanged    Type = "lock_changed"
	TypeCheckTakeOver  Type = "check_takeover"
	TypeCheckCompleted Type = "check_completed"
	TypeCheckAbandoned Type = "check_abandoned"
	TypeCheckResumed   Type = "check_resumed"
)

// Event is one session event scoped to a single apparatus. Events are
// ephemeral: delivery is best-effort and there is no replay.
type Event struct {
	Type        Type        `json:"type"`
	ApparatusID int64       `json:"apparatus_id"`
	Payload     interface{} `json:"payload,omitempty"`
	At          time.Time   `json:"at"`
}

// Handler receives events for one watched apparatus. Handlers run on the
// subscriber's own dispatch goroutine, never on the publisher's.
type Handler func(*Event)

// Channel returns the pub/sub mirror channel name for an apparatus.
func Channel(apparatusID int64) string {
	return fmt.Sprintf("apparatus:%d", apparatusID)
}

type subscriber struct {
	ch chan *Event
}

// Broadcaster fans session events out to all subscribers watching an
// apparatus. Publish never blocks on a slow subscriber: each subscriber
// drains its own buffered channel, and overflow drops the event (clients
// reconcile by re-reading state). Events are also mirrored as JSON to the
// cache.PubSub channel "apparatus:<id>" for SSE observers and, with Redis
// configured, other nodes.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[int64]map[int64]*subscriber // apparatusID → token → subscriber
	nextToken int64
	buf       int
	pubsub    cache.PubSub
	logger    *zap.Logger
}

// NewBroadcaster creates a Broadcaster. pubsub may be nil to disable the
// mirror (tests).
func NewBroadcaster(pubsub cache.PubSub, buf int, logger *zap.Logger) *Broadcaster {
	if buf <= 0 {
		buf = 64
	}
	return &Broadcaster{
		subs:   make(map[int64]map[int64]*subscriber),
		buf:    buf,
		pubsub: pubsub,
		logger: logger,
	}
}

// Subscribe registers a handler for one apparatus and returns an
// unsubscribe function. Unsubscribing the last handler for an apparatus
// releases its subscriber set.
func (b *Broadcaster) Subscribe(apparatusID int64, h Handler) func() {
	sub := &subscriber{ch: make(chan *Event, b.buf)}

	b.mu.Lock()
	b.nextToken++
	token := b.nextToken
	set, ok := b.subs[apparatusID]
	if !ok {
		set = make(map[int64]*subscriber)
		b.subs[apparatusID] = set
	}
	set[token] = sub
	b.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			h(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[apparatusID]; ok {
				delete(set, token)
				if len(set) == 0 {
					delete(b.subs, apparatusID)
				}
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers ev to all current subscribers of ev.ApparatusID.
func (b *Broadcaster) Publish(ev *Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	set := b.subs[ev.ApparatusID]
	targets := make([]*subscriber, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				zap.Int64("apparatus_id", ev.ApparatusID),
				zap.String("type", string(ev.Type)))
		}
	}

	if b.pubsub != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			b.logger.Error("event marshal failed", zap.Error(err))
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := b.pubsub.Publish(ctx, Channel(ev.ApparatusID), string(data)); err != nil {
				b.logger.Warn("event mirror publish failed", zap.Error(err))
			}
		}()
	}
}

// SubscriberCount returns the number of subscribers for an apparatus.
func (b *Broadcaster) SubscriberCount(apparatusID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[apparatusID])
}

// ---- payloads ----

// ItemVerifiedPayload announces one recorded verification and the updated
// session counters.
type ItemVerifiedPayload struct {
	CheckID           int64  `json:"check_id"`
	CompartmentID     int64  `json:"compartment_id"`
	EquipmentItemID   *int64 `json:"equipment_item_id,omitempty"`
	ConsumableStockID *int64 `json:"consumable_stock_id,omitempty"`
	Status            string `json:"status"`
	VerifiedBy        int64  `json:"verified_by"`
	VerifiedByName    string `json:"verified_by_name"`
	VerifiedCount     int    `json:"verified_count"`
	IssuesFoundCount  int    `json:"issues_found_count"`
	TotalItems        int    `json:"total_items"`
}

// LockChangedPayload announces a compartment lock grant, release or
// replacement. Held=false means the compartment is now free.
type LockChangedPayload struct {
	CompartmentID int64  `json:"compartment_id"`
	Held          bool   `json:"held"`
	HolderID      int64  `json:"holder_id,omitempty"`
	HolderName    string `json:"holder_name,omitempty"`
}

// TakeOverPayload names both sides of a compartment take-over.
type TakeOverPayload struct {
	CompartmentID int64  `json:"compartment_id"`
	PreviousID    int64  `json:"previous_id"`
	PreviousName  string `json:"previous_name"`
	NewID         int64  `json:"new_id"`
	NewName       string `json:"new_name"`
}

// CheckStartedPayload announces a new session on the apparatus.
type CheckStartedPayload struct {
	CheckID       int64  `json:"check_id"`
	StartedBy     int64  `json:"started_by"`
	StartedByName string `json:"started_by_name"`
	TotalItems    int    `json:"total_items"`
}

// CheckCompletedPayload announces session completion with final counters.
type CheckCompletedPayload struct {
	CheckID          int64 `json:"check_id"`
	VerifiedCount    int   `json:"verified_count"`
	TotalItems       int   `json:"total_items"`
	IssuesFoundCount int   `json:"issues_found_count"`
}

// CheckAbandonedPayload announces an abandonment and its reason.
type CheckAbandonedPayload struct {
	CheckID int64  `json:"check_id"`
	Reason  string `json:"reason"`
}

// CheckResumedPayload announces that the original checker resumed an
// auto-abandoned session.
type CheckResumedPayload struct {
	CheckID   int64 `json:"check_id"`
	ResumedBy int64 `json:"resumed_by"`
}
