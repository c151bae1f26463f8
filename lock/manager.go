package lock

import (
	"sync"
	"time"

	"github.com/stationops/firecheck/events"
	"go.uber.org/zap"
)

// Hold is one exclusive compartment hold. Holds live only in memory: they
// coordinate who is verifying which compartment, they do not guard data
// integrity (the per-item uniqueness constraint does that).
type Hold struct {
	ApparatusID   int64     `json:"apparatus_id"`
	CompartmentID int64     `json:"compartment_id"`
	HolderID      int64     `json:"holder_id"`
	HolderName    string    `json:"holder_name"`
	AcquiredAt    time.Time `json:"acquired_at"`
}

// Manager grants exclusive, revocable compartment holds during a live
// check session. There is no hold expiry: a stale hold from a dead client
// is resolved through the take-over flow, and all holds for an apparatus
// are cleared when its session terminates.
type Manager struct {
	mu     sync.RWMutex
	held   map[int64]map[int64]*Hold // apparatusID → compartmentID → hold
	events *events.Broadcaster
	logger *zap.Logger
}

// NewManager creates a lock Manager publishing through the given
// broadcaster.
func NewManager(b *events.Broadcaster, logger *zap.Logger) *Manager {
	return &Manager{
		held:   make(map[int64]map[int64]*Hold),
		events: b,
		logger: logger,
	}
}

// Acquire grants the compartment to the caller if it is free. If another
// user holds it, the current hold is returned instead so the caller can
// offer a take-over; same-user re-acquire refreshes nothing and succeeds.
func (m *Manager) Acquire(apparatusID, compartmentID, userID int64, displayName string) (granted *Hold, current *Hold) {
	m.mu.Lock()
	comps, ok := m.held[apparatusID]
	if !ok {
		comps = make(map[int64]*Hold)
		m.held[apparatusID] = comps
	}
	if cur, ok := comps[compartmentID]; ok && cur.HolderID != userID {
		m.mu.Unlock()
		return nil, cur
	} else if ok {
		m.mu.Unlock()
		return cur, nil
	}
	h := &Hold{
		ApparatusID:   apparatusID,
		CompartmentID: compartmentID,
		HolderID:      userID,
		HolderName:    displayName,
		AcquiredAt:    time.Now(),
	}
	comps[compartmentID] = h
	m.mu.Unlock()

	m.publishLockChanged(apparatusID, compartmentID, h)
	return h, nil
}

// TakeOver unconditionally replaces the current holder. Meant to be called
// only after explicit user confirmation. Returns the new hold and the
// previous one (nil if the compartment was free).
func (m *Manager) TakeOver(apparatusID, compartmentID, newUserID int64, newDisplayName string) (*Hold, *Hold) {
	h := &Hold{
		ApparatusID:   apparatusID,
		CompartmentID: compartmentID,
		HolderID:      newUserID,
		HolderName:    newDisplayName,
		AcquiredAt:    time.Now(),
	}

	m.mu.Lock()
	comps, ok := m.held[apparatusID]
	if !ok {
		comps = make(map[int64]*Hold)
		m.held[apparatusID] = comps
	}
	prev := comps[compartmentID]
	comps[compartmentID] = h
	m.mu.Unlock()

	if prev != nil {
		m.events.Publish(&events.Event{
			Type:        events.TypeCheckTakeOver,
			ApparatusID: apparatusID,
			Payload: events.TakeOverPayload{
				CompartmentID: compartmentID,
				PreviousID:    prev.HolderID,
				PreviousName:  prev.HolderName,
				NewID:         newUserID,
				NewName:       newDisplayName,
			},
		})
		m.logger.Info("compartment taken over",
			zap.Int64("apparatus_id", apparatusID),
			zap.Int64("compartment_id", compartmentID),
			zap.String("previous", prev.HolderName),
			zap.String("new", newDisplayName))
	}
	m.publishLockChanged(apparatusID, compartmentID, h)
	return h, prev
}

// Release clears the hold only if the caller is the current holder; any
// other caller is a no-op.
func (m *Manager) Release(apparatusID, compartmentID, userID int64) {
	m.mu.Lock()
	comps := m.held[apparatusID]
	cur, ok := comps[compartmentID]
	if !ok || cur.HolderID != userID {
		m.mu.Unlock()
		return
	}
	delete(comps, compartmentID)
	if len(comps) == 0 {
		delete(m.held, apparatusID)
	}
	m.mu.Unlock()

	m.publishLockChanged(apparatusID, compartmentID, nil)
}

// ReleaseAll clears every hold on an apparatus. Called when its check
// session reaches a terminal state so no locks dangle across sessions.
func (m *Manager) ReleaseAll(apparatusID int64) {
	m.mu.Lock()
	comps := m.held[apparatusID]
	released := make([]int64, 0, len(comps))
	for compartmentID := range comps {
		released = append(released, compartmentID)
	}
	delete(m.held, apparatusID)
	m.mu.Unlock()

	for _, compartmentID := range released {
		m.publishLockChanged(apparatusID, compartmentID, nil)
	}
}

// Holder returns the current hold on a compartment, or nil if free.
func (m *Manager) Holder(apparatusID, compartmentID int64) *Hold {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.held[apparatusID][compartmentID]
}

// Holds returns a snapshot of all current holds on an apparatus, used to
// render lock state for a newly connected watcher.
func (m *Manager) Holds(apparatusID int64) []*Hold {
	m.mu.RLock()
	defer m.mu.RUnlock()
	comps := m.held[apparatusID]
	out := make([]*Hold, 0, len(comps))
	for _, h := range comps {
		out = append(out, h)
	}
	return out
}

func (m *Manager) publishLockChanged(apparatusID, compartmentID int64, h *Hold) {
	p := events.LockChangedPayload{CompartmentID: compartmentID}
	if h != nil {
		p.Held = true
		p.HolderID = h.HolderID
		p.HolderName = h.HolderName
	}
	m.events.Publish(&events.Event{
		Type:        events.TypeLockChanged,
		ApparatusID: apparatusID,
		Payload:     p,
	})
}
