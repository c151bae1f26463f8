package crew

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager maintains the registry of all connected crew Sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session // accountID → session
	logger   *zap.Logger
}

// NewManager creates a new crew session Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register adds a session. If a previous session exists for the same
// account, it is closed first (handles duplicate login / reconnect).
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[s.AccountID]; ok {
		old.Close()
		m.logger.Info("duplicate session displaced",
			zap.Int64("account_id", s.AccountID))
	}
	m.sessions[s.AccountID] = s
	m.logger.Info("crew session registered",
		zap.Int64("account_id", s.AccountID),
		zap.String("display_name", s.DisplayName))
}

// Unregister removes a session from the registry. The delete is guarded
// by identity: a displaced session's late disconnect must not evict the
// session that replaced it.
func (m *Manager) Unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.AccountID]; !ok || cur != s {
		return
	}
	delete(m.sessions, s.AccountID)
	m.logger.Info("crew session unregistered", zap.Int64("account_id", s.AccountID))
}

// Get returns the session for an account, or nil if not connected.
func (m *Manager) Get(accountID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[accountID]
}

// IsOnline reports whether an account is currently connected.
func (m *Manager) IsOnline(accountID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[accountID]
	return ok
}

// Count returns the number of currently connected sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot slice of all current sessions.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// BroadcastAll sends a raw pre-encoded packet to every connected session.
// Uses non-blocking send to prevent slow connections from blocking the broadcast.
func (m *Manager) BroadcastAll(data []byte) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		select {
		case s.SendChan <- data:
		default:
			m.logger.Warn("broadcast dropped packet for slow client",
				zap.Int64("account_id", s.AccountID))
		}
	}
}

// BroadcastToAll sends a packet to every connected session (typed version).
func (m *Manager) BroadcastToAll(pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		m.logger.Error("failed to marshal broadcast packet", zap.Error(err))
		return
	}
	m.BroadcastAll(data)
}

// BroadcastSystemMessage sends a station-wide system notice to all
// connected crew members.
func (m *Manager) BroadcastSystemMessage(message string) {
	type noticePayload struct {
		Message string `json:"message"`
	}
	payload, _ := json.Marshal(noticePayload{Message: message})
	m.BroadcastToAll(&Packet{Type: "system_notice", Payload: payload})
}

// CloseAll gracefully closes all connected sessions.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		m.mu.RLock()
		count := len(m.sessions)
		m.mu.RUnlock()
		if count == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
