package crew

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadlineS = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session represents a connected crew member's WebSocket session. A
// session may watch any number of apparatus event streams at once; the
// per-apparatus unsubscribe functions are tracked here so a disconnect
// tears all of them down. Compartment locks are NOT tied to the session:
// a dropped connection keeps its holds (resolved by take-over).
type Session struct {
	AccountID   int64
	StationID   int64
	DisplayName string
	Role        string

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu       sync.Mutex
	watching map[int64]func() // apparatusID → event unsubscribe

	logger *zap.Logger
}

// NewSession creates a Session with its write goroutine started.
func NewSession(accountID, stationID int64, displayName, role string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		AccountID:   accountID,
		StationID:   stationID,
		DisplayName: displayName,
		Role:        role,
		Conn:        conn,
		SendChan:    make(chan []byte, sendChanBuf),
		Done:        make(chan struct{}),
		watching:    make(map[int64]func()),
		logger:      logger,
	}
	go s.writePump()
	return s
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("account_id", s.AccountID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and sends it non-blocking. Drops if channel full or closed.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping packet",
				zap.Int64("account_id", s.AccountID),
				zap.String("type", pkt.Type))
		}
	}
}

// SendRaw sends raw bytes non-blocking. Drops if channel full or closed.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping raw packet",
				zap.Int64("account_id", s.AccountID))
		}
	}
}

// Watch records the unsubscribe function for a newly watched apparatus.
// If the apparatus was already watched, the stale subscription is
// cancelled first.
func (s *Session) Watch(apparatusID int64, unsub func()) {
	s.mu.Lock()
	if s.watching == nil {
		s.watching = make(map[int64]func())
	}
	old := s.watching[apparatusID]
	s.watching[apparatusID] = unsub
	s.mu.Unlock()
	if old != nil {
		old()
	}
}

// Unwatch cancels the subscription for one apparatus. Reports whether the
// apparatus was being watched.
func (s *Session) Unwatch(apparatusID int64) bool {
	s.mu.Lock()
	unsub, ok := s.watching[apparatusID]
	delete(s.watching, apparatusID)
	s.mu.Unlock()
	if ok {
		unsub()
	}
	return ok
}

// UnwatchAll cancels every apparatus subscription. Called on disconnect.
func (s *Session) UnwatchAll() {
	s.mu.Lock()
	unsubs := make([]func(), 0, len(s.watching))
	for _, u := range s.watching {
		unsubs = append(unsubs, u)
	}
	s.watching = make(map[int64]func())
	s.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// Watching reports whether the session watches the given apparatus.
func (s *Session) Watching(apparatusID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watching[apparatusID]
	return ok
}

// Close signals the writePump to shut down and drops all watches.
func (s *Session) Close() {
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
	s.UnwatchAll()
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadlineS))
}

// SendHeartbeatPong sends a pong packet in response to a client ping.
func (s *Session) SendHeartbeatPong(clientTS int64) {
	type pongPayload struct {
		ClientTS int64 `json:"client_ts"`
		ServerTS int64 `json:"server_ts"`
	}
	payload, _ := json.Marshal(pongPayload{
		ClientTS: clientTS,
		ServerTS: time.Now().UnixMilli(),
	})
	s.Send(&Packet{Type: "pong", Payload: payload})
}
