package ws

import (
	"context"
	"encoding/json"

	"github.com/stationops/firecheck/check"
	"github.com/stationops/firecheck/crew"
	"github.com/stationops/firecheck/events"
	"github.com/stationops/firecheck/lock"
	"github.com/stationops/firecheck/model"
	"go.uber.org/zap"
)

// CheckHandlers handles live check-session WebSocket messages: watching
// apparatus event streams and the compartment lock flow.
type CheckHandlers struct {
	svc    *check.Service
	locks  *lock.Manager
	bus    *events.Broadcaster
	logger *zap.Logger
}

// NewCheckHandlers creates CheckHandlers.
func NewCheckHandlers(svc *check.Service, locks *lock.Manager, bus *events.Broadcaster, logger *zap.Logger) *CheckHandlers {
	return &CheckHandlers{svc: svc, locks: locks, bus: bus, logger: logger}
}

// RegisterHandlers registers check WS handlers.
func (h *CheckHandlers) RegisterHandlers(r *Router) {
	r.On("ping", h.HandlePing)
	r.On("watch_apparatus", h.HandleWatch)
	r.On("unwatch_apparatus", h.HandleUnwatch)
	r.On("lock_acquire", h.HandleLockAcquire)
	r.On("lock_takeover", h.HandleLockTakeOver)
	r.On("lock_release", h.HandleLockRelease)
}

type pingPayload struct {
	ClientTS int64 `json:"client_ts"`
}

// HandlePing answers a client heartbeat.
func (h *CheckHandlers) HandlePing(_ context.Context, s *crew.Session, raw json.RawMessage) error {
	var req pingPayload
	_ = json.Unmarshal(raw, &req)
	s.SendHeartbeatPong(req.ClientTS)
	return nil
}

type apparatusPayload struct {
	ApparatusID int64 `json:"apparatus_id"`
}

type watchStatePayload struct {
	ApparatusID int64                 `json:"apparatus_id"`
	ActiveCheck *model.InventoryCheck `json:"active_check,omitempty"`
	Holds       []*lock.Hold          `json:"holds"`
}

// HandleWatch subscribes the session to an apparatus event stream and
// replies with a state snapshot so the client can render without waiting
// for the next event.
func (h *CheckHandlers) HandleWatch(ctx context.Context, s *crew.Session, raw json.RawMessage) error {
	var req apparatusPayload
	if err := json.Unmarshal(raw, &req); err != nil || req.ApparatusID <= 0 {
		replyError(s, "bad_apparatus_id")
		return nil
	}

	unsub := h.bus.Subscribe(req.ApparatusID, func(ev *events.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		s.Send(&crew.Packet{Type: string(ev.Type), Payload: data})
	})
	s.Watch(req.ApparatusID, unsub)

	active, err := h.svc.ActiveForApparatus(ctx, req.ApparatusID)
	if err != nil {
		h.logger.Warn("watch snapshot failed",
			zap.Int64("apparatus_id", req.ApparatusID),
			zap.Error(err))
	}
	state, _ := json.Marshal(watchStatePayload{
		ApparatusID: req.ApparatusID,
		ActiveCheck: active,
		Holds:       h.locks.Holds(req.ApparatusID),
	})
	s.Send(&crew.Packet{Type: "watch_state", Payload: state})
	return nil
}

// HandleUnwatch drops the subscription for one apparatus.
func (h *CheckHandlers) HandleUnwatch(_ context.Context, s *crew.Session, raw json.RawMessage) error {
	var req apparatusPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	s.Unwatch(req.ApparatusID)
	return nil
}

type lockPayload struct {
	ApparatusID   int64 `json:"apparatus_id"`
	CompartmentID int64 `json:"compartment_id"`
}

type lockResultPayload struct {
	ApparatusID   int64      `json:"apparatus_id"`
	CompartmentID int64      `json:"compartment_id"`
	Granted       bool       `json:"granted"`
	Holder        *lock.Hold `json:"holder,omitempty"`
}

// HandleLockAcquire tries to take a compartment lock. A denial carries the
// current holder so the client can offer the take-over prompt.
func (h *CheckHandlers) HandleLockAcquire(_ context.Context, s *crew.Session, raw json.RawMessage) error {
	var req lockPayload
	if err := json.Unmarshal(raw, &req); err != nil || req.ApparatusID <= 0 || req.CompartmentID <= 0 {
		replyError(s, "bad_lock_request")
		return nil
	}

	granted, current := h.locks.Acquire(req.ApparatusID, req.CompartmentID, s.AccountID, s.DisplayName)
	result := lockResultPayload{
		ApparatusID:   req.ApparatusID,
		CompartmentID: req.CompartmentID,
	}
	if granted != nil {
		result.Granted = true
		result.Holder = granted
	} else {
		result.Holder = current
	}
	data, _ := json.Marshal(result)
	s.Send(&crew.Packet{Type: "lock_result", Payload: data})
	return nil
}

// HandleLockTakeOver replaces the current holder after the client has
// confirmed the take-over with the user.
func (h *CheckHandlers) HandleLockTakeOver(_ context.Context, s *crew.Session, raw json.RawMessage) error {
	var req lockPayload
	if err := json.Unmarshal(raw, &req); err != nil || req.ApparatusID <= 0 || req.CompartmentID <= 0 {
		replyError(s, "bad_lock_request")
		return nil
	}

	newHold, _ := h.locks.TakeOver(req.ApparatusID, req.CompartmentID, s.AccountID, s.DisplayName)
	data, _ := json.Marshal(lockResultPayload{
		ApparatusID:   req.ApparatusID,
		CompartmentID: req.CompartmentID,
		Granted:       true,
		Holder:        newHold,
	})
	s.Send(&crew.Packet{Type: "lock_result", Payload: data})
	return nil
}

// HandleLockRelease releases a compartment lock held by the caller.
func (h *CheckHandlers) HandleLockRelease(_ context.Context, s *crew.Session, raw json.RawMessage) error {
	var req lockPayload
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil
	}
	h.locks.Release(req.ApparatusID, req.CompartmentID, s.AccountID)
	return nil
}

// replyError sends a generic error packet back to the client.
func replyError(s *crew.Session, msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	s.Send(&crew.Packet{Type: "error", Payload: payload})
}
