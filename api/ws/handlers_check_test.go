package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stationops/firecheck/catalog"
	"github.com/stationops/firecheck/check"
	"github.com/stationops/firecheck/config"
	"github.com/stationops/firecheck/crew"
	"github.com/stationops/firecheck/events"
	"github.com/stationops/firecheck/lock"
	"github.com/stationops/firecheck/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCheckHandlers(t *testing.T) (*CheckHandlers, *testutil.Fixture, *check.Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	fx := testutil.SeedApparatus(t, db)
	c, _ := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	bus := events.NewBroadcaster(nil, 16, logger)
	locks := lock.NewManager(bus, logger)
	svc := check.NewService(db, catalog.NewReader(db), locks, bus, c, config.CheckConfig{
		MaxDuration:  time.Hour,
		ResumeWindow: 30 * time.Minute,
	}, logger)
	return NewCheckHandlers(svc, locks, bus, logger), fx, svc
}

func readPacket(t *testing.T, s *crew.Session) *crew.Packet {
	t.Helper()
	select {
	case data := <-s.SendChan:
		var pkt crew.Packet
		require.NoError(t, json.Unmarshal(data, &pkt))
		return &pkt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound packet")
		return nil
	}
}

func readPacketOfType(t *testing.T, s *crew.Session, typ string) *crew.Packet {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case data := <-s.SendChan:
			var pkt crew.Packet
			require.NoError(t, json.Unmarshal(data, &pkt))
			if pkt.Type == typ {
				return &pkt
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatalf("timed out waiting for %s packet", typ)
	return nil
}

func TestHandleLockAcquire_GrantAndDeny(t *testing.T) {
	h, fx, _ := newCheckHandlers(t)

	kim := newTestSession(10)
	ada := newTestSession(11)

	raw, _ := json.Marshal(lockPayload{ApparatusID: fx.Apparatus.ID, CompartmentID: fx.CompFront.ID})
	require.NoError(t, h.HandleLockAcquire(context.Background(), kim, raw))

	pkt := readPacket(t, kim)
	require.Equal(t, "lock_result", pkt.Type)
	var res lockResultPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &res))
	assert.True(t, res.Granted)
	require.NotNil(t, res.Holder)
	assert.Equal(t, int64(10), res.Holder.HolderID)

	// Second crew member is denied and told who holds the compartment.
	require.NoError(t, h.HandleLockAcquire(context.Background(), ada, raw))
	pkt = readPacket(t, ada)
	require.Equal(t, "lock_result", pkt.Type)
	require.NoError(t, json.Unmarshal(pkt.Payload, &res))
	assert.False(t, res.Granted)
	require.NotNil(t, res.Holder)
	assert.Equal(t, int64(10), res.Holder.HolderID)
}

func TestHandleLockTakeOver(t *testing.T) {
	h, fx, _ := newCheckHandlers(t)

	kim := newTestSession(10)
	ada := newTestSession(11)

	raw, _ := json.Marshal(lockPayload{ApparatusID: fx.Apparatus.ID, CompartmentID: fx.CompFront.ID})
	require.NoError(t, h.HandleLockAcquire(context.Background(), kim, raw))
	readPacket(t, kim)

	require.NoError(t, h.HandleLockTakeOver(context.Background(), ada, raw))
	pkt := readPacket(t, ada)
	var res lockResultPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &res))
	assert.True(t, res.Granted)
	assert.Equal(t, int64(11), res.Holder.HolderID)

	holder := h.locks.Holder(fx.Apparatus.ID, fx.CompFront.ID)
	require.NotNil(t, holder)
	assert.Equal(t, int64(11), holder.HolderID)
}

func TestHandleLockRelease(t *testing.T) {
	h, fx, _ := newCheckHandlers(t)

	kim := newTestSession(10)
	raw, _ := json.Marshal(lockPayload{ApparatusID: fx.Apparatus.ID, CompartmentID: fx.CompFront.ID})
	require.NoError(t, h.HandleLockAcquire(context.Background(), kim, raw))
	readPacket(t, kim)

	// Non-holder release is ignored.
	ada := newTestSession(11)
	require.NoError(t, h.HandleLockRelease(context.Background(), ada, raw))
	require.NotNil(t, h.locks.Holder(fx.Apparatus.ID, fx.CompFront.ID))

	require.NoError(t, h.HandleLockRelease(context.Background(), kim, raw))
	assert.Nil(t, h.locks.Holder(fx.Apparatus.ID, fx.CompFront.ID))
}

func TestHandleWatch_SnapshotAndEvents(t *testing.T) {
	h, fx, svc := newCheckHandlers(t)

	chk, err := svc.Start(context.Background(), fx.Apparatus.ID, fx.Station.ID, 10, "Kim Reyes")
	require.NoError(t, err)

	ada := newTestSession(11)
	raw, _ := json.Marshal(apparatusPayload{ApparatusID: fx.Apparatus.ID})
	require.NoError(t, h.HandleWatch(context.Background(), ada, raw))

	pkt := readPacketOfType(t, ada, "watch_state")
	var state watchStatePayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &state))
	require.NotNil(t, state.ActiveCheck)
	assert.Equal(t, chk.ID, state.ActiveCheck.ID)
	assert.Empty(t, state.Holds)
	assert.True(t, ada.Watching(fx.Apparatus.ID))

	// A lock change on the watched apparatus reaches the session.
	h.locks.Acquire(fx.Apparatus.ID, fx.CompFront.ID, 10, "Kim Reyes")
	evPkt := readPacketOfType(t, ada, string(events.TypeLockChanged))
	var ev events.Event
	require.NoError(t, json.Unmarshal(evPkt.Payload, &ev))
	assert.Equal(t, fx.Apparatus.ID, ev.ApparatusID)

	// Unwatch stops delivery.
	require.NoError(t, h.HandleUnwatch(context.Background(), ada, raw))
	assert.False(t, ada.Watching(fx.Apparatus.ID))
	assert.Equal(t, 0, h.bus.SubscriberCount(fx.Apparatus.ID))
}

func TestHandleWatch_BadPayload(t *testing.T) {
	h, _, _ := newCheckHandlers(t)
	s := newTestSession(10)

	require.NoError(t, h.HandleWatch(context.Background(), s, json.RawMessage(`{"apparatus_id":0}`)))
	pkt := readPacket(t, s)
	assert.Equal(t, "error", pkt.Type)
}
