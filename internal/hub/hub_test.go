package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/logger"
)

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, id domain.Identity, shipmentID string) error {
	return nil
}

type denyAll struct{}

func (denyAll) Authorize(ctx context.Context, id domain.Identity, shipmentID string) error {
	return domain.ErrUnauthorized
}

func courier(subject string) domain.Identity {
	return domain.Identity{SubjectID: subject, Role: domain.RoleCourier, OrgID: "org_1"}
}

func locationEvent(shipmentID string) domain.Event {
	return domain.Event{
		Type:       domain.EventLocationUpdate,
		ShipmentID: shipmentID,
		Timestamp:  time.Now(),
	}
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.send:
		return frame
	default:
		t.Fatal("expected a frame on the send channel")
		return nil
	}
}

func TestSubscribeAndPublish(t *testing.T) {
	h := New(allowAll{}, 8, logger.Discard())
	c := NewClient(h, nil, courier("courier_1"))

	require.NoError(t, h.Subscribe(context.Background(), c, "ship_1"))
	assert.Equal(t, 1, h.subscriberCount("ship_1"))

	h.Publish("ship_1", locationEvent("ship_1"))

	var ev domain.Event
	require.NoError(t, json.Unmarshal(receive(t, c), &ev))
	assert.Equal(t, domain.EventLocationUpdate, ev.Type)
	assert.Equal(t, "ship_1", ev.ShipmentID)
}

func TestPublishIsScopedToRoom(t *testing.T) {
	h := New(allowAll{}, 8, logger.Discard())
	a := NewClient(h, nil, courier("courier_1"))
	b := NewClient(h, nil, courier("courier_2"))

	require.NoError(t, h.Subscribe(context.Background(), a, "ship_1"))
	require.NoError(t, h.Subscribe(context.Background(), b, "ship_2"))

	h.Publish("ship_1", locationEvent("ship_1"))

	assert.Len(t, a.send, 1)
	assert.Empty(t, b.send)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := New(allowAll{}, 8, logger.Discard())
	c := NewClient(h, nil, courier("courier_1"))

	require.NoError(t, h.Subscribe(context.Background(), c, "ship_1"))
	h.Unsubscribe(c, "ship_1")
	assert.Zero(t, h.subscriberCount("ship_1"))

	h.Publish("ship_1", locationEvent("ship_1"))
	assert.Empty(t, c.send)

	// Idempotent when already gone.
	h.Unsubscribe(c, "ship_1")
}

func TestDeniedSubscribeAddsNothing(t *testing.T) {
	h := New(denyAll{}, 8, logger.Discard())
	c := NewClient(h, nil, courier("courier_1"))

	err := h.Subscribe(context.Background(), c, "ship_1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, h.subscriberCount("ship_1"))
	assert.Empty(t, c.rooms)
}

func TestDisconnectDropsAllRooms(t *testing.T) {
	h := New(allowAll{}, 8, logger.Discard())
	c := NewClient(h, nil, courier("courier_1"))

	require.NoError(t, h.Subscribe(context.Background(), c, "ship_1"))
	require.NoError(t, h.Subscribe(context.Background(), c, "ship_2"))

	h.Disconnect(c)
	assert.Zero(t, h.subscriberCount("ship_1"))
	assert.Zero(t, h.subscriberCount("ship_2"))

	_, open := <-c.send
	assert.False(t, open)

	// A second disconnect must not double-close.
	h.Disconnect(c)
}

func TestBridgeShipmentID(t *testing.T) {
	tests := []struct {
		channel string
		id      string
		ok      bool
	}{
		{"shipment:ship_1:events", "ship_1", true},
		{"shipment:org:42:ship_7:events", "org:42:ship_7", true},
		{"shipment::events", "", false},
		{"shipment:ship_1:other", "", false},
		{"vehicle:ship_1:events", "", false},
		{"shipment:ship_1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			id, ok := bridgeShipmentID(tt.channel)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestSlowObserverFramesDropped(t *testing.T) {
	h := New(allowAll{}, 1, logger.Discard())
	c := NewClient(h, nil, courier("courier_1"))
	require.NoError(t, h.Subscribe(context.Background(), c, "ship_1"))

	// Nothing drains the channel, so only the first frame fits.
	h.Publish("ship_1", locationEvent("ship_1"))
	h.Publish("ship_1", locationEvent("ship_1"))
	h.Publish("ship_1", locationEvent("ship_1"))

	assert.Len(t, c.send, 1)
}
