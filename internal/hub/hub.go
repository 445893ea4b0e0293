// Package hub is the per-shipment publish/subscribe broadcast layer.
// Membership is ephemeral and in-memory; delivery is fire-and-forget,
// at-most-once, with no replay for late joiners.
package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/logger"
	"shipment-tracker/internal/metrics"
)

// Authorizer re-validates shipment access at subscribe time. The same
// rule as ingestion applies.
type Authorizer interface {
	Authorize(ctx context.Context, id domain.Identity, shipmentID string) error
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}

	authz   Authorizer
	log     *logger.Logger
	sendBuf int
}

func New(authz Authorizer, sendBuf int, log *logger.Logger) *Hub {
	if sendBuf <= 0 {
		sendBuf = 64
	}
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		authz:   authz,
		log:     log,
		sendBuf: sendBuf,
	}
}

// Subscribe adds the client to the shipment's room after
// re-authorization. On failure no membership is added and the caller
// gets the denial.
func (h *Hub) Subscribe(ctx context.Context, c *Client, shipmentID string) error {
	if err := h.authz.Authorize(ctx, c.Identity, shipmentID); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[shipmentID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[shipmentID] = room
	}
	room[c] = struct{}{}
	c.rooms[shipmentID] = struct{}{}
	return nil
}

// Unsubscribe removes the membership; idempotent when absent.
func (h *Hub) Unsubscribe(c *Client, shipmentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c, shipmentID)
}

// Disconnect drops every membership for the client immediately and
// closes its send channel. In-flight publishes to it are simply lost.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	for shipmentID := range c.rooms {
		h.dropLocked(c, shipmentID)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) dropLocked(c *Client, shipmentID string) {
	if room, ok := h.rooms[shipmentID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, shipmentID)
		}
	}
	delete(c.rooms, shipmentID)
}

// Publish fans an event out to every current subscriber of the
// shipment. A slow observer's frame is dropped, never queued.
func (h *Hub) Publish(shipmentID string, ev domain.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).Error("event marshal failed")
		return
	}
	h.broadcast(shipmentID, frame)
}

func (h *Hub) broadcast(shipmentID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[shipmentID] {
		if c.enqueue(frame) {
			metrics.BroadcastDeliveries.Add(1)
		} else {
			metrics.BroadcastDrops.Add(1)
		}
	}
}

// RunBridge re-delivers frames arriving on the redis bridge to local
// subscribers. With the bridge enabled every node, including the
// publisher's own, receives events this way.
func (h *Hub) RunBridge(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			id, ok := bridgeShipmentID(msg.Channel)
			if !ok {
				continue
			}
			h.broadcast(id, []byte(msg.Payload))

		case <-ctx.Done():
			return
		}
	}
}

// bridgeShipmentID strips the shipment:<id>:events frame off a bridge
// channel name. Only the prefix and suffix are structural; the ID
// itself may contain anything, colons included.
func bridgeShipmentID(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, "shipment:")
	if !ok {
		return "", false
	}
	id, ok = strings.CutSuffix(id, ":events")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// subscriberCount is exposed for tests.
func (h *Hub) subscriberCount(shipmentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[shipmentID])
}
