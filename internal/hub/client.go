package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shipment-tracker/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// controlMessage is what observers send over the socket.
type controlMessage struct {
	Action     string `json:"action"` // join | leave
	ShipmentID string `json:"shipment_id"`
}

type ackFrame struct {
	Type       string `json:"type"`
	ShipmentID string `json:"shipment_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Client is one observer connection. rooms is guarded by the hub's
// mutex.
type Client struct {
	ID       string
	Identity domain.Identity

	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	rooms     map[string]struct{}
	closeOnce sync.Once
}

func NewClient(h *Hub, conn *websocket.Conn, identity domain.Identity) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.sendBuf),
		rooms:    make(map[string]struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. A full
// buffer means the observer is too slow; the frame is dropped.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// ReadPump consumes join/leave control messages until the connection
// drops, then tears down every membership.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.ShipmentID == "" {
			c.ack(ackFrame{Type: "error", Error: "malformed control message"})
			continue
		}

		switch msg.Action {
		case "join":
			if err := c.hub.Subscribe(ctx, c, msg.ShipmentID); err != nil {
				c.ack(ackFrame{Type: "error", ShipmentID: msg.ShipmentID, Error: "subscription denied"})
				continue
			}
			c.ack(ackFrame{Type: "subscribed", ShipmentID: msg.ShipmentID})
		case "leave":
			c.hub.Unsubscribe(c, msg.ShipmentID)
			c.ack(ackFrame{Type: "unsubscribed", ShipmentID: msg.ShipmentID})
		default:
			c.ack(ackFrame{Type: "error", ShipmentID: msg.ShipmentID, Error: "unknown action"})
		}
	}
}

func (c *Client) ack(f ackFrame) {
	if frame, err := json.Marshal(f); err == nil {
		c.enqueue(frame)
	}
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
