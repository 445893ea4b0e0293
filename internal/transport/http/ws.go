package http

import (
	"net/http"

	"github.com/gorilla/websocket"

	"shipment-tracker/internal/hub"
	"shipment-tracker/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced by the fronting gateway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub *hub.Hub
	log *logger.Logger
}

func NewWSHandler(h *hub.Hub, log *logger.Logger) *WSHandler {
	return &WSHandler{hub: h, log: log}
}

// Serve upgrades the connection and runs the client pumps. Membership
// is managed by join/leave control messages on the socket.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := hub.NewClient(h.hub, conn, identity)
	go client.WritePump()
	client.ReadPump(r.Context())
}
