package domain

import "time"

type EventType string

const (
	EventLocationUpdate EventType = "location_update"
	EventStatusUpdate   EventType = "status_update"
	EventAdvisory       EventType = "advisory"
	EventDelivered      EventType = "delivered"
)

// Event is the frame pushed to subscribed observers and mirrored onto
// the external bus. Delivery is best-effort, at-most-once.
type Event struct {
	Type       EventType   `json:"type"`
	ShipmentID string      `json:"shipment_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// StatusChange is the payload of a status_update event.
type StatusChange struct {
	OldStatus ShipmentStatus `json:"old_status"`
	NewStatus ShipmentStatus `json:"new_status"`
}
