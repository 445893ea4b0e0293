package domain

import (
	"time"

	"shipment-tracker/internal/geo"
)

type ShipmentStatus string

const (
	StatusPending   ShipmentStatus = "pending"
	StatusInTransit ShipmentStatus = "in_transit"
	StatusDelivered ShipmentStatus = "delivered"
	StatusCancelled ShipmentStatus = "cancelled"
)

// Terminal reports whether the status accepts no further samples.
func (s ShipmentStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Shipment is owned by the dispatch subsystem. The tracker reads it and
// mutates only status, ETA, risk and efficiency fields.
type Shipment struct {
	ID                 string         `json:"id"`
	Status             ShipmentStatus `json:"status"`
	Origin             geo.Point      `json:"origin"`
	Destination        geo.Point      `json:"destination"`
	OriginAddress      string         `json:"origin_address"`
	DestinationAddress string         `json:"destination_address"`
	CourierID          string         `json:"courier_id"`
	OrgID              string         `json:"org_id"`
	PlannedDelivery    time.Time      `json:"planned_delivery"`
	ETA                *time.Time     `json:"eta,omitempty"`
	ETAConfidence      Confidence     `json:"eta_confidence,omitempty"`
	RiskScore          int            `json:"risk_score"`
	RouteEfficiency    *float64       `json:"route_efficiency,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type Role string

const (
	RoleCourier Role = "courier"
	RoleAdmin   Role = "admin"
)

// Identity is the already-authenticated caller. Token issuance lives
// outside the tracker.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
	OrgID     string `json:"org_id"`
}
