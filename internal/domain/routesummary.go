package domain

import (
	"time"

	"shipment-tracker/internal/geo"
)

type Grade string

const (
	GradeExcellent Grade = "EXCELLENT"
	GradeGood      Grade = "GOOD"
	GradeAverage   Grade = "AVERAGE"
	GradePoor      Grade = "POOR"
)

type AnomalyType string

const (
	AnomalySpeedSpike AnomalyType = "speed_spike"
	AnomalyGPSJump    AnomalyType = "gps_jump"
	AnomalyTimeGap    AnomalyType = "time_gap"
)

// Anomaly pins one detected irregularity to the sample index where it
// was observed.
type Anomaly struct {
	Type      AnomalyType `json:"type"`
	Index     int         `json:"index"`
	At        time.Time   `json:"at"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
}

// RouteSummary is computed once per completed trip and immutable after
// creation. Destination is carried so summaries can be aggregated per
// destination cell for the ETA historical factor.
type RouteSummary struct {
	ShipmentID      string        `json:"shipment_id"`
	Destination     geo.Point     `json:"destination"`
	TotalDistanceM  float64       `json:"total_distance_m"`
	TotalTime       time.Duration `json:"total_time"`
	AverageSpeedMS  float64       `json:"average_speed_ms"`
	MaxSpeedMS      float64       `json:"max_speed_ms"`
	IdleTime        time.Duration `json:"idle_time"`
	RouteEfficiency float64       `json:"route_efficiency"`
	Grade           Grade         `json:"grade"`
	Anomalies       []Anomaly     `json:"anomalies"`
	CreatedAt       time.Time     `json:"created_at"`
}
