package domain

import (
	"time"

	"shipment-tracker/internal/geo"
)

// LocationSample is one courier position report. Samples are append-only
// per shipment and ordered by RecordedAt as stored; the tracker never
// mutates or deletes them.
//
// Units: speed in m/s, accuracy in meters, heading in degrees.
type LocationSample struct {
	ID         string    `json:"id"`
	ShipmentID string    `json:"shipment_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  *float64  `json:"accuracy,omitempty"`
	SpeedMS    *float64  `json:"speed,omitempty"`
	HeadingDeg *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`

	// Server receipt time. Courier clocks drift; ReceivedAt is always
	// accurate.
	ReceivedAt time.Time `json:"received_at"`
}

func (s *LocationSample) Point() geo.Point {
	return geo.Point{Lat: s.Latitude, Lon: s.Longitude}
}

// Speed returns the reported speed, or 0 when the device sent none.
func (s *LocationSample) Speed() float64 {
	if s.SpeedMS == nil {
		return 0
	}
	return *s.SpeedMS
}

// Accuracy returns the reported accuracy, or 0 when the device sent none.
func (s *LocationSample) Accuracy() float64 {
	if s.AccuracyM == nil {
		return 0
	}
	return *s.AccuracyM
}
