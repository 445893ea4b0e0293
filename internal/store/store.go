package store

import (
	"context"
	"time"

	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/geo"
)

// Store is the persistence contract for the tracking pipeline. Postgres
// backs production; Memory backs tests and local runs.
type Store interface {
	// Shipments. The tracker only mutates status/ETA/risk/efficiency.
	CreateShipment(ctx context.Context, s *domain.Shipment) error
	GetShipment(ctx context.Context, id string) (*domain.Shipment, error)

	// MarkInTransit performs the conditional pending → in_transit
	// transition as one atomic operation and reports whether it fired.
	// Safe under concurrent duplicate submissions.
	MarkInTransit(ctx context.Context, id string) (bool, error)

	// MarkDelivered moves an in_transit shipment to delivered.
	MarkDelivered(ctx context.Context, id string) (bool, error)

	UpdateAnalytics(ctx context.Context, id string, eta time.Time, confidence domain.Confidence, risk int) error
	SetRouteEfficiency(ctx context.Context, id string, efficiency float64) error

	// Samples. Append-only, ordered by recorded time.
	AppendSample(ctx context.Context, s *domain.LocationSample) error
	RecentSamples(ctx context.Context, shipmentID string, n int) ([]*domain.LocationSample, error)
	SampleHistory(ctx context.Context, shipmentID string, from, to time.Time) ([]*domain.LocationSample, error)
	LatestSample(ctx context.Context, shipmentID string) (*domain.LocationSample, error)

	// Advisories.
	InsertAdvisory(ctx context.Context, a *domain.Advisory) error
	ActiveAdvisories(ctx context.Context, shipmentID string) ([]*domain.Advisory, error)
	AcknowledgeAdvisory(ctx context.Context, shipmentID, advisoryID string) (bool, error)

	// Route summaries. Append-only; newest wins on read.
	InsertRouteSummary(ctx context.Context, s *domain.RouteSummary) error
	LatestRouteSummary(ctx context.Context, shipmentID string) (*domain.RouteSummary, error)
	SummariesForDestination(ctx context.Context, dest geo.Point, limit int) ([]*domain.RouteSummary, error)
}
