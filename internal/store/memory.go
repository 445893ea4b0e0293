package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/geo"
)

// Memory is an in-process Store. One mutex serializes everything, which
// also gives MarkInTransit its exactly-once guarantee.
type Memory struct {
	mu        sync.Mutex
	shipments map[string]*domain.Shipment
	samples   map[string][]*domain.LocationSample
	advisory  map[string][]*domain.Advisory
	summaries map[string][]*domain.RouteSummary // keyed by destination cell
	byTrip    map[string][]*domain.RouteSummary
}

func NewMemory() *Memory {
	return &Memory{
		shipments: make(map[string]*domain.Shipment),
		samples:   make(map[string][]*domain.LocationSample),
		advisory:  make(map[string][]*domain.Advisory),
		summaries: make(map[string][]*domain.RouteSummary),
		byTrip:    make(map[string][]*domain.RouteSummary),
	}
}

func (m *Memory) CreateShipment(ctx context.Context, s *domain.Shipment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.shipments[s.ID] = &cp
	return nil
}

func (m *Memory) GetShipment(ctx context.Context, id string) (*domain.Shipment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) MarkInTransit(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.Status != domain.StatusPending {
		return false, nil
	}
	s.Status = domain.StatusInTransit
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) MarkDelivered(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.Status != domain.StatusInTransit {
		return false, nil
	}
	s.Status = domain.StatusDelivered
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *Memory) UpdateAnalytics(ctx context.Context, id string, eta time.Time, confidence domain.Confidence, risk int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.ETA = &eta
	s.ETAConfidence = confidence
	s.RiskScore = risk
	s.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) SetRouteEfficiency(ctx context.Context, id string, efficiency float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.RouteEfficiency = &efficiency
	s.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) AppendSample(ctx context.Context, s *domain.LocationSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	seq := append(m.samples[s.ShipmentID], &cp)
	// Keep stored order monotonic in recorded time even if a device
	// reports out of order.
	sort.SliceStable(seq, func(i, j int) bool {
		return seq[i].RecordedAt.Before(seq[j].RecordedAt)
	})
	m.samples[s.ShipmentID] = seq
	return nil
}

func (m *Memory) RecentSamples(ctx context.Context, shipmentID string, n int) ([]*domain.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.samples[shipmentID]
	if n > 0 && len(seq) > n {
		seq = seq[len(seq)-n:]
	}
	return copySamples(seq), nil
}

func (m *Memory) SampleHistory(ctx context.Context, shipmentID string, from, to time.Time) ([]*domain.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.LocationSample
	for _, s := range m.samples[shipmentID] {
		if !from.IsZero() && s.RecordedAt.Before(from) {
			continue
		}
		if !to.IsZero() && s.RecordedAt.After(to) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) LatestSample(ctx context.Context, shipmentID string) (*domain.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.samples[shipmentID]
	if len(seq) == 0 {
		return nil, domain.ErrNotFound
	}
	cp := *seq[len(seq)-1]
	return &cp, nil
}

func (m *Memory) InsertAdvisory(ctx context.Context, a *domain.Advisory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.advisory[a.ShipmentID] = append(m.advisory[a.ShipmentID], &cp)
	return nil
}

func (m *Memory) ActiveAdvisories(ctx context.Context, shipmentID string) ([]*domain.Advisory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Advisory
	for _, a := range m.advisory[shipmentID] {
		if a.Acknowledged {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) AcknowledgeAdvisory(ctx context.Context, shipmentID, advisoryID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.advisory[shipmentID] {
		if a.ID == advisoryID && !a.Acknowledged {
			a.Acknowledged = true
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) InsertRouteSummary(ctx context.Context, s *domain.RouteSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	key := geo.CellKey(s.Destination)
	m.summaries[key] = append(m.summaries[key], &cp)
	m.byTrip[s.ShipmentID] = append(m.byTrip[s.ShipmentID], &cp)
	return nil
}

func (m *Memory) LatestRouteSummary(ctx context.Context, shipmentID string) (*domain.RouteSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.byTrip[shipmentID]
	if len(seq) == 0 {
		return nil, domain.ErrNotFound
	}
	cp := *seq[len(seq)-1]
	return &cp, nil
}

func (m *Memory) SummariesForDestination(ctx context.Context, dest geo.Point, limit int) ([]*domain.RouteSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.summaries[geo.CellKey(dest)]
	if limit > 0 && len(seq) > limit {
		seq = seq[len(seq)-limit:]
	}
	out := make([]*domain.RouteSummary, 0, len(seq))
	for _, s := range seq {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func copySamples(in []*domain.LocationSample) []*domain.LocationSample {
	out := make([]*domain.LocationSample, 0, len(in))
	for _, s := range in {
		cp := *s
		out = append(out, &cp)
	}
	return out
}
