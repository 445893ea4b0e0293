package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/geo"
)

func seedShipment(t *testing.T, m *Memory, status domain.ShipmentStatus) *domain.Shipment {
	t.Helper()
	sh := &domain.Shipment{
		ID:          "ship_1",
		Status:      status,
		Origin:      geo.Point{Lat: 28.61, Lon: 77.21},
		Destination: geo.Point{Lat: 19.08, Lon: 72.88},
		CourierID:   "courier_1",
		OrgID:       "org_1",
	}
	require.NoError(t, m.CreateShipment(context.Background(), sh))
	return sh
}

func memSample(id string, at time.Time) *domain.LocationSample {
	return &domain.LocationSample{
		ID:         id,
		ShipmentID: "ship_1",
		Latitude:   19.0,
		Longitude:  72.8,
		RecordedAt: at,
	}
}

func TestGetShipmentNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.GetShipment(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetShipmentReturnsCopy(t *testing.T) {
	m := NewMemory()
	seedShipment(t, m, domain.StatusPending)

	ctx := context.Background()
	sh, err := m.GetShipment(ctx, "ship_1")
	require.NoError(t, err)
	sh.Status = domain.StatusCancelled

	again, err := m.GetShipment(ctx, "ship_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestMarkInTransitExactlyOnce(t *testing.T) {
	m := NewMemory()
	seedShipment(t, m, domain.StatusPending)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fired int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.MarkInTransit(ctx, "ship_1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fired)

	sh, err := m.GetShipment(ctx, "ship_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInTransit, sh.Status)
}

func TestMarkDeliveredRequiresInTransit(t *testing.T) {
	m := NewMemory()
	seedShipment(t, m, domain.StatusPending)
	ctx := context.Background()

	ok, err := m.MarkDelivered(ctx, "ship_1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.MarkInTransit(ctx, "ship_1")
	require.NoError(t, err)

	ok, err = m.MarkDelivered(ctx, "ship_1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Terminal now; a second completion is a no-op.
	ok, err = m.MarkDelivered(ctx, "ship_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendSampleKeepsRecordedOrder(t *testing.T) {
	m := NewMemory()
	seedShipment(t, m, domain.StatusInTransit)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// Arrives out of order; reads come back ordered by recorded time.
	require.NoError(t, m.AppendSample(ctx, memSample("b", base.Add(2*time.Minute))))
	require.NoError(t, m.AppendSample(ctx, memSample("c", base.Add(4*time.Minute))))
	require.NoError(t, m.AppendSample(ctx, memSample("a", base)))

	got, err := m.RecentSamples(ctx, "ship_1", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "c", got[2].ID)

	latest, err := m.LatestSample(ctx, "ship_1")
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)
}

func TestRecentSamplesBounded(t *testing.T) {
	m := NewMemory()
	seedShipment(t, m, domain.StatusInTransit)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendSample(ctx, memSample(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := m.RecentSamples(ctx, "ship_1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "e", got[1].ID)
}

func TestSampleHistoryWindow(t *testing.T) {
	m := NewMemory()
	seedShipment(t, m, domain.StatusInTransit)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		require.NoError(t, m.AppendSample(ctx, memSample(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := m.SampleHistory(ctx, "ship_1", base.Add(time.Minute), base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)

	// Zero bounds mean the full history.
	all, err := m.SampleHistory(ctx, "ship_1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLatestSampleEmpty(t *testing.T) {
	m := NewMemory()
	_, err := m.LatestSample(context.Background(), "ship_1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdvisoryLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertAdvisory(ctx, &domain.Advisory{
		ID: "adv_1", ShipmentID: "ship_1", Type: domain.AdvisoryIdleAlert,
	}))
	require.NoError(t, m.InsertAdvisory(ctx, &domain.Advisory{
		ID: "adv_2", ShipmentID: "ship_1", Type: domain.AdvisoryGPSWarning,
	}))

	active, err := m.ActiveAdvisories(ctx, "ship_1")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	ok, err := m.AcknowledgeAdvisory(ctx, "ship_1", "adv_1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Acknowledging twice reports nothing left to acknowledge.
	ok, err = m.AcknowledgeAdvisory(ctx, "ship_1", "adv_1")
	require.NoError(t, err)
	assert.False(t, ok)

	active, err = m.ActiveAdvisories(ctx, "ship_1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "adv_2", active[0].ID)
}

func TestUpdateAnalyticsAndEfficiency(t *testing.T) {
	m := NewMemory()
	seedShipment(t, m, domain.StatusInTransit)
	ctx := context.Background()

	eta := time.Now().Add(30 * time.Minute)
	require.NoError(t, m.UpdateAnalytics(ctx, "ship_1", eta, domain.ConfidenceMedium, 45))
	require.NoError(t, m.SetRouteEfficiency(ctx, "ship_1", 0.82))

	sh, err := m.GetShipment(ctx, "ship_1")
	require.NoError(t, err)
	require.NotNil(t, sh.ETA)
	assert.Equal(t, eta, *sh.ETA)
	assert.Equal(t, domain.ConfidenceMedium, sh.ETAConfidence)
	assert.Equal(t, 45, sh.RiskScore)
	require.NotNil(t, sh.RouteEfficiency)
	assert.InDelta(t, 0.82, *sh.RouteEfficiency, 1e-9)
}

func TestSummariesGroupedByDestinationCell(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	dest := geo.Point{Lat: 19.0760, Lon: 72.8777}

	// Same cell as dest, different shipment.
	require.NoError(t, m.InsertRouteSummary(ctx, &domain.RouteSummary{
		ShipmentID: "ship_1", Destination: dest, AverageSpeedMS: 10,
	}))
	require.NoError(t, m.InsertRouteSummary(ctx, &domain.RouteSummary{
		ShipmentID: "ship_2", Destination: geo.Point{Lat: 19.0761, Lon: 72.8779}, AverageSpeedMS: 12,
	}))
	// A different city entirely.
	require.NoError(t, m.InsertRouteSummary(ctx, &domain.RouteSummary{
		ShipmentID: "ship_3", Destination: geo.Point{Lat: 28.61, Lon: 77.21}, AverageSpeedMS: 8,
	}))

	sums, err := m.SummariesForDestination(ctx, dest, 10)
	require.NoError(t, err)
	assert.Len(t, sums, 2)

	sums, err = m.SummariesForDestination(ctx, dest, 1)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "ship_2", sums[0].ShipmentID)

	latest, err := m.LatestRouteSummary(ctx, "ship_1")
	require.NoError(t, err)
	assert.InDelta(t, 10, latest.AverageSpeedMS, 1e-9)

	_, err = m.LatestRouteSummary(ctx, "ship_9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
