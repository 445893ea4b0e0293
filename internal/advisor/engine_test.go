package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/eta"
	"shipment-tracker/internal/geo"
	"shipment-tracker/internal/logger"
	"shipment-tracker/internal/store"
)

func testCfg() *config.AnalyticsConfig {
	return &config.AnalyticsConfig{
		DefaultSpeedMS:   11.1,
		MaxPlausibleMS:   50,
		SpeedWindow:      10,
		RushHourFactor:   0.7,
		NightFactor:      1.3,
		HistoryWindow:    20,
		ETAFallbackMin:   60,
		MinAdjustedSpeed: 0.5,
		DeviationMediumM: 1000,
		DeviationHighM:   5000,
		DelayMediumMin:   30,
		DelayHighMin:     60,
		SpeedDropRatio:   0.3,
		IdleWindowMin:    10,
		IdleMovementMS:   0.5,
		AccuracyMediumM:  1000,
		AccuracyHighM:    5000,
		DedupTTLSeconds:  300,
		WeightLow:        5,
		WeightMedium:     15,
		WeightHigh:       30,
	}
}

func newTestEngine(t *testing.T, cfg *config.AnalyticsConfig, dedup Deduper) (*Engine, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	log := logger.Discard()
	predictor := eta.NewPredictor(st, cfg, log)
	return NewEngine(cfg, st, dedup, predictor, log), st
}

func parkedShipment(at geo.Point) *domain.Shipment {
	// Origin, destination and position coincide, so the positional
	// analyzers stay quiet unless a test moves something.
	return &domain.Shipment{
		ID:          "ship_1",
		Status:      domain.StatusInTransit,
		Origin:      at,
		Destination: at,
		CourierID:   "courier_1",
		OrgID:       "org_1",
	}
}

func sampleAt(id string, p geo.Point, speed *float64, acc *float64, at time.Time) *domain.LocationSample {
	return &domain.LocationSample{
		ID:         id,
		ShipmentID: "ship_1",
		Latitude:   p.Lat,
		Longitude:  p.Lon,
		SpeedMS:    speed,
		AccuracyM:  acc,
		RecordedAt: at,
	}
}

func f64(v float64) *float64 { return &v }

func advisoryTypes(res Result) []domain.AdvisoryType {
	var out []domain.AdvisoryType
	for _, a := range res.Advisories {
		out = append(out, a.Type)
	}
	return out
}

func TestEvaluateQuietEvent(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	cur := sampleAt("s1", pt, nil, nil, time.Now())

	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, []*domain.LocationSample{cur})
	assert.Zero(t, res.RiskScore)
	assert.Empty(t, res.Advisories)
}

func TestRouteDeviation(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	sh := parkedShipment(geo.Point{})
	sh.Origin = geo.Point{Lat: 0, Lon: 0}
	sh.Destination = geo.Point{Lat: 0, Lon: 1}

	// Past the destination by five hundredths of a degree: the gap to
	// the straight-line baseline is far over the high threshold.
	cur := sampleAt("s1", geo.Point{Lat: 0, Lon: 1.05}, nil, nil, time.Now())
	res := e.Evaluate(context.Background(), sh, cur, []*domain.LocationSample{cur})
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, domain.AdvisoryRouteDeviation, res.Advisories[0].Type)
	assert.Equal(t, domain.SeverityHigh, res.Advisories[0].Severity)
	assert.Equal(t, 30, res.RiskScore)

	// A couple of kilometers behind the origin lands in the medium band.
	e2, _ := newTestEngine(t, testCfg(), nil)
	cur = sampleAt("s2", geo.Point{Lat: 0, Lon: -0.02}, nil, nil, time.Now())
	res = e2.Evaluate(context.Background(), sh, cur, []*domain.LocationSample{cur})
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, domain.SeverityMedium, res.Advisories[0].Severity)
	assert.Equal(t, 15, res.RiskScore)
}

func TestDelayAlert(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	sh := parkedShipment(pt)
	sh.PlannedDelivery = time.Now().Add(-2 * time.Hour)

	cur := sampleAt("s1", pt, nil, nil, time.Now())
	res := e.Evaluate(context.Background(), sh, cur, []*domain.LocationSample{cur})
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, domain.AdvisoryDelayAlert, res.Advisories[0].Type)
	assert.Equal(t, domain.SeverityHigh, res.Advisories[0].Severity)
	assert.Equal(t, 30, res.RiskScore)
}

func TestDelaySkippedWithoutPlannedDelivery(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	cur := sampleAt("s1", pt, nil, nil, time.Now())

	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, []*domain.LocationSample{cur})
	assert.NotContains(t, advisoryTypes(res), domain.AdvisoryDelayAlert)
}

func TestSpeedPattern(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	now := time.Now()

	var history []*domain.LocationSample
	for i := 0; i < 5; i++ {
		history = append(history, sampleAt(
			string(rune('a'+i)), pt, f64(10), nil, now.Add(time.Duration(i-5)*time.Minute)))
	}
	// 2 m/s against a 10 m/s recent average is under the 0.3 drop ratio.
	cur := sampleAt("cur", pt, f64(2), nil, now)
	history = append(history, cur)

	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, history)
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, domain.AdvisorySpeedPattern, res.Advisories[0].Type)
	assert.Equal(t, domain.SeverityLow, res.Advisories[0].Severity)
	assert.Equal(t, 5, res.RiskScore)
}

func TestSpeedPatternNeedsHistory(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	now := time.Now()

	// Two prior readings are not enough to call a pattern.
	history := []*domain.LocationSample{
		sampleAt("a", pt, f64(10), nil, now.Add(-2*time.Minute)),
		sampleAt("b", pt, f64(10), nil, now.Add(-time.Minute)),
	}
	cur := sampleAt("cur", pt, f64(1), nil, now)
	history = append(history, cur)

	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, history)
	assert.NotContains(t, advisoryTypes(res), domain.AdvisorySpeedPattern)
}

func TestIdleAlert(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	now := time.Now()

	cur := sampleAt("cur", pt, f64(0), nil, now)
	history := []*domain.LocationSample{
		sampleAt("a", pt, f64(0), nil, now.Add(-12*time.Minute)),
		sampleAt("b", pt, f64(0), nil, now.Add(-8*time.Minute)),
		sampleAt("c", pt, f64(0), nil, now.Add(-4*time.Minute)),
		cur,
	}

	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, history)
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, domain.AdvisoryIdleAlert, res.Advisories[0].Type)
	assert.Equal(t, domain.SeverityMedium, res.Advisories[0].Severity)
	assert.Equal(t, 15, res.RiskScore)
}

func TestIdleSuppressedByMovement(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	now := time.Now()

	cur := sampleAt("cur", pt, f64(0), nil, now)
	history := []*domain.LocationSample{
		sampleAt("a", pt, f64(0), nil, now.Add(-12*time.Minute)),
		sampleAt("b", pt, f64(0), nil, now.Add(-8*time.Minute)),
		sampleAt("c", pt, f64(5), nil, now.Add(-4*time.Minute)),
		cur,
	}

	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, history)
	assert.Empty(t, res.Advisories)
	assert.Zero(t, res.RiskScore)
}

func TestIdleNotFiredOnYoungShipment(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	now := time.Now()

	// All samples sit inside the window with nothing older: the window
	// is not covered yet, so the shipment is new, not idle.
	cur := sampleAt("cur", pt, f64(0), nil, now)
	history := []*domain.LocationSample{
		sampleAt("a", pt, f64(0), nil, now.Add(-3*time.Minute)),
		sampleAt("b", pt, f64(0), nil, now.Add(-time.Minute)),
		cur,
	}

	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, history)
	assert.NotContains(t, advisoryTypes(res), domain.AdvisoryIdleAlert)
}

func TestGPSWarning(t *testing.T) {
	e, _ := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}

	cur := sampleAt("s1", pt, nil, f64(2000), time.Now())
	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, []*domain.LocationSample{cur})
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, domain.AdvisoryGPSWarning, res.Advisories[0].Type)
	assert.Equal(t, domain.SeverityMedium, res.Advisories[0].Severity)

	e2, _ := newTestEngine(t, testCfg(), nil)
	cur = sampleAt("s2", pt, nil, f64(6000), time.Now())
	res = e2.Evaluate(context.Background(), parkedShipment(pt), cur, []*domain.LocationSample{cur})
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, domain.SeverityHigh, res.Advisories[0].Severity)
	assert.Equal(t, 30, res.RiskScore)
}

func TestRiskScoreCapped(t *testing.T) {
	cfg := testCfg()
	cfg.WeightHigh = 60
	e, _ := newTestEngine(t, cfg, nil)

	sh := parkedShipment(geo.Point{})
	sh.Origin = geo.Point{Lat: 0, Lon: 0}
	sh.Destination = geo.Point{Lat: 0, Lon: 1}

	// Far off course with a useless GPS fix: two high findings at 60
	// apiece would be 120.
	cur := sampleAt("s1", geo.Point{Lat: 0, Lon: 1.05}, nil, f64(6000), time.Now())
	res := e.Evaluate(context.Background(), sh, cur, []*domain.LocationSample{cur})
	assert.Len(t, res.Advisories, 2)
	assert.Equal(t, 100, res.RiskScore)
}

type fakeDeduper struct {
	dup  bool
	seen []domain.AdvisoryType
}

func (f *fakeDeduper) CheckAdvisoryDedup(ctx context.Context, shipmentID string, typ domain.AdvisoryType) (bool, error) {
	return f.dup, nil
}

func (f *fakeDeduper) SetAdvisoryDedup(ctx context.Context, shipmentID string, typ domain.AdvisoryType) error {
	f.seen = append(f.seen, typ)
	return nil
}

func TestDedupSuppressesPersistButCountsRisk(t *testing.T) {
	e, st := newTestEngine(t, testCfg(), &fakeDeduper{dup: true})
	pt := geo.Point{Lat: 19.00, Lon: 72.80}

	cur := sampleAt("s1", pt, nil, f64(6000), time.Now())
	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, []*domain.LocationSample{cur})

	assert.Empty(t, res.Advisories)
	assert.Equal(t, 30, res.RiskScore)

	stored, err := st.ActiveAdvisories(context.Background(), "ship_1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRepeatFiringPersistsOnceWithoutRedis(t *testing.T) {
	// No redis deduper wired; the in-process fallback must still keep
	// a stalled courier from growing an advisory per sample.
	e, st := newTestEngine(t, testCfg(), nil)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}
	now := time.Now()

	idleHistory := func(cur *domain.LocationSample) []*domain.LocationSample {
		return []*domain.LocationSample{
			sampleAt("a", pt, f64(0), nil, cur.RecordedAt.Add(-12*time.Minute)),
			sampleAt("b", pt, f64(0), nil, cur.RecordedAt.Add(-8*time.Minute)),
			sampleAt("c", pt, f64(0), nil, cur.RecordedAt.Add(-4*time.Minute)),
			cur,
		}
	}

	first := sampleAt("cur1", pt, f64(0), nil, now)
	res := e.Evaluate(context.Background(), parkedShipment(pt), first, idleHistory(first))
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, 15, res.RiskScore)

	// Still parked one sample later: suppressed persist, risk intact.
	second := sampleAt("cur2", pt, f64(0), nil, now.Add(time.Minute))
	res = e.Evaluate(context.Background(), parkedShipment(pt), second, idleHistory(second))
	assert.Empty(t, res.Advisories)
	assert.Equal(t, 15, res.RiskScore)

	stored, err := st.ActiveAdvisories(context.Background(), "ship_1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestFreshFiringMarkedSeen(t *testing.T) {
	dedup := &fakeDeduper{}
	e, st := newTestEngine(t, testCfg(), dedup)
	pt := geo.Point{Lat: 19.00, Lon: 72.80}

	cur := sampleAt("s1", pt, nil, f64(6000), time.Now())
	res := e.Evaluate(context.Background(), parkedShipment(pt), cur, []*domain.LocationSample{cur})

	require.Len(t, res.Advisories, 1)
	assert.Equal(t, []domain.AdvisoryType{domain.AdvisoryGPSWarning}, dedup.seen)

	stored, err := st.ActiveAdvisories(context.Background(), "ship_1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
