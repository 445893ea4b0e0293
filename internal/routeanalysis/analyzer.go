// Package routeanalysis computes the post-trip summary: aggregate
// metrics, a performance grade and anomaly detection over the full
// ordered sample history.
package routeanalysis

import (
	"fmt"
	"math"
	"time"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/geo"
)

type Analyzer struct {
	cfg *config.AnalyticsConfig
	now func() time.Time
}

func NewAnalyzer(cfg *config.AnalyticsConfig) *Analyzer {
	return &Analyzer{cfg: cfg, now: time.Now}
}

// Analyze runs once over a completed trip's ordered samples. Fewer than
// two samples (or a degenerate zero-duration trip) cannot be analyzed.
func (a *Analyzer) Analyze(sh *domain.Shipment, samples []*domain.LocationSample) (*domain.RouteSummary, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: got %d samples", domain.ErrInsufficientData, len(samples))
	}

	first := samples[0]
	last := samples[len(samples)-1]

	totalTime := last.RecordedAt.Sub(first.RecordedAt)
	if totalTime <= 0 {
		return nil, fmt.Errorf("%w: zero-duration sample history", domain.ErrInsufficientData)
	}

	var (
		totalDistance float64
		maxSpeed      float64
		idleTime      time.Duration
	)
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		totalDistance += geo.Distance(prev.Point(), cur.Point())
		if cur.Speed() <= a.cfg.IdleSpeedMS {
			idleTime += cur.RecordedAt.Sub(prev.RecordedAt)
		}
	}
	for _, s := range samples {
		if v := s.Speed(); v > maxSpeed {
			maxSpeed = v
		}
	}

	averageSpeed := totalDistance / totalTime.Seconds()

	direct := geo.Distance(first.Point(), last.Point())
	efficiency := 1.0
	if totalDistance > 0 {
		efficiency = direct / totalDistance
		if efficiency > 1 {
			efficiency = 1
		}
	}

	return &domain.RouteSummary{
		ShipmentID:      sh.ID,
		Destination:     sh.Destination,
		TotalDistanceM:  totalDistance,
		TotalTime:       totalTime,
		AverageSpeedMS:  averageSpeed,
		MaxSpeedMS:      maxSpeed,
		IdleTime:        idleTime,
		RouteEfficiency: efficiency,
		Grade:           a.grade(averageSpeed),
		Anomalies:       a.detectAnomalies(samples),
		CreatedAt:       a.now(),
	}, nil
}

// grade buckets average speed against the fixed ordered band table.
func (a *Analyzer) grade(averageSpeedMS float64) domain.Grade {
	switch {
	case averageSpeedMS >= 15:
		return domain.GradeExcellent
	case averageSpeedMS >= 10:
		return domain.GradeGood
	case averageSpeedMS >= 5:
		return domain.GradeAverage
	default:
		return domain.GradePoor
	}
}

// detectAnomalies makes independent passes over the ordered sequence:
// speed spikes between neighbors, positional teleports over a two-step
// window, and signal-loss gaps.
func (a *Analyzer) detectAnomalies(samples []*domain.LocationSample) []domain.Anomaly {
	var out []domain.Anomaly

	// Speed spikes between consecutive readings.
	for i := 1; i < len(samples); i++ {
		delta := math.Abs(samples[i].Speed() - samples[i-1].Speed())
		if delta > a.cfg.SpikeThresholdMS {
			out = append(out, domain.Anomaly{
				Type:      domain.AnomalySpeedSpike,
				Index:     i,
				At:        samples[i].RecordedAt,
				Value:     delta,
				Threshold: a.cfg.SpikeThresholdMS,
			})
		}
	}

	// GPS jumps: implied speed over a two-step window beyond anything
	// plausible flags a teleport.
	for i := 2; i < len(samples); i++ {
		prev, cur := samples[i-2], samples[i]
		dt := cur.RecordedAt.Sub(prev.RecordedAt).Seconds()
		if dt <= 0 {
			continue
		}
		implied := geo.Distance(prev.Point(), cur.Point()) / dt
		if implied > a.cfg.JumpSpeedMS {
			out = append(out, domain.Anomaly{
				Type:      domain.AnomalyGPSJump,
				Index:     i,
				At:        cur.RecordedAt,
				Value:     implied,
				Threshold: a.cfg.JumpSpeedMS,
			})
		}
	}

	// Time gaps between consecutive samples.
	gap := time.Duration(a.cfg.TimeGapSeconds) * time.Second
	for i := 1; i < len(samples); i++ {
		dt := samples[i].RecordedAt.Sub(samples[i-1].RecordedAt)
		if dt > gap {
			out = append(out, domain.Anomaly{
				Type:      domain.AnomalyTimeGap,
				Index:     i,
				At:        samples[i].RecordedAt,
				Value:     dt.Seconds(),
				Threshold: gap.Seconds(),
			})
		}
	}

	return out
}
