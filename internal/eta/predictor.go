// Package eta predicts arrival times from remaining distance, the
// recent speed trend, a time-of-day traffic factor and the historical
// speed observed on completed trips to the same destination.
package eta

import (
	"context"
	"time"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/geo"
	"shipment-tracker/internal/logger"
)

// SummarySource yields completed-trip summaries for a destination cell.
// store.Store satisfies it.
type SummarySource interface {
	SummariesForDestination(ctx context.Context, dest geo.Point, limit int) ([]*domain.RouteSummary, error)
}

type Prediction struct {
	ETA                time.Time         `json:"eta"`
	RemainingDistanceM float64           `json:"remaining_distance_m"`
	EstimatedSpeedMS   float64           `json:"estimated_speed_ms"`
	Confidence         domain.Confidence `json:"confidence"`
}

type Predictor struct {
	summaries SummarySource
	cfg       *config.AnalyticsConfig
	log       *logger.Logger

	// injectable for tests
	now func() time.Time
}

func NewPredictor(summaries SummarySource, cfg *config.AnalyticsConfig, log *logger.Logger) *Predictor {
	return &Predictor{
		summaries: summaries,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Predict never fails: any internal fault degrades to the fixed
// fallback so ingestion latency stays decoupled from analytics.
func (p *Predictor) Predict(ctx context.Context, sh *domain.Shipment, current *domain.LocationSample, history []*domain.LocationSample) (pred Prediction) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("shipment_id", sh.ID).WithField("panic", r).
				Warn("eta prediction panicked, using fallback")
			pred = p.Fallback(sh, current)
		}
	}()

	now := p.now()
	remaining := geo.Distance(current.Point(), sh.Destination)

	estimated := p.estimatedSpeed(history)
	traffic := p.trafficFactor(current.RecordedAt)
	historical := p.historicalFactor(ctx, sh.Destination)

	adjusted := estimated * traffic * historical
	if adjusted < p.cfg.MinAdjustedSpeed {
		adjusted = p.cfg.MinAdjustedSpeed
	}

	return Prediction{
		ETA:                now.Add(time.Duration(remaining / adjusted * float64(time.Second))),
		RemainingDistanceM: remaining,
		EstimatedSpeedMS:   estimated,
		Confidence:         confidence(len(history), p.cfg.HistoryWindow),
	}
}

// Fallback is the documented degraded prediction: now plus the default
// duration, low confidence.
func (p *Predictor) Fallback(sh *domain.Shipment, current *domain.LocationSample) Prediction {
	pred := Prediction{
		ETA:        p.now().Add(time.Duration(p.cfg.ETAFallbackMin) * time.Minute),
		Confidence: domain.ConfidenceLow,
	}
	if current != nil {
		pred.RemainingDistanceM = geo.Distance(current.Point(), sh.Destination)
	}
	return pred
}

// estimatedSpeed is a recency-weighted average of the last SpeedWindow
// plausible speed readings. Falls back to the default cruising speed
// when no plausible readings remain.
func (p *Predictor) estimatedSpeed(history []*domain.LocationSample) float64 {
	start := len(history) - p.cfg.SpeedWindow
	if start < 0 {
		start = 0
	}

	var weighted, weights float64
	weight := 1.0
	for _, s := range history[start:] {
		v := s.Speed()
		if v <= 0 || v > p.cfg.MaxPlausibleMS {
			continue
		}
		weighted += v * weight
		weights += weight
		weight++
	}
	if weights == 0 {
		return p.cfg.DefaultSpeedMS
	}
	return weighted / weights
}

func (p *Predictor) trafficFactor(at time.Time) float64 {
	switch hour := at.Local().Hour(); {
	case (hour >= 7 && hour < 10) || (hour >= 17 && hour < 20):
		return p.cfg.RushHourFactor
	case hour >= 22 || hour < 5:
		return p.cfg.NightFactor
	default:
		return 1.0
	}
}

// historicalFactor is the ratio of the destination's historically
// observed average speed to the default speed, clamped to [0.5, 1.5].
// Absent history (or on store error) it is neutral.
func (p *Predictor) historicalFactor(ctx context.Context, dest geo.Point) float64 {
	if p.summaries == nil {
		return 1.0
	}
	sums, err := p.summaries.SummariesForDestination(ctx, dest, p.cfg.HistoryWindow)
	if err != nil || len(sums) == 0 {
		return 1.0
	}

	var total float64
	for _, s := range sums {
		total += s.AverageSpeedMS
	}
	factor := (total / float64(len(sums))) / p.cfg.DefaultSpeedMS
	if factor < 0.5 {
		return 0.5
	}
	if factor > 1.5 {
		return 1.5
	}
	return factor
}

func confidence(historyLen, window int) domain.Confidence {
	switch {
	case historyLen >= window:
		return domain.ConfidenceHigh
	case historyLen >= window/2:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
