package advisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/geo"
)

// trailing strips the current sample off the stored history so the
// window analyzers compare against what came before it.
func trailing(history []*domain.LocationSample, cur *domain.LocationSample) []*domain.LocationSample {
	if n := len(history); n > 0 && history[n-1].ID == cur.ID {
		return history[:n-1]
	}
	return history
}

// checkRouteDeviation compares the current distance-to-destination
// against the straight-line origin-to-destination baseline.
func (e *Engine) checkRouteDeviation(ctx context.Context, in input) *finding {
	baseline := geo.Distance(in.shipment.Origin, in.shipment.Destination)
	current := geo.Distance(in.sample.Point(), in.shipment.Destination)
	diff := math.Abs(current - baseline)

	var sev domain.Severity
	switch {
	case diff > e.cfg.DeviationHighM:
		sev = domain.SeverityHigh
	case diff > e.cfg.DeviationMediumM:
		sev = domain.SeverityMedium
	default:
		return nil
	}

	return &finding{
		severity: sev,
		message:  fmt.Sprintf("courier is %.0f m off the expected corridor", diff),
		detail: map[string]interface{}{
			"baseline_m":  baseline,
			"current_m":   current,
			"deviation_m": diff,
		},
	}
}

// checkDelay recomputes the ETA and compares it to the planned
// delivery time.
func (e *Engine) checkDelay(ctx context.Context, in input) *finding {
	if in.shipment.PlannedDelivery.IsZero() {
		return nil
	}

	pred := e.predictor.Predict(ctx, in.shipment, in.sample, in.history)
	delay := pred.ETA.Sub(in.shipment.PlannedDelivery)

	var sev domain.Severity
	switch {
	case delay > time.Duration(e.cfg.DelayHighMin)*time.Minute:
		sev = domain.SeverityHigh
	case delay > time.Duration(e.cfg.DelayMediumMin)*time.Minute:
		sev = domain.SeverityMedium
	default:
		return nil
	}

	return &finding{
		severity: sev,
		message:  fmt.Sprintf("predicted arrival runs %.0f minutes past the planned delivery", delay.Minutes()),
		detail: map[string]interface{}{
			"eta":              pred.ETA,
			"planned_delivery": in.shipment.PlannedDelivery,
			"delay_minutes":    delay.Minutes(),
		},
	}
}

// checkSpeedPattern flags a courier moving well below their own recent
// pace.
func (e *Engine) checkSpeedPattern(ctx context.Context, in input) *finding {
	cur := in.sample.Speed()
	if cur <= 0 {
		return nil
	}

	prior := trailing(in.history, in.sample)
	var positives []float64
	for i := len(prior) - 1; i >= 0 && len(positives) < 10; i-- {
		if v := prior[i].Speed(); v > 0 {
			positives = append(positives, v)
		}
	}
	// Too little history to call a pattern.
	if len(positives) < 3 {
		return nil
	}

	var sum float64
	for _, v := range positives {
		sum += v
	}
	avg := sum / float64(len(positives))
	if cur >= avg*e.cfg.SpeedDropRatio {
		return nil
	}

	return &finding{
		severity: domain.SeverityLow,
		message:  fmt.Sprintf("current speed %.1f m/s is well below the recent average %.1f m/s", cur, avg),
		detail: map[string]interface{}{
			"current_ms": cur,
			"average_ms": avg,
			"ratio":      cur / avg,
		},
	}
}

// checkIdle fires when nothing in the trailing window shows movement.
// The window must actually be covered by data; a shipment younger than
// the window is not idle, just new.
func (e *Engine) checkIdle(ctx context.Context, in input) *finding {
	window := time.Duration(e.cfg.IdleWindowMin) * time.Minute
	cutoff := in.sample.RecordedAt.Add(-window)

	var (
		inWindow    []*domain.LocationSample
		olderExists bool
	)
	for _, s := range in.history {
		if s.RecordedAt.After(cutoff) {
			inWindow = append(inWindow, s)
		} else {
			olderExists = true
		}
	}
	if len(inWindow) < 2 {
		return nil
	}

	span := in.sample.RecordedAt.Sub(inWindow[0].RecordedAt)
	if !olderExists && span < window {
		return nil
	}

	for _, s := range inWindow {
		if s.Speed() > e.cfg.IdleMovementMS {
			return nil
		}
	}

	return &finding{
		severity: domain.SeverityMedium,
		message:  fmt.Sprintf("no movement observed for at least %d minutes", e.cfg.IdleWindowMin),
		detail: map[string]interface{}{
			"window_minutes": e.cfg.IdleWindowMin,
			"samples":        len(inWindow),
		},
	}
}

// checkGPS flags readings whose reported accuracy radius makes the
// position untrustworthy.
func (e *Engine) checkGPS(ctx context.Context, in input) *finding {
	acc := in.sample.Accuracy()

	var sev domain.Severity
	switch {
	case acc > e.cfg.AccuracyHighM:
		sev = domain.SeverityHigh
	case acc > e.cfg.AccuracyMediumM:
		sev = domain.SeverityMedium
	default:
		return nil
	}

	return &finding{
		severity: sev,
		message:  fmt.Sprintf("GPS accuracy degraded to %.0f m", acc),
		detail: map[string]interface{}{
			"accuracy_m": acc,
		},
	}
}
