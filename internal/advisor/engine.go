// Package advisor runs the per-ingestion analyzers and aggregates
// their findings into a bounded risk score.
package advisor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/eta"
	"shipment-tracker/internal/logger"
	"shipment-tracker/internal/metrics"
	"shipment-tracker/internal/store"
)

// Deduper suppresses re-persisting the same advisory type within a
// short window. store.Redis satisfies it; passing nil falls back to an
// in-process TTL map so the suppression survives redis-less runs.
type Deduper interface {
	CheckAdvisoryDedup(ctx context.Context, shipmentID string, advisoryType domain.AdvisoryType) (bool, error)
	SetAdvisoryDedup(ctx context.Context, shipmentID string, advisoryType domain.AdvisoryType) error
}

type finding struct {
	severity domain.Severity
	message  string
	detail   map[string]interface{}
}

type analyzer struct {
	typ   domain.AdvisoryType
	check func(e *Engine, ctx context.Context, in input) *finding
}

type input struct {
	shipment *domain.Shipment
	sample   *domain.LocationSample
	history  []*domain.LocationSample
}

type Result struct {
	// Advisories persisted for this event.
	Advisories []*domain.Advisory
	// RiskScore covers every analyzer active at this event, including
	// ones whose advisory was deduplicated.
	RiskScore int
}

type Engine struct {
	cfg       *config.AnalyticsConfig
	store     store.Store
	dedup     Deduper
	predictor *eta.Predictor
	log       *logger.Logger
	analyzers []analyzer
	now       func() time.Time
}

func NewEngine(cfg *config.AnalyticsConfig, st store.Store, dedup Deduper, predictor *eta.Predictor, log *logger.Logger) *Engine {
	if dedup == nil {
		dedup = newMemoryDeduper(time.Duration(cfg.DedupTTLSeconds) * time.Second)
	}
	return &Engine{
		cfg:       cfg,
		store:     st,
		dedup:     dedup,
		predictor: predictor,
		log:       log,
		now:       time.Now,
		analyzers: []analyzer{
			{domain.AdvisoryRouteDeviation, (*Engine).checkRouteDeviation},
			{domain.AdvisoryDelayAlert, (*Engine).checkDelay},
			{domain.AdvisorySpeedPattern, (*Engine).checkSpeedPattern},
			{domain.AdvisoryIdleAlert, (*Engine).checkIdle},
			{domain.AdvisoryGPSWarning, (*Engine).checkGPS},
		},
	}
}

// Evaluate runs every analyzer over the event and persists its firings.
// The risk score is recomputed fresh from this event's findings, never
// accumulated across events.
func (e *Engine) Evaluate(ctx context.Context, sh *domain.Shipment, sample *domain.LocationSample, history []*domain.LocationSample) Result {
	in := input{shipment: sh, sample: sample, history: history}
	res := Result{}

	for _, a := range e.analyzers {
		f := a.check(e, ctx, in)
		if f == nil {
			continue
		}

		res.RiskScore += e.weight(f.severity)

		if e.isDuplicate(ctx, sh.ID, a.typ) {
			continue
		}

		adv := &domain.Advisory{
			ID:         uuid.NewString(),
			ShipmentID: sh.ID,
			Type:       a.typ,
			Message:    f.message,
			Severity:   f.severity,
			Detail:     f.detail,
			CreatedAt:  e.now(),
		}
		if err := e.store.InsertAdvisory(ctx, adv); err != nil {
			e.log.WithError(err).WithField("shipment_id", sh.ID).
				WithField("type", string(a.typ)).Warn("advisory insert failed")
			continue
		}
		metrics.AdvisoriesCreated.Add(1)
		e.markSeen(ctx, sh.ID, a.typ)
		res.Advisories = append(res.Advisories, adv)
	}

	if res.RiskScore > 100 {
		res.RiskScore = 100
	}
	return res
}

func (e *Engine) weight(sev domain.Severity) int {
	switch sev {
	case domain.SeverityHigh:
		return e.cfg.WeightHigh
	case domain.SeverityMedium:
		return e.cfg.WeightMedium
	default:
		return e.cfg.WeightLow
	}
}

func (e *Engine) isDuplicate(ctx context.Context, shipmentID string, typ domain.AdvisoryType) bool {
	dup, err := e.dedup.CheckAdvisoryDedup(ctx, shipmentID, typ)
	if err != nil {
		e.log.WithError(err).Warn("advisory dedup check failed")
		return false
	}
	return dup
}

func (e *Engine) markSeen(ctx context.Context, shipmentID string, typ domain.AdvisoryType) {
	if err := e.dedup.SetAdvisoryDedup(ctx, shipmentID, typ); err != nil {
		e.log.WithError(err).Warn("advisory dedup set failed")
	}
}
