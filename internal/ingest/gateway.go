// Package ingest orchestrates the tracking pipeline: validation,
// persistence, the conditional status transition, budgeted analytics
// and broadcast. Persistence is the durable fact; analytics are
// best-effort annotations that never roll a sample back.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shipment-tracker/internal/advisor"
	"shipment-tracker/internal/auth"
	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/eta"
	"shipment-tracker/internal/events"
	"shipment-tracker/internal/geo"
	"shipment-tracker/internal/logger"
	"shipment-tracker/internal/metrics"
	"shipment-tracker/internal/routeanalysis"
	"shipment-tracker/internal/store"
)

// historyFetch bounds how much trailing history the analyzers see. It
// comfortably covers the ETA window and a 10-minute idle window at
// typical reporting rates.
const historyFetch = 100

type SampleInput struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Accuracy   *float64   `json:"accuracy,omitempty"`
	Speed      *float64   `json:"speed,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	RecordedAt *time.Time `json:"timestamp,omitempty"`
}

type Response struct {
	Sample     *domain.LocationSample `json:"sample"`
	ETA        time.Time              `json:"eta"`
	Confidence domain.Confidence      `json:"confidence"`
	RiskScore  int                    `json:"risk_score"`
	Advisories []*domain.Advisory     `json:"advisories"`
}

// Broadcaster is the live fan-out surface. hub.Hub satisfies it.
type Broadcaster interface {
	Publish(shipmentID string, ev domain.Event)
}

type Gateway struct {
	store     store.Store
	redis     *store.Redis // optional
	hub       Broadcaster
	predictor *eta.Predictor
	advisor   *advisor.Engine
	analyzer  *routeanalysis.Analyzer
	bus       *events.Producer // optional
	cfg       *config.Config
	log       *logger.Logger
	now       func() time.Time
}

func NewGateway(
	st store.Store,
	redis *store.Redis,
	h Broadcaster,
	predictor *eta.Predictor,
	adv *advisor.Engine,
	analyzer *routeanalysis.Analyzer,
	bus *events.Producer,
	cfg *config.Config,
	log *logger.Logger,
) *Gateway {
	return &Gateway{
		store:     st,
		redis:     redis,
		hub:       h,
		predictor: predictor,
		advisor:   adv,
		analyzer:  analyzer,
		bus:       bus,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Ingest validates, persists and annotates one position sample, then
// broadcasts the resulting events and composes the synchronous
// response.
func (g *Gateway) Ingest(ctx context.Context, shipmentID string, in SampleInput, identity domain.Identity) (*Response, error) {
	if err := validate(in); err != nil {
		metrics.SamplesRejected.Add(1)
		return nil, err
	}

	sh, err := g.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, sh); err != nil {
		return nil, err
	}
	if sh.Status.Terminal() {
		metrics.SamplesRejected.Add(1)
		return nil, fmt.Errorf("%w: shipment is %s and no longer accepts samples", domain.ErrValidation, sh.Status)
	}

	sample := g.buildSample(shipmentID, in)
	if err := g.store.AppendSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("persist sample: %w", err)
	}
	metrics.SamplesReceived.Add(1)

	// The transition is a single conditional operation against the
	// store; concurrent duplicate first samples race here and exactly
	// one of them wins.
	fired, err := g.store.MarkInTransit(ctx, shipmentID)
	if err != nil {
		g.log.WithError(err).WithField("shipment_id", shipmentID).Warn("status transition check failed")
	}
	oldStatus := sh.Status
	if fired {
		sh.Status = domain.StatusInTransit
		metrics.TransitionsFired.Add(1)
	}

	pred, advRes := g.runAnalytics(ctx, sh, sample)
	sh.RiskScore = advRes.RiskScore

	if err := g.store.UpdateAnalytics(ctx, shipmentID, pred.ETA, pred.Confidence, advRes.RiskScore); err != nil {
		g.log.WithError(err).WithField("shipment_id", shipmentID).Warn("analytics persist failed")
	}
	g.refreshLiveState(ctx, sh, sample)

	g.publishLocation(ctx, sh, sample, pred)
	if fired {
		g.publishStatus(ctx, sh, oldStatus)
	}
	for _, adv := range advRes.Advisories {
		g.publishAdvisory(ctx, sh, adv)
	}

	return &Response{
		Sample:     sample,
		ETA:        pred.ETA,
		Confidence: pred.Confidence,
		RiskScore:  advRes.RiskScore,
		Advisories: advRes.Advisories,
	}, nil
}

// CompleteTrip marks the shipment delivered and runs the post-trip
// route analysis over the full sample history.
func (g *Gateway) CompleteTrip(ctx context.Context, shipmentID string, identity domain.Identity) (*domain.RouteSummary, error) {
	sh, err := g.store.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, sh); err != nil {
		return nil, err
	}

	samples, err := g.store.SampleHistory(ctx, shipmentID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load sample history: %w", err)
	}

	summary, err := g.analyzer.Analyze(sh, samples)
	if err != nil {
		return nil, err
	}

	delivered, err := g.store.MarkDelivered(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}

	if err := g.store.InsertRouteSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("persist route summary: %w", err)
	}
	if err := g.store.SetRouteEfficiency(ctx, shipmentID, summary.RouteEfficiency); err != nil {
		g.log.WithError(err).WithField("shipment_id", shipmentID).Warn("route efficiency persist failed")
	}

	if delivered {
		ev := domain.Event{
			Type:       domain.EventDelivered,
			ShipmentID: shipmentID,
			Timestamp:  g.now(),
			Payload:    summary,
		}
		g.publish(ctx, ev)
		if g.bus != nil {
			g.bus.EmitTrip(ev)
		}
	}

	return summary, nil
}

// runAnalytics executes prediction and recommendation under the
// configured budget. Timeout or failure degrades to the documented
// fallbacks; ingestion latency is never coupled to analytics cost.
func (g *Gateway) runAnalytics(ctx context.Context, sh *domain.Shipment, sample *domain.LocationSample) (eta.Prediction, advisor.Result) {
	budget := time.Duration(g.cfg.Analytics.BudgetMS) * time.Millisecond
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		pred eta.Prediction
		adv  advisor.Result
		err  error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("analytics panic: %v", r)}
			}
		}()
		history, err := g.store.RecentSamples(actx, sh.ID, historyFetch)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		pred := g.predictor.Predict(actx, sh, sample, history)
		adv := g.advisor.Evaluate(actx, sh, sample, history)
		done <- outcome{pred: pred, adv: adv}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.pred, out.adv
		}
		g.log.WithError(out.err).WithField("shipment_id", sh.ID).Warn("analytics failed, using fallbacks")
	case <-actx.Done():
		g.log.WithField("shipment_id", sh.ID).WithField("budget_ms", g.cfg.Analytics.BudgetMS).
			Warn("analytics budget exceeded, using fallbacks")
	}

	metrics.AnalyticsFallbacks.Add(1)
	return g.predictor.Fallback(sh, sample), advisor.Result{}
}

func (g *Gateway) buildSample(shipmentID string, in SampleInput) *domain.LocationSample {
	now := g.now()
	recorded := now
	if in.RecordedAt != nil && !in.RecordedAt.IsZero() {
		recorded = *in.RecordedAt
	}

	accuracy := in.Accuracy
	if accuracy != nil && *accuracy > g.cfg.Analytics.MaxAccuracyM {
		clamped := g.cfg.Analytics.MaxAccuracyM
		accuracy = &clamped
	}

	return &domain.LocationSample{
		ID:         uuid.NewString(),
		ShipmentID: shipmentID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		AccuracyM:  accuracy,
		SpeedMS:    in.Speed,
		HeadingDeg: in.Heading,
		RecordedAt: recorded,
		ReceivedAt: now,
	}
}

func validate(in SampleInput) error {
	if !(geo.Point{Lat: in.Latitude, Lon: in.Longitude}).Valid() {
		return fmt.Errorf("%w: coordinates (%.4f, %.4f) out of range", domain.ErrValidation, in.Latitude, in.Longitude)
	}
	if in.Speed != nil && *in.Speed < 0 {
		return fmt.Errorf("%w: negative speed %.2f", domain.ErrValidation, *in.Speed)
	}
	if in.Accuracy != nil && *in.Accuracy < 0 {
		return fmt.Errorf("%w: negative accuracy %.2f", domain.ErrValidation, *in.Accuracy)
	}
	return nil
}

func (g *Gateway) refreshLiveState(ctx context.Context, sh *domain.Shipment, sample *domain.LocationSample) {
	if g.redis == nil {
		return
	}
	if err := g.redis.LiveUpdate(ctx, sh, sample); err != nil {
		g.log.WithError(err).WithField("shipment_id", sh.ID).Warn("live state update failed")
	}
}

func (g *Gateway) publishLocation(ctx context.Context, sh *domain.Shipment, sample *domain.LocationSample, pred eta.Prediction) {
	ev := domain.Event{
		Type:       domain.EventLocationUpdate,
		ShipmentID: sh.ID,
		Timestamp:  g.now(),
		Payload: map[string]interface{}{
			"sample":               sample,
			"eta":                  pred.ETA,
			"remaining_distance_m": pred.RemainingDistanceM,
			"risk_score":           sh.RiskScore,
		},
	}
	g.publish(ctx, ev)
	if g.bus != nil {
		g.bus.EmitLocation(ev)
	}
}

func (g *Gateway) publishStatus(ctx context.Context, sh *domain.Shipment, old domain.ShipmentStatus) {
	ev := domain.Event{
		Type:       domain.EventStatusUpdate,
		ShipmentID: sh.ID,
		Timestamp:  g.now(),
		Payload:    domain.StatusChange{OldStatus: old, NewStatus: sh.Status},
	}
	g.publish(ctx, ev)
	if g.bus != nil {
		g.bus.EmitLocation(ev)
	}
}

func (g *Gateway) publishAdvisory(ctx context.Context, sh *domain.Shipment, adv *domain.Advisory) {
	ev := domain.Event{
		Type:       domain.EventAdvisory,
		ShipmentID: sh.ID,
		Timestamp:  g.now(),
		Payload:    adv,
	}
	g.publish(ctx, ev)
	if g.bus != nil {
		g.bus.EmitAdvisory(ev)
	}
}

// publish routes an event either straight to the local hub or through
// the redis bridge when multi-node fan-out is on. With the bridge
// enabled the local hub receives it back over the subscription.
func (g *Gateway) publish(ctx context.Context, ev domain.Event) {
	if g.cfg.BridgeEnabled && g.redis != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			g.log.WithError(err).Error("event marshal failed")
			return
		}
		if err := g.redis.PublishEvent(ctx, ev.ShipmentID, payload); err != nil {
			g.log.WithError(err).WithField("shipment_id", ev.ShipmentID).Warn("bridge publish failed")
		}
		return
	}
	g.hub.Publish(ev.ShipmentID, ev)
}
