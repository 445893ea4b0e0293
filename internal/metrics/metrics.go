package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	SamplesReceived     atomic.Int64
	SamplesRejected     atomic.Int64
	TransitionsFired    atomic.Int64
	AnalyticsFallbacks  atomic.Int64
	AdvisoriesCreated   atomic.Int64
	BroadcastDeliveries atomic.Int64
	BroadcastDrops      atomic.Int64
	BusQueueDrops       atomic.Int64
	BusPublishFailures  atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "tracker_samples_received_total %d\n", SamplesReceived.Load())
	fmt.Fprintf(w, "tracker_samples_rejected_total %d\n", SamplesRejected.Load())
	fmt.Fprintf(w, "tracker_transitions_fired_total %d\n", TransitionsFired.Load())
	fmt.Fprintf(w, "tracker_analytics_fallbacks_total %d\n", AnalyticsFallbacks.Load())
	fmt.Fprintf(w, "tracker_advisories_created_total %d\n", AdvisoriesCreated.Load())
	fmt.Fprintf(w, "tracker_broadcast_deliveries_total %d\n", BroadcastDeliveries.Load())
	fmt.Fprintf(w, "tracker_broadcast_drops_total %d\n", BroadcastDrops.Load())
	fmt.Fprintf(w, "tracker_bus_queue_drops_total %d\n", BusQueueDrops.Load())
	fmt.Fprintf(w, "tracker_bus_publish_failures_total %d\n", BusPublishFailures.Load())
}
