package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// EventsPublished counts published events by type.
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_events_published_total", Help: "Events published into the webhook pipeline."},
		[]string{"event_type"},
	)
	// Deliveries counts delivery attempt outcomes by event type and resulting status.
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook delivery attempts by event type and outcome."},
		[]string{"event_type", "status"},
	)
	// DeliveryLatency tracks outbound request latencies in milliseconds.
	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 15000}},
		[]string{"event_type"},
	)
	// QueueDepth is the number of events waiting in the queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "webhook_queue_depth", Help: "Events waiting to be processed."},
	)
)

var regOnce sync.Once

// Register registers all collectors on the dedicated registry.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(EventsPublished)
		Registry.MustRegister(Deliveries)
		Registry.MustRegister(DeliveryLatency)
		Registry.MustRegister(QueueDepth)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
