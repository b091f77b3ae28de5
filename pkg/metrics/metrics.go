package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livementor"

// Collector owns a private Prometheus registry and the billing metric
// vectors. All record methods are safe on a nil receiver so tests and
// tools can run without metrics.
type Collector struct {
	registry *prometheus.Registry

	CatalogObjects       *prometheus.CounterVec
	SubscriptionOutcomes *prometheus.CounterVec
	GeoIPLookups         *prometheus.CounterVec
	RateTableLoads       *prometheus.CounterVec
	Enrollments          *prometheus.CounterVec
	WebhookEvents        *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		CatalogObjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "objects_total",
			Help:      "Provider catalog objects ensured, by kind and outcome (created, reused).",
		}, []string{"kind", "outcome"}),
		SubscriptionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "create_total",
			Help:      "Subscription create calls by outcome.",
		}, []string{"outcome"}),
		GeoIPLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "currency",
			Name:      "geoip_lookups_total",
			Help:      "Geo-IP lookups by provider and result.",
		}, []string{"provider", "result"}),
		RateTableLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "currency",
			Name:      "rate_table_loads_total",
			Help:      "Exchange-rate table loads by source (cache, remote, static).",
		}, []string{"source"}),
		Enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrollment",
			Name:      "events_total",
			Help:      "One-time enrollment events by stage and result.",
		}, []string{"stage", "result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Provider webhook events by type and result.",
		}, []string{"type", "result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.CatalogObjects,
		c.SubscriptionOutcomes,
		c.GeoIPLookups,
		c.RateTableLoads,
		c.Enrollments,
		c.WebhookEvents,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) CatalogObject(kind, outcome string) {
	if c == nil {
		return
	}
	c.CatalogObjects.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) SubscriptionOutcome(outcome string) {
	if c == nil {
		return
	}
	c.SubscriptionOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) GeoIPLookup(provider, result string) {
	if c == nil {
		return
	}
	c.GeoIPLookups.WithLabelValues(provider, result).Inc()
}

func (c *Collector) RateTableLoad(source string) {
	if c == nil {
		return
	}
	c.RateTableLoads.WithLabelValues(source).Inc()
}

func (c *Collector) Enrollment(stage, result string) {
	if c == nil {
		return
	}
	c.Enrollments.WithLabelValues(stage, result).Inc()
}

func (c *Collector) WebhookEvent(eventType, result string) {
	if c == nil {
		return
	}
	c.WebhookEvents.WithLabelValues(eventType, result).Inc()
}
