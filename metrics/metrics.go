// Package metrics exposes account flow, notification and request
// counters for prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront_auth"

// Collector records flow outcomes and notification deliveries
type Collector struct {
	flows         *prometheus.CounterVec
	notifications *prometheus.CounterVec
	events        *prometheus.CounterVec
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	reg           prometheus.Registerer
}

// NewCollector creates the collectors and registers them on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reg: reg,
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_outcomes_total",
			Help:      "Terminal account flow outcomes by flow and outcome code.",
		}, []string{"flow", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by type, channel and result.",
		}, []string{"type", "channel", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events dispatched by name.",
		}, []string{"name"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}

	reg.MustRegister(c.flows, c.notifications, c.events, c.requests, c.latency)
	return c
}

// RecordFlow counts a terminal flow outcome
func (c *Collector) RecordFlow(flow, outcome string) {
	c.flows.WithLabelValues(flow, outcome).Inc()
}

// RecordNotification counts a delivery attempt
func (c *Collector) RecordNotification(notificationType, channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.notifications.WithLabelValues(notificationType, channel, result).Inc()
}

// RecordEvent counts a dispatched domain event
func (c *Collector) RecordEvent(name string) {
	c.events.WithLabelValues(name).Inc()
}

// WatchDropped exposes a monotonic drop count, e.g. the event bus
func (c *Collector) WatchDropped(name string, dropped func() uint64) {
	c.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name + "_dropped_total",
		Help:      "Items dropped by " + name + ".",
	}, func() float64 {
		return float64(dropped())
	}))
}

// Middleware records request counts and latency by matched route
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()

		status := ctx.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := ctx.Route().Path
		c.requests.WithLabelValues(ctx.Method(), route, strconv.Itoa(status)).Inc()
		c.latency.WithLabelValues(ctx.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the gatherer in the prometheus exposition format
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
