package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP метрики
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Bybit API метрики
	BybitAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bybit_api_requests_total",
			Help: "Total number of Bybit API requests",
		},
		[]string{"endpoint", "status"},
	)
	BybitAPIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "bybit_api_request_duration_seconds",
			Help: "Duration of Bybit API requests in seconds",
		},
		[]string{"endpoint"},
	)

	// Ордера: source = api | webhook, result = success | rejected | error
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of order requests by source, side and result",
		},
		[]string{"source", "side", "result"},
	)
	WebhookAuthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_auth_failures_total",
			Help: "Webhook requests rejected because of a wrong passphrase",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsInFlight)

	prometheus.MustRegister(BybitAPIRequestsTotal)
	prometheus.MustRegister(BybitAPIRequestDuration)

	prometheus.MustRegister(OrdersTotal)
	prometheus.MustRegister(WebhookAuthFailures)
}
