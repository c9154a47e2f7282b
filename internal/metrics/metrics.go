// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "croptap"

type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	CartItemsAdded prometheus.Counter
	CartsCreated   prometheus.Counter
	CartsCleared   prometheus.Counter
	OrdersPlaced   prometheus.Counter
	OrderValue     prometheus.Counter
	BusinessErrors *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CartItemsAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "items_added_total",
			Help:      "Cart lines created or incremented.",
		}),
		CartsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "created_total",
			Help:      "Carts opened by a first add-to-cart.",
		}),
		CartsCleared: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "cleared_total",
			Help:      "Carts whose lines were cleared.",
		}),
		OrdersPlaced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "placed_total",
			Help:      "Orders materialized from carts.",
		}),
		OrderValue: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "value_total",
			Help:      "Sum of total_amount over placed orders.",
		}),
		BusinessErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "errors_total",
			Help:      "Rejected marketplace operations by operation and error kind.",
		}, []string{"operation", "kind"}),
	}
}
