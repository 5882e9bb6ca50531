// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the gateway's Prometheus instrumentation. Requests are
// labelled by route family (session, relay, profile, payment, endpoints, ops)
// and by the registered route, so a dashboard can split provider-bound
// traffic from ledger traffic without parsing paths. Unmatched requests share
// one "unmatched" route label to keep cardinality bounded.
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Route families.
const (
	FamilySession   = "session"
	FamilyRelay     = "relay"
	FamilyProfile   = "profile"
	FamilyPayment   = "payment"
	FamilyEndpoints = "endpoints"
	FamilyOps       = "ops"
	FamilyUnmatched = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route family, route, method and status.",
		},
		[]string{"family", "route", "method", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route family and route.",
			// Provider-bound routes sit behind a remote call; stretch the tail.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"family", "route"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "http_requests_inflight",
			Help:      "In-flight HTTP requests by route family.",
		},
		[]string{"family"},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "http_response_size_bytes",
			Help:      "Response body size by route family.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8), // 256B..4MiB
		},
		[]string{"family"},
	)

	relayConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "relay_connections",
			Help:      "Open websocket relay connections.",
		},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter, by limiter name.",
		},
		[]string{"limiter"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, relayConns, rateLimited)
}

// RouteFamily classifies a registered route (as returned by c.FullPath) that
// is mounted under basePath. An empty route is FamilyUnmatched.
func RouteFamily(basePath, route string) string {
	if route == "" {
		return FamilyUnmatched
	}
	rest := route
	if basePath != "" && basePath != "/" {
		if !strings.HasPrefix(route, basePath) {
			return FamilyOps
		}
		rest = strings.TrimPrefix(route, basePath)
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(rest, "/"), "/")
	switch first {
	case "sessions":
		return FamilySession
	case "ws":
		return FamilyRelay
	case "profile":
		return FamilyProfile
	case "payments", "users":
		return FamilyPayment
	case "endpoints":
		return FamilyEndpoints
	default:
		return FamilyOps
	}
}

// Metrics instruments every request with the gateway_http_* collectors.
// basePath is the API mount point used to classify routes into families.
//
// Hijacked relay connections report no body size; they are tracked by
// TrackRelay instead.
func Metrics(basePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// FullPath is known before the handler chain runs.
		route := c.FullPath()
		family := RouteFamily(basePath, route)
		if route == "" {
			route = FamilyUnmatched
		}

		inflight := httpInflight.WithLabelValues(family)
		inflight.Inc()
		defer inflight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpReqs.WithLabelValues(family, route, c.Request.Method, status).Inc()
		httpLat.WithLabelValues(family, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(family).Observe(float64(size))
		}
	}
}

// TrackRelay counts one open relay connection and returns the func that
// releases it.
func TrackRelay() (done func()) {
	relayConns.Inc()
	return relayConns.Dec
}
