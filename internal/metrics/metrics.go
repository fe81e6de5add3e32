package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discovery outcomes
const (
	DiscoveryExisting = "existing"
	DiscoveryCreated  = "created"
	DiscoveryRaced    = "raced"
	DiscoveryNotFound = "not_found"
	DiscoveryFailed   = "failed"
)

var (
	// DiscoveriesTotal counts token discovery requests by outcome
	DiscoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinyaps_discoveries_total",
			Help: "Total number of token discovery requests",
		},
		[]string{"outcome"},
	)

	// PredictionVotesTotal counts accepted prediction votes by bucket
	PredictionVotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinyaps_prediction_votes_total",
			Help: "Total number of prediction votes cast",
		},
		[]string{"price_range"},
	)

	// CommentsTotal counts stored comments
	CommentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinyaps_comments_total",
			Help: "Total number of comments created",
		},
		[]string{"kind"},
	)

	// ProviderRequests tracks market-data provider calls
	ProviderRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinyaps_provider_request_duration_seconds",
			Help:    "Market-data provider request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// RateLimited counts requests rejected by the rate limiter
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinyaps_rate_limited_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"route"},
	)

	// RealtimeClients tracks connected websocket clients
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coinyaps_realtime_clients",
			Help: "Number of connected realtime clients",
		},
	)

	// HTTPRequestDuration tracks API latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinyaps_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Middleware records request latency keyed by the matched route template
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
