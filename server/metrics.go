package server

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/patiee/giftstorage/neynar"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"method", "path", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frame_transitions_total", Help: "Frame transitions by action and resulting phase"},
		[]string{"action", "phase"},
	)
	lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frame_directory_lookups_total", Help: "Directory lookups"},
		[]string{"kind", "result"},
	)
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frame_indexer_polls_total", Help: "Indexer polls"},
		[]string{"result"},
	)
	announcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frame_announcements_total", Help: "Gift announcements"},
		[]string{"result"},
	)
	stateRejectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "frame_state_rejected_total", Help: "State tokens discarded as invalid, tampered or expired"},
	)
	rateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frame_rate_limit_total", Help: "Rate limit hits"},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(
		requestsTotal, requestDuration,
		transitionsTotal, lookupsTotal, pollsTotal, announcementsTotal,
		stateRejectsTotal, rateLimitHits,
	)
}

// instrument records method, route, status class and duration.
func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		requestsTotal.WithLabelValues(c.Request.Method, path, statusLabel(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

func observeLookup(kind string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, neynar.ErrUserNotFound):
		result = "not_found"
	case errors.Is(err, neynar.ErrInvalidFrameAction):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	lookupsTotal.WithLabelValues(kind, result).Inc()
}

func observePoll(indexed bool, err error) {
	pollsTotal.WithLabelValues(pollResult(indexed, err)).Inc()
}

func pollResult(indexed bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case indexed:
		return "indexed"
	default:
		return "pending"
	}
}
