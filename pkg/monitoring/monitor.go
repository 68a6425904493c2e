package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_completion_duration_seconds",
			Help:    "Latency of completion service calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"purpose", "outcome"},
	)

	TestGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certification_test_generations_total",
			Help: "Certification tests generated, by question source",
		},
		[]string{"source"},
	)

	TestEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certification_test_evaluations_total",
			Help: "Certification test evaluations, by result",
		},
		[]string{"result"},
	)

	CooldownRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "certification_test_cooldown_rejections_total",
			Help: "Test generation requests rejected by the cooldown",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(CompletionDuration)
		prometheus.MustRegister(TestGenerations)
		prometheus.MustRegister(TestEvaluations)
		prometheus.MustRegister(CooldownRejections)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

// ObserveCompletion records one completion call.
func ObserveCompletion(purpose string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CompletionDuration.WithLabelValues(purpose, outcome).Observe(time.Since(start).Seconds())
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
