package monitoring

import (
	"strconv"
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

	// 分析管线指标
	AnalysisCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_analyses_total",
			Help: "Total number of gap analyses by outcome",
		},
		[]string{"outcome"}, // completed / insufficient_data / failed
	)

	QueueDepthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gap_analysis_queue_depth",
			Help: "Current depth of the gap analysis work queue",
		},
	)

	TrainingCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gap_model_training_runs_total",
			Help: "Total number of model training runs by outcome",
		},
		[]string{"outcome"}, // success / skipped / failed
	)

	PredictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gap_detection_duration_seconds",
			Help:    "Duration of a single student gap detection run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AnalysisCounter)
	prometheus.MustRegister(QueueDepthGauge)
	prometheus.MustRegister(TrainingCounter)
	prometheus.MustRegister(PredictionDuration)
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

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
