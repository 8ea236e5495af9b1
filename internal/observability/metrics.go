package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce            sync.Once
	apiRequestsTotal        *prometheus.CounterVec
	apiLatencySeconds       *prometheus.HistogramVec
	apiErrorsTotal          *prometheus.CounterVec
	assignmentsTotal        *prometheus.CounterVec
	attendanceOutcomesTotal *prometheus.CounterVec
	queuePendingDepth       prometheus.Gauge
	notificationsPublished  *prometheus.CounterVec
	sseClientsActive        prometheus.Gauge
	liveClientsActive       prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discipline_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "discipline_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discipline_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		assignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detention_assignments_total",
			Help: "Detention assignments created, labelled by placement origin.",
		}, []string{"origin"})

		attendanceOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detention_attendance_outcomes_total",
			Help: "Attendance outcomes recorded on detention assignments.",
		}, []string{"outcome"})

		queuePendingDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detention_queue_pending",
			Help: "Number of students currently waiting on the detention queue.",
		})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications published, labelled by category.",
		}, []string{"category"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_sse_clients_active",
			Help: "Active SSE notification subscribers.",
		})

		liveClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_ws_clients_active",
			Help: "Active websocket clients on the live detention feed.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			assignmentsTotal,
			attendanceOutcomesTotal,
			queuePendingDepth,
			notificationsPublished,
			sseClientsActive,
			liveClientsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// AssignmentsTotal exposes the counter for created detention assignments.
func AssignmentsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return assignmentsTotal
}

// AttendanceOutcomesTotal exposes the counter for recorded attendance outcomes.
func AttendanceOutcomesTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return attendanceOutcomesTotal
}

// QueuePendingDepth exposes the gauge tracking pending queue entries.
func QueuePendingDepth() prometheus.Gauge {
	RegisterMetrics()
	return queuePendingDepth
}

// NotificationsPublishedTotal exposes the counter for published notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// SSEClientsActive exposes the gauge for active SSE subscribers.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// LiveClientsActive exposes the gauge for active live feed clients.
func LiveClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return liveClientsActive
}

// MetricsHandler serves the Prometheus scrape endpoint through Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
