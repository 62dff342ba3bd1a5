package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - количество ошибок
	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Общее количество HTTP ошибок",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	// Количество комнат на каждой janus ноде
	janusNodeChannels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "janus_node_channels",
			Help: "Количество каналов, размещенных на janus ноде",
		},
		[]string{"node"},
	)

	// Исходы инвайтов: answered, no_response, cancelled
	invitesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invites_total",
			Help: "Количество инвайтов по исходу",
		},
		[]string{"outcome"},
	)

	connectionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connections_expired_total",
			Help: "Количество соединений, удаленных по истечении TTL",
		},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())

	// Записываем ошибки (статус >= 400)
	if status >= 400 {
		httpErrorsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	}
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetJanusNodeChannels(node string, count int) {
	janusNodeChannels.WithLabelValues(node).Set(float64(count))
}

func RecordInvite(outcome string) {
	invitesTotal.WithLabelValues(outcome).Inc()
}

func IncrementConnectionsExpired() {
	connectionsExpiredTotal.Inc()
}
