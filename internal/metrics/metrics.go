// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ea_access"

// Metrics набор счётчиков жизненного цикла токенов и подписок.
type Metrics struct {
	TokensIssued      prometheus.Counter
	TokensRevoked     prometheus.Counter
	TokensSwept       prometheus.Counter
	Validations       *prometheus.CounterVec
	PrincipalsUpgrade *prometheus.CounterVec
	Downgrades        prometheus.Counter
	HTTPDuration      *prometheus.HistogramVec
}

// New регистрирует метрики в reg. Для тестов передаётся prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "issued_total",
			Help:      "Total EA tokens issued.",
		}),
		TokensRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "revoked_total",
			Help:      "Total EA tokens deactivated by revoke calls.",
		}),
		TokensSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "swept_total",
			Help:      "Total expired EA tokens deactivated by sweeps.",
		}),
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "validations_total",
			Help:      "Token validations by outcome.",
		}, []string{"outcome"}),
		PrincipalsUpgrade: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "principals",
			Name:      "upgrades_total",
			Help:      "Subscription upgrades by tier.",
		}, []string{"tier"}),
		Downgrades: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "principals",
			Name:      "downgrades_total",
			Help:      "Principals downgraded to FREE.",
		}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
}

// ObserveHTTP записывает длительность обработки запроса.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Validation учитывает исход проверки токена. Пустой код означает успех.
func (m *Metrics) Validation(reasonCode string) {
	if m == nil {
		return
	}
	if reasonCode == "" {
		reasonCode = "valid"
	}
	m.Validations.WithLabelValues(reasonCode).Inc()
}

// Issued учитывает выпуск токена.
func (m *Metrics) Issued() {
	if m == nil {
		return
	}
	m.TokensIssued.Inc()
}

// Revoked учитывает n отозванных токенов.
func (m *Metrics) Revoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensRevoked.Add(float64(n))
}

// Swept учитывает n токенов, выключенных очисткой.
func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensSwept.Add(float64(n))
}

// Downgraded учитывает n пользователей, переведённых на FREE.
func (m *Metrics) Downgraded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Downgrades.Add(float64(n))
}

// Upgrade учитывает смену тарифа.
func (m *Metrics) Upgrade(tier string) {
	if m == nil {
		return
	}
	m.PrincipalsUpgrade.WithLabelValues(tier).Inc()
}
