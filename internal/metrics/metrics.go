// metrics — счётчики и гистограммы Prometheus сервиса аутентификации.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы событий аутентификации.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder — то, что нужно сервисному слою от метрик.
type Recorder interface {
	// AuthEvent учитывает событие (signup, signin, refresh, ...) с исходом.
	AuthEvent(event, outcome string)
	// RefreshReuse учитывает повторное предъявление израсходованного refresh-токена.
	RefreshReuse()
}

// Nop — Recorder, который ничего не делает.
type Nop struct{}

func (Nop) AuthEvent(string, string) {}
func (Nop) RefreshReuse()            {}

// Metrics — набор метрик, зарегистрированных в одном Registerer.
type Metrics struct {
	authEvents   *prometheus.CounterVec
	refreshReuse prometheus.Counter
	janitor      prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New создаёт метрики и регистрирует их в reg. Повторная регистрация в том же
// реестре паникует, как и prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "events_total",
			Help:      "Authentication events by type and outcome.",
		}, []string{"event", "outcome"}),
		refreshReuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refresh_reuse_total",
			Help:      "Presentations of already consumed or revoked refresh tokens.",
		}),
		janitor: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "janitor_deleted_total",
			Help:      "Expired refresh tokens removed by the janitor.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(m.authEvents, m.refreshReuse, m.janitor, m.httpRequests, m.httpDuration)

	return m
}

func (m *Metrics) AuthEvent(event, outcome string) {
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) RefreshReuse() {
	m.refreshReuse.Inc()
}

// JanitorDeleted учитывает удалённые уборщиком токены.
func (m *Metrics) JanitorDeleted(n int64) {
	if n > 0 {
		m.janitor.Add(float64(n))
	}
}

// ObserveHTTP учитывает один HTTP-запрос. route — шаблон маршрута, а не путь.
func (m *Metrics) ObserveHTTP(route, method string, status int, dur time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

var _ Recorder = (*Metrics)(nil)
