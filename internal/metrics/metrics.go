package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
	OutcomeError   = "error"
)

// Auth holds the counters of the authentication flows. A nil *Auth records
// nothing.
type Auth struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	logouts       prometheus.Counter
	lockouts      prometheus.Counter
	authFailures  *prometheus.CounterVec
	loginDuration prometheus.Histogram
}

func New() *Auth {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Auth{
		registry: reg,
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh token redemptions by outcome.",
		}, []string{"outcome"}),
		logouts: f.NewCounter(prometheus.CounterOpts{
			Name: "auth_logout_total",
			Help: "Logouts.",
		}),
		lockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Identities that crossed the failed-login threshold.",
		}),
		authFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_request_rejections_total",
			Help: "Requests whose bearer token could not be resolved, by transport.",
		}, []string{"transport"}),
		loginDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "auth_login_duration_seconds",
			Help:    "Time spent in the login flow, hashing included.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// GaugeFunc registers a gauge read on every scrape.
func (m *Auth) GaugeFunc(name string, help string, fn func() float64) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

func (m *Auth) Login(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
	m.loginDuration.Observe(seconds)
}

func (m *Auth) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Auth) Logout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

func (m *Auth) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Auth) Rejected(transport string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(transport).Inc()
}

func (m *Auth) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
