package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the accounts module.
type Metrics struct {
	AccountsRegistered *prometheus.CounterVec
	HandleRetries      prometheus.Counter
	LoginAttempts      *prometheus.CounterVec
	RoleChanges        *prometheus.CounterVec
	RegisterDuration   prometheus.Histogram
}

// New registers the accounts metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		AccountsRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_accounts_registered_total",
			Help: "Accounts created, by initial role",
		}, []string{"role"}),
		HandleRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_handle_retries_total",
			Help: "Handle candidates rejected because another account already holds them",
		}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		RoleChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_role_changes_total",
			Help: "Role assignments performed by administrators",
		}, []string{"role"}),
		RegisterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "biblioteca_register_duration_seconds",
			Help:    "Duration of account registration, dominated by password hashing",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
	}
}

func (m *Metrics) IncrementRegistered(role string) {
	m.AccountsRegistered.WithLabelValues(role).Inc()
}

func (m *Metrics) IncrementHandleRetry() {
	m.HandleRetries.Inc()
}

func (m *Metrics) IncrementLogin(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementRoleChange(role string) {
	m.RoleChanges.WithLabelValues(role).Inc()
}

// ObserveRegister records the duration of a registration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}
