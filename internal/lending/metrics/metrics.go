package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the lending ledger.
type Metrics struct {
	LoansCreated       prometheus.Counter
	LoansReturned      prometheus.Counter
	LateReturns        prometheus.Counter
	FinesAssessed      prometheus.Counter
	CapacityRejections prometheus.Counter
	Inconsistencies    prometheus.Counter
	LedgerTxDuration   *prometheus.HistogramVec
}

// New registers the lending metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		LoansCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_loans_created_total",
			Help: "Loans opened",
		}),
		LoansReturned: f.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_loans_returned_total",
			Help: "Loans closed by a return",
		}),
		LateReturns: f.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_late_returns_total",
			Help: "Returns that fixed a non-zero fine",
		}),
		FinesAssessed: f.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_fines_assessed_total",
			Help: "Sum of fines fixed on return, in whole currency units",
		}),
		CapacityRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_borrow_capacity_rejections_total",
			Help: "Borrow attempts rejected because no copy was available",
		}),
		Inconsistencies: f.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_copy_bookkeeping_inconsistencies_total",
			Help: "Copy counts that could not be adjusted to match a loan transition",
		}),
		LedgerTxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "biblioteca_ledger_tx_duration_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementLoansCreated() {
	m.LoansCreated.Inc()
}

// IncrementReturned counts a return and, when it fixed a fine, the fine.
func (m *Metrics) IncrementReturned(fine int64) {
	m.LoansReturned.Inc()
	if fine > 0 {
		m.LateReturns.Inc()
		m.FinesAssessed.Add(float64(fine))
	}
}

func (m *Metrics) IncrementCapacityRejection() {
	m.CapacityRejections.Inc()
}

func (m *Metrics) IncrementInconsistency() {
	m.Inconsistencies.Inc()
}

// ObserveLedgerTx records the duration of a ledger transaction.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLedgerTx(operation string, start time.Time) {
	m.LedgerTxDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
