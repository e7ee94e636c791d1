package observability

import (
	"net/http"
	"time"

	"github.com/pharmly/credit-ledger/credit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "credit_ledger"

// Metrics exposes Prometheus collectors for ledger activity. It implements
// credit.Observer.
type Metrics struct {
	gatherer prometheus.Gatherer

	transactions  *prometheus.CounterVec
	amounts       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	discrepancies *prometheus.GaugeVec
	audits        *prometheus.CounterVec
}

var _ credit.Observer = (*Metrics)(nil)

// NewMetrics registers the collectors on reg. A nil registry gets a fresh
// private one, so tests and multiple servers never collide.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Credit transactions recorded, by type.",
		}, []string{"type"}),
		amounts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_amount_total",
			Help:      "Sum of recorded transaction amounts, by type.",
		}, []string{"type"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Credit transactions rejected, by type and reason.",
		}, []string{"type", "reason"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time to validate and persist a credit transaction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		discrepancies: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_discrepancies",
			Help:      "Customers whose balance disagreed with the ledger at the last audit.",
		}, []string{"store"}),
		audits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_total",
			Help:      "Completed balance audits, by store.",
		}, []string{"store"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) TransactionRecorded(tx credit.Transaction, elapsed time.Duration) {
	t := string(tx.Type)
	m.transactions.WithLabelValues(t).Inc()
	m.amounts.WithLabelValues(t).Add(tx.Amount.InexactFloat64())
	m.latency.WithLabelValues(t).Observe(elapsed.Seconds())
}

func (m *Metrics) TransactionRejected(t credit.TransactionType, reason string) {
	label := string(t)
	if !t.Valid() {
		label = "unknown"
	}
	m.rejections.WithLabelValues(label, reason).Inc()
}

func (m *Metrics) AuditCompleted(storeID credit.StoreID, report credit.AuditReport) {
	m.audits.WithLabelValues(string(storeID)).Inc()
	m.discrepancies.WithLabelValues(string(storeID)).Set(float64(len(report.Discrepancies)))
}
