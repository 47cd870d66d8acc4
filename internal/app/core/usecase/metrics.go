package usecase

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JoeShih716/go-token-ledger/internal/app/core/domain"
)

const metricsNamespace = "ledger"

// Metrics 帳本操作的 prometheus 指標
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	totalSupply prometheus.Gauge
}

// NewMetrics 建立並註冊指標
func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "number of ledger operations by operation and result",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "time spent applying a ledger operation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "total_supply",
			Help:      "sum of all account balances",
		}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.duration, m.totalSupply} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) setSupply(v uint64) {
	if m == nil {
		return
	}
	m.totalSupply.Set(float64(v))
}

func (m *Metrics) addSupply(v uint64) {
	if m == nil {
		return
	}
	m.totalSupply.Add(float64(v))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrOverflow):
		return "overflow"
	case errors.Is(err, domain.ErrTransactionConflict):
		return "conflict"
	default:
		return "error"
	}
}
