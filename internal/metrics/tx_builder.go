// Package metrics exposes application metrics collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goodnatureofminers/custody-core/internal/model"
)

var (
	txBuilderOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "custody",
		Subsystem: "tx_builder",
		Name:      "operations_total",
		Help:      "Count of transaction builder operations.",
	}, []string{"operation", "network", "status"})
	txBuilderOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "custody",
		Subsystem: "tx_builder",
		Name:      "operation_duration_seconds",
		Help:      "Duration of transaction builder operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "network", "status"})
	txBuilderFeeRate = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "custody",
		Subsystem: "tx_builder",
		Name:      "fee_rate_satoshis_per_byte",
		Help:      "Realized fee rate of built transactions.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1..2048
	}, []string{"operation", "network"})
)

// TxBuilder tracks metrics for transaction construction.
type TxBuilder struct {
	network model.Network
}

// NewTxBuilder constructs a metrics collector for the transaction builder.
func NewTxBuilder(network model.Network) *TxBuilder {
	if network == "" {
		network = "unknown"
	}
	return &TxBuilder{network: network}
}

// Observe records a single builder operation outcome and duration.
func (m TxBuilder) Observe(operation string, err error, started time.Time) {
	status := Status(err)
	txBuilderOperationsTotal.WithLabelValues(operation, string(m.network), status).Inc()
	txBuilderOperationDuration.WithLabelValues(operation, string(m.network), status).Observe(time.Since(started).Seconds())
}

// ObserveFee records the realized fee per serialized byte of a built transaction.
func (m TxBuilder) ObserveFee(operation string, fee int64, size int) {
	if size <= 0 {
		return
	}
	txBuilderFeeRate.WithLabelValues(operation, string(m.network)).Observe(float64(fee) / float64(size))
}

// Status maps an error onto a low-cardinality status label.
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, model.ErrTxConstruction):
		return "construction"
	case errors.Is(err, model.ErrVerification):
		return "verification"
	default:
		return "error"
	}
}
