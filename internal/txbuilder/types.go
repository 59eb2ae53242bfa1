package txbuilder

import "time"

type (
	// Metrics records builder operation outcomes.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
		ObserveFee(operation string, fee int64, size int)
	}
)

type nopMetrics struct{}

func (nopMetrics) Observe(string, error, time.Time) {}

func (nopMetrics) ObserveFee(string, int64, int) {}
