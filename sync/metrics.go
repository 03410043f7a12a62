package sync

import (
	"log/slog"
)

// MetricServiceAPICall is incremented once per request sent to the service.
const MetricServiceAPICall = "ship.service_api.call"

// Metrics receives counters from the client and agent.
type Metrics interface {
	Increment(name string, value int, tags ...string)
}

type nopMetrics struct{}

func (nopMetrics) Increment(string, int, ...string) {}

// LogMetrics writes counters to a structured logger at debug level.
type LogMetrics struct {
	Logger *slog.Logger
}

func (m LogMetrics) Increment(name string, value int, tags ...string) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("metric", "name", name, "value", value, "tags", tags)
}
