package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "skyfuse"

// Metrics holds all skyfuse metric instruments.
type Metrics struct {
	Dispatches          metric.Int64Counter
	DispatchFailures    metric.Int64Counter
	DelegationsRejected metric.Int64Counter
	TasksCompleted      metric.Int64Counter
	TasksFailed         metric.Int64Counter
	TasksCanceled       metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Dispatches, err = meter.Int64Counter("skyfuse.dispatches",
		metric.WithDescription("Number of specialist dispatches"))
	if err != nil {
		return nil, err
	}

	m.DispatchFailures, err = meter.Int64Counter("skyfuse.dispatch.failures",
		metric.WithDescription("Number of failed or timed-out dispatches"))
	if err != nil {
		return nil, err
	}

	m.DelegationsRejected, err = meter.Int64Counter("skyfuse.delegations.rejected",
		metric.WithDescription("Number of delegation requests rejected at the depth ceiling"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("skyfuse.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("skyfuse.tasks.failed",
		metric.WithDescription("Number of tasks failed"))
	if err != nil {
		return nil, err
	}

	m.TasksCanceled, err = meter.Int64Counter("skyfuse.tasks.canceled",
		metric.WithDescription("Number of tasks canceled"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("skyfuse.dispatch.duration_seconds",
		metric.WithDescription("Specialist dispatch duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
