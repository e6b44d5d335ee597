package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/meshforge/scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors. Plug it
// into core.Config.Metrics to export batch durations, panics,
// rejections, and per-tick queue depths.
type MetricsExporter struct {
	batchDurationSeconds *prom.HistogramVec
	taskPanicTotal       *prom.CounterVec
	taskRejectedTotal    *prom.CounterVec
	queueDepth           *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "scheduler"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Parallel batch duration from enqueue to exhaustion, in seconds.",
		Buckets:   buckets,
	}, []string{"task"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of recovered task panics.",
	}, []string{"site"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"queue", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Work queue depth at the end of the last driver tick.",
	}, []string{"queue"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		batchDurationSeconds: durationVec,
		taskPanicTotal:       panicVec,
		taskRejectedTotal:    rejectedVec,
		queueDepth:           queueDepthVec,
	}, nil
}

// RecordBatchDuration records one parallel batch's wall time.
func (m *MetricsExporter) RecordBatchDuration(taskName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.batchDurationSeconds.WithLabelValues(normalizeLabel(taskName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records a recovered panic at the given site.
func (m *MetricsExporter) RecordTaskPanic(site string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(site, "unknown")).Inc()
}

// RecordQueueDepth records one queue's depth.
func (m *MetricsExporter) RecordQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queue, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records a task rejected at enqueue time.
func (m *MetricsExporter) RecordTaskRejected(queue string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(queue, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
