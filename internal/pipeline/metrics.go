package pipeline

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thebtf/ideahunter/pkg/models"
)

const meterName = "github.com/thebtf/ideahunter/internal/pipeline"

// maxRecentLatencies bounds the latency window used for percentiles.
const maxRecentLatencies = 1000

// Item outcomes.
const (
	OutcomeProcessed     = "processed"
	OutcomeNoProblem     = "no_problem"
	OutcomeExtractFailed = "extract_failed"
	OutcomeError         = "error"
)

// Metrics tracks pipeline throughput. Counters are exported through the
// global OpenTelemetry meter provider and mirrored in-process for the status
// API.
type Metrics struct {
	startTime       time.Time
	items           metric.Int64Counter
	runs            metric.Int64Counter
	itemDuration    metric.Float64Histogram
	recentLatencies []time.Duration
	latenciesMu     sync.Mutex
	runsTotal       atomic.Int64
	runsAborted     atomic.Int64
	processed       atomic.Int64
	noProblem       atomic.Int64
	extractFailed   atomic.Int64
	errors          atomic.Int64
	totalLatency    atomic.Int64 // Sum in microseconds
	lastRunUnix     atomic.Int64
}

// NewMetrics creates a metrics tracker on the global meter provider.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a metrics tracker on meter.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	m := &Metrics{
		startTime:       time.Now(),
		recentLatencies: make([]time.Duration, 0, maxRecentLatencies),
	}

	var err error
	if m.items, err = meter.Int64Counter("ideahunter.pipeline.items",
		metric.WithDescription("Posts handled by the pipeline, by outcome")); err != nil {
		log.Warn().Err(err).Msg("Failed to create items counter")
	}
	if m.runs, err = meter.Int64Counter("ideahunter.pipeline.runs",
		metric.WithDescription("Pipeline runs, by status")); err != nil {
		log.Warn().Err(err).Msg("Failed to create runs counter")
	}
	if m.itemDuration, err = meter.Float64Histogram("ideahunter.pipeline.item.duration",
		metric.WithDescription("Time to process one post"),
		metric.WithUnit("s")); err != nil {
		log.Warn().Err(err).Msg("Failed to create item duration histogram")
	}
	return m
}

// RecordItem records the outcome and latency of one processed post.
func (m *Metrics) RecordItem(ctx context.Context, outcome string, latency time.Duration) {
	switch outcome {
	case OutcomeProcessed:
		m.processed.Add(1)
	case OutcomeNoProblem:
		m.noProblem.Add(1)
	case OutcomeExtractFailed:
		m.extractFailed.Add(1)
	case OutcomeError:
		m.errors.Add(1)
	}
	m.totalLatency.Add(latency.Microseconds())

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.items != nil {
		m.items.Add(ctx, 1, attrs)
	}
	if m.itemDuration != nil {
		m.itemDuration.Record(ctx, latency.Seconds(), attrs)
	}

	m.latenciesMu.Lock()
	m.recentLatencies = append(m.recentLatencies, latency)
	if len(m.recentLatencies) > maxRecentLatencies {
		m.recentLatencies = m.recentLatencies[len(m.recentLatencies)-maxRecentLatencies:]
	}
	m.latenciesMu.Unlock()
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, status models.RunStatus, finishedAt time.Time) {
	m.runsTotal.Add(1)
	if status == models.RunStatusAborted {
		m.runsAborted.Add(1)
	}
	m.lastRunUnix.Store(finishedAt.Unix())
	if m.runs != nil {
		m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}
}

// Snapshot is a point-in-time copy of the in-process counters.
type Snapshot struct {
	LastRunAt     *time.Time    `json:"last_run_at,omitempty"`
	Runs          int64         `json:"runs"`
	RunsAborted   int64         `json:"runs_aborted"`
	Processed     int64         `json:"processed"`
	NoProblem     int64         `json:"no_problem"`
	ExtractFailed int64         `json:"extract_failed"`
	Errors        int64         `json:"errors"`
	AvgLatency    time.Duration `json:"avg_latency_ns"`
	P50Latency    time.Duration `json:"p50_latency_ns"`
	P95Latency    time.Duration `json:"p95_latency_ns"`
	Uptime        time.Duration `json:"uptime_ns"`
}

// Items returns the number of posts handled across all outcomes.
func (s Snapshot) Items() int64 {
	return s.Processed + s.NoProblem + s.ExtractFailed + s.Errors
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Runs:          m.runsTotal.Load(),
		RunsAborted:   m.runsAborted.Load(),
		Processed:     m.processed.Load(),
		NoProblem:     m.noProblem.Load(),
		ExtractFailed: m.extractFailed.Load(),
		Errors:        m.errors.Load(),
		Uptime:        time.Since(m.startTime),
	}
	if unix := m.lastRunUnix.Load(); unix > 0 {
		t := time.Unix(unix, 0).UTC()
		s.LastRunAt = &t
	}
	if items := s.Items(); items > 0 {
		s.AvgLatency = time.Duration(m.totalLatency.Load()/items) * time.Microsecond
	}

	m.latenciesMu.Lock()
	sorted := slices.Clone(m.recentLatencies)
	m.latenciesMu.Unlock()
	slices.Sort(sorted)
	s.P50Latency = percentile(sorted, 0.50)
	s.P95Latency = percentile(sorted, 0.95)
	return s
}

// percentile returns the pth percentile of an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
