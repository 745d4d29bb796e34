// Package metrics exposes Prometheus metrics for pipeline runs.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yashubustudio/orgtrends/mentions"
)

var _ mentions.Observer = (*PipelineMetrics)(nil)

// PipelineMetrics implements mentions.Observer on top of a Prometheus registry.
type PipelineMetrics struct {
	FetchedTotal       *prometheus.CounterVec
	ExtractedTotal     prometheus.Counter
	ClassifierFailures prometheus.Counter
	ExtractDuration    prometheus.Histogram
	RankedEntities     prometheus.Gauge
	EntityMentions     *prometheus.GaugeVec
	registry           *prometheus.Registry
}

// NewPipelineMetrics creates the metrics and registers them with registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.FetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orgtrends_records_fetched_total",
		Help: "Total number of records fetched, by source.",
	}, []string{"source"})

	m.ExtractedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orgtrends_records_extracted_total",
		Help: "Total number of records passed through entity extraction.",
	})

	m.ClassifierFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orgtrends_classifier_failures_total",
		Help: "Total number of failed classifier calls.",
	})

	m.ExtractDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orgtrends_extract_duration_seconds",
		Help:    "Duration of entity extraction per record in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	m.RankedEntities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orgtrends_ranked_entities",
		Help: "Number of entries in the most recent ranked table.",
	})

	m.EntityMentions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orgtrends_entity_mentions",
		Help: "Mention count of each entity in the most recent ranked table.",
	}, []string{"entity"})
}

// RecordsFetched implements mentions.Observer.
func (m *PipelineMetrics) RecordsFetched(source string, n int) {
	m.FetchedTotal.WithLabelValues(source).Add(float64(n))
}

// RecordExtracted implements mentions.Observer. Cancellations are not counted as failures.
func (m *PipelineMetrics) RecordExtracted(elapsed time.Duration, err error) {
	m.ExtractedTotal.Inc()
	m.ExtractDuration.Observe(elapsed.Seconds())
	if errors.Is(err, mentions.ErrClassifierUnavailable) {
		m.ClassifierFailures.Inc()
	}
}

// TableRanked implements mentions.Observer. The per-entity gauge is replaced, so entities
// that dropped out of the top N disappear.
func (m *PipelineMetrics) TableRanked(table mentions.RankedTable) {
	m.EntityMentions.Reset()
	for _, e := range table {
		m.EntityMentions.WithLabelValues(e.Name).Set(float64(e.Count))
	}
	m.RankedEntities.Set(float64(table.Len()))
}

// Describe implements prometheus.Collector.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FetchedTotal.Describe(ch)
	m.ExtractedTotal.Describe(ch)
	m.ClassifierFailures.Describe(ch)
	m.ExtractDuration.Describe(ch)
	m.RankedEntities.Describe(ch)
	m.EntityMentions.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FetchedTotal.Collect(ch)
	m.ExtractedTotal.Collect(ch)
	m.ClassifierFailures.Collect(ch)
	m.ExtractDuration.Collect(ch)
	m.RankedEntities.Collect(ch)
	m.EntityMentions.Collect(ch)
}

// Handler serves the registry in the Prometheus text format.
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
