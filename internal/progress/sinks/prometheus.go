package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/crawl-admission/internal/progress"
)

// PrometheusSink exports admission metrics via Prometheus.
type PrometheusSink struct {
	outcomes      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	depth         prometheus.Histogram
	fetches       prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_outcomes_total",
			Help: "Admission attempts partitioned by outcome kind and reason.",
		}, []string{"kind", "reason"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admission_store_duration_seconds",
			Help:    "Time spent in eligibility store calls per attempt, by outcome kind.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),
		depth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "admission_added_depth",
			Help:    "Crawl depth of admitted queue items.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admission_fetches_recorded_total",
			Help: "Completed fetches reported back to the eligibility store.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.outcomes,
		s.storeDuration,
		s.depth,
		s.fetches,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	if evt.Stage == progress.StageFetchRecorded {
		s.fetches.Inc()
		return
	}
	kind := kindLabel(evt.Stage)
	if kind == "" {
		return
	}
	s.outcomes.WithLabelValues(kind, string(evt.Reason)).Inc()
	if evt.Dur > 0 {
		s.storeDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
	}
	if evt.Stage == progress.StageAdmitAdded {
		s.depth.Observe(float64(evt.Depth))
	}
}

func kindLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageAdmitAdded:
		return "added"
	case progress.StageAdmitDuplicate:
		return "duplicate"
	case progress.StageAdmitDenied:
		return "denied"
	case progress.StageAdmitError:
		return "error"
	default:
		return ""
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
