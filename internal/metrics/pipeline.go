package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline records ingestion and analysis activity. A nil *Pipeline is valid
// and records nothing.
type Pipeline struct {
	batches          *prometheus.CounterVec
	itemsProcessed   prometheus.Counter
	videosCreated    prometheus.Counter
	extractFailures  *prometheus.CounterVec
	analysisOutcomes *prometheus.CounterVec
	analysisDuration prometheus.Histogram
}

// NewPipeline registers the pipeline metrics with reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipscope",
			Subsystem: "ingestion",
			Name:      "batches_total",
			Help:      "Batch-ready deliveries by result.",
		}, []string{"result"}),
		itemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clipscope",
			Subsystem: "ingestion",
			Name:      "items_processed_total",
			Help:      "Inbound items marked processed.",
		}),
		videosCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clipscope",
			Subsystem: "ingestion",
			Name:      "videos_created_total",
			Help:      "Videos staged in committed write groups.",
		}),
		extractFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipscope",
			Subsystem: "ingestion",
			Name:      "extraction_failures_total",
			Help:      "URLs that yielded no metadata, by reason.",
		}, []string{"reason"}),
		analysisOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clipscope",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analysis runs by terminal outcome.",
		}, []string{"outcome"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clipscope",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Wall time of analysis runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	collectors := []prometheus.Collector{
		p.batches, p.itemsProcessed, p.videosCreated,
		p.extractFailures, p.analysisOutcomes, p.analysisDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// BatchHandled counts a batch delivery. result is one of processed, noop,
// duplicate or error.
func (p *Pipeline) BatchHandled(result string) {
	if p == nil {
		return
	}
	p.batches.WithLabelValues(result).Inc()
}

// ItemsCommitted records a committed write group.
func (p *Pipeline) ItemsCommitted(items, videos int) {
	if p == nil {
		return
	}
	p.itemsProcessed.Add(float64(items))
	p.videosCreated.Add(float64(videos))
}

// ExtractionFailed counts a URL that produced no metadata.
func (p *Pipeline) ExtractionFailed(reason string) {
	if p == nil {
		return
	}
	p.extractFailures.WithLabelValues(reason).Inc()
}

// AnalysisFinished records a terminal analysis state.
func (p *Pipeline) AnalysisFinished(outcome string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.analysisOutcomes.WithLabelValues(outcome).Inc()
	p.analysisDuration.Observe(elapsed.Seconds())
}
