package docqa

import (
	"github.com/WessleyAI/docqa/engine/domain"
	"github.com/WessleyAI/docqa/pkg/metrics"
)

// serviceMetrics are the counters and timings the service reports.
type serviceMetrics struct {
	reg *metrics.Registry

	processed       *metrics.Counter
	processFailures *metrics.Counter
	processSeconds  *metrics.Histogram
	searchSeconds   *metrics.Histogram
	askSeconds      *metrics.Histogram
	remoteFailures  *metrics.Counter
	busyRejections  *metrics.Counter
	documentSize    *metrics.Gauge
}

func newServiceMetrics(reg *metrics.Registry) *serviceMetrics {
	if reg == nil {
		reg = metrics.New()
	}
	return &serviceMetrics{
		reg:             reg,
		processed:       reg.Counter("docqa_documents_processed_total", "Documents processed successfully."),
		processFailures: reg.Counter("docqa_document_failures_total", "Documents that could not be processed."),
		processSeconds:  reg.Histogram("docqa_process_duration_seconds", "Time to process a document.", nil),
		searchSeconds:   reg.Histogram("docqa_search_duration_seconds", "Time to answer a search.", nil),
		askSeconds:      reg.Histogram("docqa_ask_duration_seconds", "Time to compose an answer.", nil),
		remoteFailures:  reg.Counter("docqa_remote_failures_total", "Searches degraded by a failed remote call."),
		busyRejections:  reg.Counter("docqa_busy_rejections_total", "Requests rejected while a document was loading."),
		documentSize:    reg.Gauge("docqa_document_fragments", "Fragments in the loaded document."),
	}
}

func (m *serviceMetrics) fragment(kind domain.Kind) {
	m.reg.Counter(metrics.WithLabels("docqa_fragments_total", "type", string(kind)), "Fragments extracted by type.").Inc()
}

func (m *serviceMetrics) embedFailure(kind domain.Kind) {
	m.reg.Counter(metrics.WithLabels("docqa_embedding_failures_total", "type", string(kind)), "Fragments whose embedding failed.").Inc()
}

func (m *serviceMetrics) extractFailure(stage string) {
	m.reg.Counter(metrics.WithLabels("docqa_extraction_failures_total", "stage", stage), "Page stages skipped during extraction.").Inc()
}
