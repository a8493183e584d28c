// Dispatcher metrics (ambient observability), grounded in
// other_examples' ai-cv-evaluator branch's prometheus/client_golang
// usage. Counters only — no histograms, to keep this ambient concern
// proportionate to the core it instruments.
package sagabus

import "github.com/prometheus/client_golang/prometheus"

var (
	entriesRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagabus",
		Name:      "dispatcher_entries_read_total",
		Help:      "Entries read by a handler's consumer loop, before event-type filtering.",
	}, []string{"handler", "stream"})

	entriesAcked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagabus",
		Name:      "dispatcher_entries_acked_total",
		Help:      "Entries acknowledged after a successful handler invocation.",
	}, []string{"handler", "stream"})

	entriesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagabus",
		Name:      "dispatcher_entries_skipped_total",
		Help:      "Entries skipped due to an event_type filter mismatch (never acked).",
	}, []string{"handler", "stream"})

	entriesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagabus",
		Name:      "dispatcher_entries_failed_total",
		Help:      "Entries whose handler invocation raised (not acked, awaiting redelivery).",
	}, []string{"handler", "stream"})
)

// Registerer is the subset of prometheus.Registerer this package needs,
// so callers can pass either the default registry or a scoped one.
type Registerer interface {
	Register(prometheus.Collector) error
}

// RegisterMetrics registers the dispatcher's counters with reg. A counter
// that is already registered is skipped (its AlreadyRegisteredError is
// ignored), so calling it again against the same registry returns nil.
func RegisterMetrics(reg Registerer) error {
	for _, c := range []prometheus.Collector{entriesRead, entriesAcked, entriesSkipped, entriesFailed} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
