package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	PagesFetched     *prometheus.CounterVec
	FetchStops       *prometheus.CounterVec
	OffersExtracted  prometheus.Counter
	OffersSkipped    prometheus.Counter
	PairsUpserted    prometheus.Counter
	SnapshotsSkipped prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics registers the crawler metrics with the given registerer.
// Tests pass a fresh registry; main passes the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_fetched_total",
			Help: "The total number of result pages saved to disk",
		}, []string{"city"}),
		FetchStops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_fetch_stops_total",
			Help: "Region fetch loops terminated, by stop reason",
		}, []string{"reason"}),
		OffersExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_offers_extracted_total",
			Help: "The total number of offers extracted from snapshots",
		}),
		OffersSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_offers_skipped_total",
			Help: "Offers dropped because a required field was missing or malformed",
		}),
		PairsUpserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_pairs_upserted_total",
			Help: "Offer/house pairs committed to the store",
		}),
		SnapshotsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawler_snapshots_skipped_total",
			Help: "Snapshots skipped because they were already processed",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'navigation_failed', 'snapshot_malformed', 'db_upsert_failed'
	}
}

func (m *Metrics) IncPagesFetched(city string) {
	m.PagesFetched.WithLabelValues(city).Inc()
}

func (m *Metrics) IncFetchStops(reason string) {
	m.FetchStops.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
