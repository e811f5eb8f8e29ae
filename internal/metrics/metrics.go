package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts calls to the remote services and analysis outcomes.
type Metrics struct {
	Registry        *prometheus.Registry
	CatalogRequests *prometheus.CounterVec
	ProcessRequests *prometheus.CounterVec
	AnalysisDates   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CatalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrosense_catalog_requests_total",
			Help: "Scene catalog searches by outcome.",
		}, []string{"outcome"}),
		ProcessRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrosense_process_requests_total",
			Help: "Synchronous processing jobs by outcome.",
		}, []string{"outcome"}),
		AnalysisDates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agrosense_analysis_dates_total",
			Help: "Requested dates processed by the analyzer, by status.",
		}, []string{"status"}),
	}
	m.Registry.MustRegister(m.CatalogRequests, m.ProcessRequests, m.AnalysisDates)
	return m
}
