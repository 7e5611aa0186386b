// Package metric exports engine metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	eng, _ := dnagram.New(ctx, dnagram.WithMetricsCollector(metric.NewPrometheus(reg)))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dnagram"

// Prometheus records engine operations as Prometheus metrics. It implements
// dnagram.MetricsCollector.
type Prometheus struct {
	opLatency    *prometheus.HistogramVec
	matches      *prometheus.CounterVec
	analyses     *prometheus.CounterVec
	analyzedRows prometheus.Counter
	excludedKeys prometheus.Gauge
	lookups      *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of engine operations",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op", "status"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Match evaluations by outcome",
		}, []string{"result"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "High-frequency analyses by status",
		}, []string{"status"}),
		analyzedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzed_rows_total",
			Help:      "Rows scanned by successful analyses",
		}),
		excludedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_analysis_excluded_keys",
			Help:      "Keys flagged by the most recent successful analysis",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exclusion_lookups_total",
			Help:      "Exclusion lookups by the cache tier that answered",
		}, []string{"tier"}),
	}
	reg.MustRegister(p.opLatency, p.matches, p.analyses, p.analyzedRows, p.excludedKeys, p.lookups)
	return p
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordMatch implements dnagram.MetricsCollector.
func (p *Prometheus) RecordMatch(matched bool, d time.Duration, err error) {
	p.opLatency.WithLabelValues("match", status(err)).Observe(d.Seconds())
	switch {
	case err != nil:
		p.matches.WithLabelValues("error").Inc()
	case matched:
		p.matches.WithLabelValues("match").Inc()
	default:
		p.matches.WithLabelValues("no_match").Inc()
	}
}

// RecordScore implements dnagram.MetricsCollector.
func (p *Prometheus) RecordScore(kind string, d time.Duration, err error) {
	p.opLatency.WithLabelValues("score_"+kind, status(err)).Observe(d.Seconds())
}

// RecordAnalysis implements dnagram.MetricsCollector.
func (p *Prometheus) RecordAnalysis(rows int64, excluded int, d time.Duration, err error) {
	p.opLatency.WithLabelValues("analyze", status(err)).Observe(d.Seconds())
	p.analyses.WithLabelValues(status(err)).Inc()
	if err != nil {
		return
	}
	p.analyzedRows.Add(float64(rows))
	p.excludedKeys.Set(float64(excluded))
}

// RecordCacheLookup implements dnagram.MetricsCollector.
func (p *Prometheus) RecordCacheLookup(tier string) {
	p.lookups.WithLabelValues(tier).Inc()
}
