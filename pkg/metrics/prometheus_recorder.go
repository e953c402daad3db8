package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder on a private registry so a one-shot CLI run can
// dump its metrics as a node-exporter textfile.
type PrometheusRecorder struct {
	reg                 *prom.Registry
	batches             *prom.CounterVec
	urls                *prom.CounterVec
	files               *prom.CounterVec
	compressionFailures prom.Counter
	runDuration         *prom.HistogramVec
	lastSuccess         prom.Gauge
}

// NewPrometheusRecorder constructs and registers the generator metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.batches = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "sitemap_gen",
		Name:      "batches_total",
		Help:      "Processed batches by strategy (skipped, single, multi)",
	}, []string{"strategy"})
	pr.urls = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "sitemap_gen",
		Name:      "urls_total",
		Help:      "URLs written per batch",
	}, []string{"batch"})
	pr.files = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "sitemap_gen",
		Name:      "files_total",
		Help:      "Sitemap files emitted",
	}, []string{"compressed"})
	pr.compressionFailures = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitemap_gen",
		Name:      "compression_failures_total",
		Help:      "Files published uncompressed because gzip failed",
	})
	pr.runDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "sitemap_gen",
		Name:      "run_duration_seconds",
		Help:      "Duration of full generation runs",
		Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
	}, []string{"outcome"})
	pr.lastSuccess = prom.NewGauge(prom.GaugeOpts{
		Namespace: "sitemap_gen",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	})
	reg.MustRegister(pr.batches, pr.urls, pr.files, pr.compressionFailures, pr.runDuration, pr.lastSuccess)
	return pr
}

// Registry exposes the registry the metrics are registered on
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) IncBatch(strategy string) {
	p.batches.WithLabelValues(strategy).Inc()
}

func (p *PrometheusRecorder) AddURLs(batch string, n int) {
	p.urls.WithLabelValues(batch).Add(float64(n))
}

func (p *PrometheusRecorder) IncFiles(compressed bool) {
	p.files.WithLabelValues(strconv.FormatBool(compressed)).Inc()
}

func (p *PrometheusRecorder) IncCompressionFailure() {
	p.compressionFailures.Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration, outcome RunOutcome) {
	p.runDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetLastSuccess(t time.Time) {
	p.lastSuccess.Set(float64(t.Unix()))
}

// WriteTextfile writes the current metric values in the text exposition format.
// The file is written atomically so a node-exporter scrape never sees a partial file.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create metrics dir '%s': %w", dir, err)
		}
	}
	return prom.WriteToTextfile(path, p.reg)
}
