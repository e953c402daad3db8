package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncBatch("single")
	r.AddURLs("products", 10)
	r.IncFiles(true)
	r.IncCompressionFailure()
	r.ObserveRunDuration(time.Second, OutcomeSuccess)
	r.SetLastSuccess(time.Now())
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncBatch("multi")
	pr.AddURLs("products", 120)
	pr.IncFiles(true)
	pr.IncFiles(false)
	pr.IncCompressionFailure()
	pr.ObserveRunDuration(1500*time.Millisecond, OutcomeSuccess)
	pr.SetLastSuccess(time.Unix(1700000000, 0))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"sitemap_gen_batches_total",
		"sitemap_gen_urls_total",
		"sitemap_gen_files_total",
		"sitemap_gen_compression_failures_total",
		"sitemap_gen_run_duration_seconds",
		"sitemap_gen_last_success_timestamp_seconds",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestPrometheusRecorder_WriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.AddURLs("tags", 3)

	path := filepath.Join(t.TempDir(), "textfile", "sitemap_gen.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sitemap_gen_urls_total{batch="tags"} 3`)
}
