package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/sitemap-gen/pkg/config"
	"github.com/Sriram-PR/sitemap-gen/pkg/emit"
	"github.com/Sriram-PR/sitemap-gen/pkg/models"
	"github.com/Sriram-PR/sitemap-gen/pkg/sitemap"
	"github.com/Sriram-PR/sitemap-gen/pkg/source"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

const testBase = "https://www.example.com"

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func fixedClock() time.Time { return fixedNow }

func boolPtr(b bool) *bool { return &b }

func productRows(n int) []models.Row {
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = models.NewRow(
			[]string{"Id", "Name", "Modified"},
			[]any{int64(i + 1), fmt.Sprintf("Item %d", i+1), "2024-01-02 03:04:05"},
		)
	}
	return rows
}

func batch(name string, maxLinks int) config.BatchConfig {
	return config.BatchConfig{
		Name:               name,
		MaxLinks:           maxLinks,
		URL:                name + "/{Id}/{Name:NormalizeString('-')}",
		SelectQuery:        "SELECT * FROM " + name,
		OrderByColumn:      "Id",
		ModifiedDateColumn: "Modified",
		ChangeFrequency:    sitemap.ChangeDaily,
		Compress:           boolPtr(false),
	}
}

func newTestOrchestrator(cfg *config.Config, tables *source.StaticTables, opts ...Option) *Orchestrator {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewOrchestrator(cfg, tables.Factory(), testLogger(), opts...)
}

func readIndex(t *testing.T, path string) []sitemap.IndexEntry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := sitemap.DecodeIndex(f)
	require.NoError(t, err)
	return entries
}

func readURLSet(t *testing.T, path string) []sitemap.Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := sitemap.DecodeURLSet(f)
	require.NoError(t, err)
	return entries
}

func TestRun_SingleFile(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(3))
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 5)}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.NoError(t, err)

	assert.Equal(t, testBase+"/sitemap.xml", summary.RootURL)
	assert.Equal(t, 3, summary.TotalURLs)
	assert.Equal(t, 2, summary.TotalFiles)
	require.Len(t, summary.Batches, 1)
	assert.Equal(t, models.BatchStrategySingle, summary.Batches[0].Strategy)
	assert.Equal(t, 1, tables.Fetches("SELECT * FROM products"))

	root := readIndex(t, filepath.Join(out, "sitemap.xml"))
	require.Len(t, root, 1)
	assert.Equal(t, testBase+"/products.xml", root[0].URL)
	assert.True(t, root[0].LastMod.Equal(fixedNow))

	entries := readURLSet(t, filepath.Join(out, "products.xml"))
	require.Len(t, entries, 3)
	assert.Equal(t, testBase+"/products/1/item-1", entries[0].URL)
	assert.Equal(t, sitemap.ChangeDaily, entries[0].ChangeFreq)
	assert.Equal(t, 1.0, *entries[0].Priority)
	assert.True(t, entries[0].LastMod.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.NoDirExists(t, filepath.Join(out, "products"))
}

func TestRun_MultiFileExactMultiple(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(4))
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 2)}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.NoError(t, err)

	// Pages 0 and 1 are full, page 2 confirms the end.
	assert.Equal(t, 3, tables.Fetches("SELECT * FROM products"))
	assert.Equal(t, models.BatchStrategyMulti, summary.Batches[0].Strategy)
	assert.Equal(t, 2, summary.Batches[0].Pages)

	dir := filepath.Join(out, "products")
	assert.FileExists(t, filepath.Join(dir, "products-1.xml"))
	assert.FileExists(t, filepath.Join(dir, "products-2.xml"))
	assert.NoFileExists(t, filepath.Join(dir, "products-3.xml"))

	child := readIndex(t, filepath.Join(dir, "products.xml"))
	require.Len(t, child, 2)
	assert.Equal(t, testBase+"/products/products-1.xml", child[0].URL)
	assert.Equal(t, testBase+"/products/products-2.xml", child[1].URL)

	root := readIndex(t, filepath.Join(out, "sitemap.xml"))
	require.Len(t, root, 1)
	assert.Equal(t, testBase+"/products/products.xml", root[0].URL)
}

func TestRun_MultiFilePartialLastPage(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(5))
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 2)}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Batches[0].Pages)
	assert.Equal(t, 5, summary.TotalURLs)
	// 3 pages + sub-index + root
	assert.Equal(t, 5, summary.TotalFiles)
	last := readURLSet(t, filepath.Join(out, "products", "products-3.xml"))
	require.Len(t, last, 1)
	assert.Equal(t, testBase+"/products/5/item-5", last[0].URL)
}

func TestRun_EmptyBatchSkipped(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(2))
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{
		batch("empty", 10),
		batch("products", 10),
	}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.NoError(t, err)

	assert.Equal(t, models.BatchStrategySkipped, summary.Batches[0].Strategy)
	assert.Empty(t, summary.Batches[0].Files)
	assert.NoFileExists(t, filepath.Join(out, "empty.xml"))
	assert.NoDirExists(t, filepath.Join(out, "empty"))

	root := readIndex(t, filepath.Join(out, "sitemap.xml"))
	require.Len(t, root, 1)
	assert.Equal(t, testBase+"/products.xml", root[0].URL)
}

func TestRun_AllBatchesEmptyStillWritesRoot(t *testing.T) {
	out := t.TempDir()
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("empty", 10)}}

	_, err := newTestOrchestrator(cfg, source.NewStaticTables()).Run(context.Background(), out)
	require.NoError(t, err)
	assert.Empty(t, readIndex(t, filepath.Join(out, "sitemap.xml")))
}

func TestRun_Compressed(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(3))
	b := batch("products", 2)
	b.Compress = nil
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{b}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "products", "products-1.xml.gz"))
	assert.NoFileExists(t, filepath.Join(out, "products", "products-1.xml"))
	assert.FileExists(t, filepath.Join(out, "products", "products.xml.gz"))
	assert.FileExists(t, filepath.Join(out, "sitemap.xml"))
	assert.Equal(t, testBase+"/products/products.xml.gz", summary.Batches[0].IndexURL)

	report, err := sitemap.Inspect(context.Background(), out, testLogger().WithField("test", t.Name()))
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalURLs)
	assert.Empty(t, report.Unresolved)
}

type failingCompressor struct{}

func (failingCompressor) Compress(_, _ string) error {
	return fmt.Errorf("%w: disk full", utils.ErrCompression)
}

func TestRun_CompressionFailureKeepsPlainFile(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(1))
	b := batch("products", 10)
	b.Compress = boolPtr(true)
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{b}}

	em := emit.NewEmitter(testBase, testLogger(), emit.WithCompressor(failingCompressor{}))
	_, err := newTestOrchestrator(cfg, tables, WithEmitter(em)).Run(context.Background(), out)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "products.xml"))
	root := readIndex(t, filepath.Join(out, "sitemap.xml"))
	require.Len(t, root, 1)
	assert.Equal(t, testBase+"/products.xml", root[0].URL)
}

func TestRun_Idempotent(t *testing.T) {
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(5))
	tables.Set("SELECT * FROM brands", productRows(1))
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 2), batch("brands", 2)}}

	first, second := t.TempDir(), t.TempDir()
	_, err := newTestOrchestrator(cfg, tables).Run(context.Background(), first)
	require.NoError(t, err)
	_, err = newTestOrchestrator(cfg, tables).Run(context.Background(), second)
	require.NoError(t, err)

	assertSameTree(t, first, second)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	tables := source.NewStaticTables()
	batches := make([]config.BatchConfig, 0, 6)
	for i := range 6 {
		name := fmt.Sprintf("set%d", i)
		tables.Set("SELECT * FROM "+name, productRows(i*3))
		batches = append(batches, batch(name, 4))
	}

	seqDir, parDir := t.TempDir(), t.TempDir()
	seqCfg := &config.Config{BaseURL: testBase, Batches: batches}
	parCfg := &config.Config{BaseURL: testBase, Batches: batches, ParallelBatches: 3}

	seq, err := newTestOrchestrator(seqCfg, tables).Run(context.Background(), seqDir)
	require.NoError(t, err)
	par, err := newTestOrchestrator(parCfg, tables).Run(context.Background(), parDir)
	require.NoError(t, err)

	assert.Equal(t, seq.TotalURLs, par.TotalURLs)
	require.Len(t, par.Batches, len(batches))
	for i := range batches {
		assert.Equal(t, batches[i].Name, par.Batches[i].Batch)
	}
	assertSameTree(t, seqDir, parDir)
}

func TestRun_MissingColumnAborts(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(2))
	b := batch("products", 10)
	b.URL = "p/{Sku}"
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{b}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrMissingColumn)

	var missing *utils.MissingColumnError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "products", missing.Batch)
	assert.Equal(t, "Sku", missing.Column)

	assert.NotNil(t, summary)
	assert.Empty(t, summary.RootURL)
	assert.NoFileExists(t, filepath.Join(out, "sitemap.xml"))
}

func TestRun_FetchErrorAbortsAndKeepsPartialFiles(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(6))
	tables.FailAt("SELECT * FROM products", 1)
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 2)}}

	_, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrDataFetch)
	assert.Contains(t, err.Error(), "products")

	assert.FileExists(t, filepath.Join(out, "products", "products-1.xml"))
	assert.NoFileExists(t, filepath.Join(out, "sitemap.xml"))
}

func TestRun_LaterBatchFailureAbortsRun(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(2))
	tables.Set("SELECT * FROM brands", productRows(2))
	tables.FailAt("SELECT * FROM brands", 0)
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 10), batch("brands", 10)}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.ErrorIs(t, err, utils.ErrDataFetch)
	require.Len(t, summary.Batches, 1)
	assert.Equal(t, "products", summary.Batches[0].Batch)
	assert.FileExists(t, filepath.Join(out, "products.xml"))
	assert.NoFileExists(t, filepath.Join(out, "sitemap.xml"))
}

func TestRun_ModifiedDateFallback(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", []models.Row{
		models.NewRow([]string{"Id", "Name", "Modified"}, []any{1, "a", "not a date"}),
		models.NewRow([]string{"Id", "Name", "Modified"}, []any{2, "b", nil}),
		models.NewRow([]string{"Id", "Name", "Modified"}, []any{3, "c", ""}),
		models.NewRow([]string{"Id", "Name", "Modified"}, []any{4, "d", time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)}),
	})
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 10)}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Batches[0].DateFallbacks)

	entries := readURLSet(t, filepath.Join(out, "products.xml"))
	require.Len(t, entries, 4)
	for _, e := range entries[:3] {
		assert.True(t, e.LastMod.Equal(fixedNow), e.URL)
	}
	assert.True(t, entries[3].LastMod.Equal(time.Date(2023, 5, 6, 7, 8, 9, 0, time.UTC)))
}

func TestRun_ModifiedDateColumnAbsentAborts(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", []models.Row{
		models.NewRow([]string{"Id", "Name"}, []any{1, "a"}),
		models.NewRow([]string{"Id", "Name"}, []any{2, "b"}),
	})
	b := batch("products", 10)
	b.ModifiedDateColumn = "UpdatedOn"
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{b}}

	summary, err := newTestOrchestrator(cfg, tables).Run(context.Background(), out)
	require.ErrorIs(t, err, utils.ErrMissingColumn)

	var missing *utils.MissingColumnError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "products", missing.Batch)
	assert.Equal(t, "UpdatedOn", missing.Column)

	assert.Empty(t, summary.RootURL)
	assert.NoFileExists(t, filepath.Join(out, "products.xml"))
	assert.NoFileExists(t, filepath.Join(out, "sitemap.xml"))
}

type denyPrefix string

func (d denyPrefix) Allowed(u string) bool {
	return !strings.HasPrefix(u, string(d))
}

func TestRun_RobotsDisallowedCounted(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(3))
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 10)}}

	summary, err := newTestOrchestrator(cfg, tables, WithRobots(denyPrefix(testBase+"/products/2/"))).Run(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Batches[0].DisallowedURLs)
	assert.Len(t, readURLSet(t, filepath.Join(out, "products.xml")), 3)
}

func TestRun_Cancelled(t *testing.T) {
	out := t.TempDir()
	tables := source.NewStaticTables()
	tables.Set("SELECT * FROM products", productRows(3))
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 10)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestOrchestrator(cfg, tables).Run(ctx, out)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, tables.Fetches("SELECT * FROM products"))
	assert.NoFileExists(t, filepath.Join(out, "sitemap.xml"))
}

func TestRun_MissingOutputDir(t *testing.T) {
	cfg := &config.Config{BaseURL: testBase, Batches: []config.BatchConfig{batch("products", 10)}}
	_, err := newTestOrchestrator(cfg, source.NewStaticTables()).Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, utils.ErrFilesystem)
}

func TestBuildRunRecord(t *testing.T) {
	s := &RunSummary{RootURL: testBase + "/sitemap.xml", TotalURLs: 4, TotalFiles: 2, StartedAt: fixedNow, FinishedAt: fixedNow}

	rec := BuildRunRecord("id-1", "/out", "abc", s, nil)
	assert.Equal(t, models.RunStatusSuccess, rec.Status)
	assert.Equal(t, 4, rec.TotalURLs)
	assert.Empty(t, rec.ErrorType)

	rec = BuildRunRecord("id-2", "/out", "abc", s, fmt.Errorf("%w: boom", utils.ErrDataFetch))
	assert.Equal(t, models.RunStatusFailure, rec.Status)
	assert.Equal(t, "DataFetch_Other", rec.ErrorType)
	assert.Contains(t, rec.ErrorMessage, "boom")

	rec = BuildRunRecord("id-3", "/out", "", nil, context.Canceled)
	assert.Equal(t, models.RunStatusCancelled, rec.Status)
}

// assertSameTree compares every file below two output directories byte for byte
func assertSameTree(t *testing.T, a, b string) {
	t.Helper()
	files := map[string][]byte{}
	require.NoError(t, filepath.WalkDir(a, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(a, path)
		data, err := os.ReadFile(path)
		files[rel] = data
		return err
	}))
	count := 0
	require.NoError(t, filepath.WalkDir(b, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(b, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		want, ok := files[rel]
		assert.True(t, ok, "unexpected file %s", rel)
		assert.Equal(t, string(want), string(data), rel)
		count++
		return nil
	}))
	assert.Equal(t, len(files), count)
}
