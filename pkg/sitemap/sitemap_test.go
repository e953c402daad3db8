package sitemap

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestParseChangeFrequency(t *testing.T) {
	for _, in := range []string{"Weekly", "weekly", "WEEKLY", " weekly "} {
		cf, err := ParseChangeFrequency(in)
		require.NoError(t, err, in)
		assert.Equal(t, ChangeWeekly, cf)
	}

	_, err := ParseChangeFrequency("fortnightly")
	assert.Error(t, err)
	assert.False(t, ChangeFrequency("").IsValid())
}

func TestChangeFrequency_UnmarshalYAML(t *testing.T) {
	var doc struct {
		Freq ChangeFrequency `yaml:"freq"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`freq: Daily`), &doc))
	assert.Equal(t, ChangeDaily, doc.Freq)

	err := yaml.Unmarshal([]byte(`freq: sometimes`), &doc)
	assert.Error(t, err)
}

func TestChangeFrequency_UnmarshalText(t *testing.T) {
	var cf ChangeFrequency
	require.NoError(t, cf.UnmarshalText([]byte("MONTHLY")))
	assert.Equal(t, ChangeMonthly, cf)
	assert.Error(t, cf.UnmarshalText([]byte("bogus")))
}

func TestURLSet_Serialization(t *testing.T) {
	set := NewURLSet(2)
	set.Add(Entry{
		URL:        "https://Example.com/Products/Red-Shoes",
		LastMod:    TimePtr(time.Date(2024, 1, 1, 13, 4, 5, 670_000_000, time.UTC)),
		ChangeFreq: ChangeWeekly,
		Priority:   PriorityPtr(1),
	})
	set.Add(Entry{URL: "https://example.com/bare"})

	data, err := set.Bytes()
	require.NoError(t, err)

	expected := Header +
		`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://example.com/products/red-shoes</loc>
    <lastmod>2024-01-01T13:04:05.6+00:00</lastmod>
    <changefreq>weekly</changefreq>
    <priority>1.0</priority>
  </url>
  <url>
    <loc>https://example.com/bare</loc>
  </url>
</urlset>
`
	assert.Equal(t, expected, string(data))
}

func TestIndex_Serialization(t *testing.T) {
	x := NewIndex()
	x.Add(IndexEntry{URL: "https://example.com/Products.xml.gz", LastMod: TimePtr(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))})
	x.Add(IndexEntry{URL: "https://example.com/tags/tags.xml"})

	var buf bytes.Buffer
	n, err := x.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="utf-8" standalone="yes"?>`))
	assert.Contains(t, out, `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, out, "<loc>https://example.com/products.xml.gz</loc>")
	assert.Contains(t, out, "<lastmod>2024-05-06T07:08:09.0+00:00</lastmod>")
	assert.Less(t, strings.Index(out, "products.xml.gz"), strings.Index(out, "tags/tags.xml"), "insertion order")
}

func TestURLSet_OrderPreserved(t *testing.T) {
	set := NewURLSet(0)
	names := []string{"zeta", "alpha", "mid", "beta"}
	for _, n := range names {
		set.Add(Entry{URL: "https://example.com/" + n})
	}

	data, err := set.Bytes()
	require.NoError(t, err)
	entries, err := DecodeURLSet(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, entries, len(names))
	for i, n := range names {
		assert.Equal(t, "https://example.com/"+n, entries[i].URL)
	}
}

func TestURLSet_RoundTrip(t *testing.T) {
	lastMod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	original := Entry{
		URL:        "http://x.test/a",
		LastMod:    &lastMod,
		ChangeFreq: ChangeWeekly,
		Priority:   PriorityPtr(0.5),
	}
	set := NewURLSet(1)
	set.Add(original)

	data, err := set.Bytes()
	require.NoError(t, err)
	entries, err := DecodeURLSet(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, original.URL, got.URL)
	require.NotNil(t, got.LastMod)
	assert.True(t, lastMod.Equal(*got.LastMod), "lastmod %v != %v", *got.LastMod, lastMod)
	assert.Equal(t, ChangeWeekly, got.ChangeFreq)
	require.NotNil(t, got.Priority)
	assert.InDelta(t, 0.5, *got.Priority, 1e-9)
}

func TestURLSet_EscapesSpecialCharacters(t *testing.T) {
	set := NewURLSet(1)
	set.Add(Entry{URL: "https://example.com/search?a=1&b=<2>"})

	data, err := set.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(data), "a=1&amp;b=&lt;2&gt;")

	entries, err := DecodeURLSet(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search?a=1&b=<2>", entries[0].URL)
}

func TestFormatPriority(t *testing.T) {
	assert.Equal(t, "0.5", FormatPriority(0.5))
	assert.Equal(t, "1.0", FormatPriority(1))
	assert.Equal(t, "0.0", FormatPriority(0))
	assert.Equal(t, "0.8", FormatPriority(0.75))
}

func TestParseLastMod(t *testing.T) {
	for _, in := range []string{"2024-01-01T00:00:00.0+00:00", "2024-01-01T00:00:00Z", "2024-01-01T00:00+00:00", "2024-01-01"} {
		got, err := ParseLastMod(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), in)
	}
	_, err := ParseLastMod("yesterday")
	assert.Error(t, err)
}

func writeFile(t *testing.T, path string, data []byte, compress bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	if !compress {
		require.NoError(t, os.WriteFile(path, data, 0644))
		return
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	base := "https://example.com"

	single := NewURLSet(1)
	single.Add(Entry{URL: base + "/about"})
	singleBytes, err := single.Bytes()
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "Pages.xml.gz"), singleBytes, true)

	child := NewIndex()
	for _, page := range []string{"tags-1", "tags-2"} {
		set := NewURLSet(2)
		set.Add(Entry{URL: base + "/t/" + page + "/a"})
		set.Add(Entry{URL: base + "/t/" + page + "/b"})
		data, err := set.Bytes()
		require.NoError(t, err)
		writeFile(t, filepath.Join(dir, "tags", page+".xml"), data, false)
		child.Add(IndexEntry{URL: base + "/tags/" + page + ".xml"})
	}
	childBytes, err := child.Bytes()
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, "tags", "tags.xml"), childBytes, false)

	root := NewIndex()
	root.Add(IndexEntry{URL: base + "/Pages.xml.gz"}) // lower-cased on write
	root.Add(IndexEntry{URL: base + "/tags/tags.xml"})
	root.Add(IndexEntry{URL: base + "/gone.xml"})
	rootBytes, err := root.Bytes()
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, RootFileName), rootBytes, false)

	report, err := Inspect(context.Background(), dir, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 5, report.TotalURLs)
	assert.Equal(t, []string{"https://example.com/gone.xml"}, report.Unresolved)
	require.Len(t, report.Files, 5)
	assert.Equal(t, "sitemapindex", report.Files[0].Kind)
	assert.Equal(t, 3, report.Files[0].Entries)
	assert.True(t, report.Files[1].Compressed)
	assert.Equal(t, filepath.Join(dir, "Pages.xml.gz"), report.Files[1].Path)
	assert.Equal(t, "sitemapindex", report.Files[2].Kind)
	assert.Equal(t, 2, report.Files[3].Depth)
}

func TestInspect_MissingRoot(t *testing.T) {
	_, err := Inspect(context.Background(), t.TempDir(), testLogger())
	assert.Error(t, err)
}
