package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/sitemap-gen/pkg/parse"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// RootFileName is the name of the published entry point
const RootFileName = "sitemap.xml"

// ParseLastMod reads a <lastmod> value: full W3C datetimes with any fraction, or a bare date.
func ParseLastMod(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: lastmod %q", utils.ErrDateParse, s)
}

// DecodeURLSet parses a <urlset> document back into entries
func DecodeURLSet(r io.Reader) ([]Entry, error) {
	var set parse.XMLURLSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: XML urlset: %v", utils.ErrParsing, err)
	}
	entries := make([]Entry, 0, len(set.URLs))
	for _, u := range set.URLs {
		e := Entry{URL: strings.TrimSpace(u.Loc)}
		if u.LastMod != "" {
			t, err := ParseLastMod(u.LastMod)
			if err != nil {
				return nil, err
			}
			e.LastMod = &t
		}
		if u.ChangeFreq != "" {
			cf, err := ParseChangeFrequency(u.ChangeFreq)
			if err != nil {
				return nil, fmt.Errorf("%w: XML changefreq: %v", utils.ErrParsing, err)
			}
			e.ChangeFreq = cf
		}
		if u.Priority != "" {
			p, err := strconv.ParseFloat(strings.TrimSpace(u.Priority), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: XML priority %q: %v", utils.ErrParsing, u.Priority, err)
			}
			e.Priority = &p
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DecodeIndex parses a <sitemapindex> document back into entries
func DecodeIndex(r io.Reader) ([]IndexEntry, error) {
	var index parse.XMLSitemapIndex
	if err := xml.NewDecoder(r).Decode(&index); err != nil {
		return nil, fmt.Errorf("%w: XML sitemapindex: %v", utils.ErrParsing, err)
	}
	entries := make([]IndexEntry, 0, len(index.Sitemaps))
	for _, sm := range index.Sitemaps {
		e := IndexEntry{URL: strings.TrimSpace(sm.Loc)}
		if sm.LastMod != "" {
			t, err := ParseLastMod(sm.LastMod)
			if err != nil {
				return nil, err
			}
			e.LastMod = &t
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// --- Output Tree Inspection ---

// FileReport describes one sitemap file reached from the root index
type FileReport struct {
	Path       string `json:"path"`
	URL        string `json:"url"`
	Kind       string `json:"kind"` // "urlset" or "sitemapindex"
	Compressed bool   `json:"compressed"`
	Entries    int    `json:"entries"`
	Depth      int    `json:"depth"`
}

// InspectReport summarizes an output directory
type InspectReport struct {
	Files      []FileReport `json:"files"`
	TotalURLs  int          `json:"total_urls"`
	Unresolved []string     `json:"unresolved,omitempty"` // locs with no matching file on disk
}

// Inspect walks the tree published under outputDir starting at sitemap.xml, following every index
// entry to a local file (gzip files are decompressed), and counts the entries of each document.
// Published locs are lower-cased, so local files are matched case-insensitively.
func Inspect(ctx context.Context, outputDir string, log *logrus.Entry) (*InspectReport, error) {
	report := &InspectReport{}
	visited := make(map[string]bool)

	var walk func(path, loc string, depth int) error
	walk = func(path, loc string, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if visited[path] {
			return nil
		}
		visited[path] = true

		fileLog := log.WithField("file", path)
		data, compressed, err := readSitemapFile(path)
		if err != nil {
			return err
		}

		kind, err := parse.RootName(data)
		if err != nil {
			return fmt.Errorf("%w: XML root of '%s': %v", utils.ErrParsing, path, err)
		}

		fr := FileReport{Path: path, URL: loc, Kind: kind, Compressed: compressed, Depth: depth}
		switch kind {
		case "sitemapindex":
			children, err := DecodeIndex(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("'%s': %w", path, err)
			}
			fr.Entries = len(children)
			report.Files = append(report.Files, fr)
			fileLog.Debugf("Parsed as Sitemap Index, found %d references.", len(children))
			for _, child := range children {
				childPath, ok := resolveLocal(outputDir, child.URL)
				if !ok {
					fileLog.Warnf("No local file for nested sitemap %s", child.URL)
					report.Unresolved = append(report.Unresolved, child.URL)
					continue
				}
				if err := walk(childPath, child.URL, depth+1); err != nil {
					return err
				}
			}
		case "urlset":
			entries, err := DecodeURLSet(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("'%s': %w", path, err)
			}
			fr.Entries = len(entries)
			report.TotalURLs += len(entries)
			report.Files = append(report.Files, fr)
			fileLog.Debugf("Parsed as URL Set, found %d URLs.", len(entries))
		default:
			return fmt.Errorf("%w: XML root <%s> in '%s' is not a sitemap document", utils.ErrParsing, kind, path)
		}
		return nil
	}

	rootPath := filepath.Join(outputDir, RootFileName)
	if err := walk(rootPath, "", 0); err != nil {
		return report, err
	}
	return report, nil
}

// readSitemapFile reads path, decompressing it when it is a gzip file
func readSitemapFile(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: open '%s': %w", utils.ErrFilesystem, path, err)
	}
	defer f.Close()

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, false, fmt.Errorf("%w: read '%s': %w", utils.ErrFilesystem, path, err)
		}
		return data, false, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, true, fmt.Errorf("%w: gzip header of '%s': %v", utils.ErrCompression, path, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, true, fmt.Errorf("%w: gzip body of '%s': %v", utils.ErrCompression, path, err)
	}
	return data, true, nil
}

// resolveLocal maps a published loc to a file under root. The emitted layout nests at most one
// folder deep, so the last one or two path segments are tried.
func resolveLocal(root, loc string) (string, bool) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for k := 1; k <= 2 && k <= len(segments); k++ {
		if path, ok := lookupFold(root, segments[len(segments)-k:]); ok {
			return path, true
		}
	}
	return "", false
}

// lookupFold follows segments from dir, matching each name exactly first and then case-insensitively
func lookupFold(dir string, segments []string) (string, bool) {
	current := dir
	for i, seg := range segments {
		if seg == "" {
			return "", false
		}
		candidate := filepath.Join(current, seg)
		if info, err := os.Stat(candidate); err == nil && (i == len(segments)-1) != info.IsDir() {
			current = candidate
			continue
		}
		entries, err := os.ReadDir(current)
		if err != nil {
			return "", false
		}
		found := false
		for _, entry := range entries {
			if strings.EqualFold(entry.Name(), seg) && (i == len(segments)-1) != entry.IsDir() {
				current = filepath.Join(current, entry.Name())
				found = true
				break
			}
		}
		if !found {
			return "", false
		}
	}
	return current, true
}
