package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"github.com/Sriram-PR/sitemap-gen/pkg/parse"
	"github.com/Sriram-PR/sitemap-gen/pkg/utils"
)

// robotsAgent is the group published URLs are checked against
const robotsAgent = "*"

// maxRobotsBytes caps how much of a robots file is read
const maxRobotsBytes = 512 << 10

// RobotsReport is the outcome of checking a set of URLs
type RobotsReport struct {
	Checked         int      `json:"checked"`
	Disallowed      []string `json:"disallowed,omitempty"`
	SitemapDeclared bool     `json:"sitemap_declared"`
}

// RobotsChecker answers whether published URLs are crawlable for "*". Safe for concurrent use.
type RobotsChecker struct {
	data  *robotstxt.RobotsData
	group *robotstxt.Group
	log   *logrus.Entry
}

// LoadRobots reads robots.txt from a local path or an http(s) URL. fetcher may be nil for local files.
func LoadRobots(ctx context.Context, location string, fetcher *Fetcher, log *logrus.Logger) (*RobotsChecker, error) {
	robotsLog := log.WithFields(logrus.Fields{"component": "robots", "robots_file": location})

	var body []byte
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if fetcher == nil {
			return nil, fmt.Errorf("remote robots file %s needs a fetcher", location)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("robots request: %w", err)
		}
		resp, err := fetcher.FetchWithRetry(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetching robots.txt: %w", err)
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
		if err != nil {
			return nil, fmt.Errorf("reading robots.txt: %w", err)
		}
	} else {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("%w: open robots file: %w", utils.ErrFilesystem, err)
		}
		defer f.Close()
		body, err = io.ReadAll(io.LimitReader(f, maxRobotsBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read robots file: %w", utils.ErrFilesystem, err)
		}
	}

	checker, err := ParseRobots(body, log)
	if err != nil {
		return nil, err
	}
	checker.log = robotsLog
	robotsLog.Infof("Loaded robots.txt (%d sitemap directive(s))", len(checker.data.Sitemaps))
	return checker, nil
}

// ParseRobots builds a checker from robots.txt content
func ParseRobots(body []byte, log *logrus.Logger) (*RobotsChecker, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: robots.txt: %v", utils.ErrParsing, err)
	}
	return &RobotsChecker{
		data:  data,
		group: data.FindGroup(robotsAgent),
		log:   log.WithField("component", "robots"),
	}, nil
}

// Allowed reports whether the path of an absolute URL may be crawled
func (c *RobotsChecker) Allowed(rawURL string) bool {
	return c.group.Test(parse.URLPath(rawURL))
}

// DeclaresSitemap reports whether robots.txt carries a Sitemap: line for sitemapURL.
// Comparison ignores case because published URLs are lower-cased.
func (c *RobotsChecker) DeclaresSitemap(sitemapURL string) bool {
	for _, declared := range c.data.Sitemaps {
		if strings.EqualFold(strings.TrimSpace(declared), sitemapURL) {
			return true
		}
	}
	return false
}

// Sitemaps returns the Sitemap: directives in file order
func (c *RobotsChecker) Sitemaps() []string {
	return c.data.Sitemaps
}

// Check tests every URL and whether rootSitemapURL is declared
func (c *RobotsChecker) Check(urls []string, rootSitemapURL string) RobotsReport {
	report := RobotsReport{Checked: len(urls)}
	for _, u := range urls {
		if !c.Allowed(u) {
			report.Disallowed = append(report.Disallowed, u)
		}
	}
	if rootSitemapURL != "" {
		report.SitemapDeclared = c.DeclaresSitemap(rootSitemapURL)
	}
	return report
}
