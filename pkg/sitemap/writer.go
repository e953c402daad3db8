package sitemap

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"
)

// Header is the XML declaration that opens every emitted document
const Header = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>` + "\n"

// lastModLayout keeps one fractional digit; the zone suffix is appended as a literal.
const lastModLayout = "2006-01-02T15:04:05.0"

// --- XML Structs for Writing ---

type xmlURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []xmlURL `xml:"url"`
}

type xmlSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Xmlns    string       `xml:"xmlns,attr"`
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

// FormatLastMod renders a timestamp the way <lastmod> is published: the wall clock of t with one
// fractional digit and a "+00:00" suffix. Callers pass UTC times so the suffix is truthful.
func FormatLastMod(t time.Time) string {
	return t.Format(lastModLayout) + "+00:00"
}

// FormatPriority renders a priority with exactly one decimal place
func FormatPriority(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64)
}

// normalizeLoc lower-cases a URL at serialization time. Published URLs have always been
// lower-cased; templating keeps the original case.
func normalizeLoc(u string) string {
	return strings.ToLower(u)
}

// WriteTo serializes the document as a <urlset>
func (s *URLSet) WriteTo(w io.Writer) (int64, error) {
	doc := xmlURLSet{Xmlns: Namespace, URLs: make([]xmlURL, 0, len(s.entries))}
	for _, e := range s.entries {
		u := xmlURL{Loc: normalizeLoc(e.URL), ChangeFreq: e.ChangeFreq.String()}
		if e.LastMod != nil {
			u.LastMod = FormatLastMod(*e.LastMod)
		}
		if e.Priority != nil {
			u.Priority = FormatPriority(*e.Priority)
		}
		doc.URLs = append(doc.URLs, u)
	}
	return encode(w, doc)
}

// Bytes returns the serialized document
func (s *URLSet) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	return buf.Bytes(), err
}

// WriteTo serializes the document as a <sitemapindex>
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	doc := xmlSitemapIndex{Xmlns: Namespace, Sitemaps: make([]xmlSitemap, 0, len(x.entries))}
	for _, e := range x.entries {
		sm := xmlSitemap{Loc: normalizeLoc(e.URL)}
		if e.LastMod != nil {
			sm.LastMod = FormatLastMod(*e.LastMod)
		}
		doc.Sitemaps = append(doc.Sitemaps, sm)
	}
	return encode(w, doc)
}

// Bytes returns the serialized document
func (x *Index) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	_, err := x.WriteTo(&buf)
	return buf.Bytes(), err
}

func encode(w io.Writer, doc any) (int64, error) {
	cw := &countingWriter{w: w}
	if _, err := io.WriteString(cw, Header); err != nil {
		return cw.n, err
	}
	enc := xml.NewEncoder(cw)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return cw.n, err
	}
	if err := enc.Close(); err != nil {
		return cw.n, err
	}
	_, err := io.WriteString(cw, "\n")
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
