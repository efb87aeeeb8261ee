package sitemap

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// defaultPriority applies when <priority> is absent or unparsable.
const defaultPriority = 0.5

// Entry is one <url> element from a urlset.
type Entry struct {
	Loc        string  `json:"loc"`
	LastMod    string  `json:"lastmod,omitempty"`
	ChangeFreq string  `json:"changefreq,omitempty"`
	Priority   float64 `json:"priority"`
}

// Sitemap is a parsed sitemap document. For an index document Entries is
// empty and Nested holds the child sitemap locations.
type Sitemap struct {
	IsIndex bool     `json:"is_index"`
	Entries []Entry  `json:"entries"`
	Nested  []string `json:"nested,omitempty"`
}

type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []urlEntry `xml:"url"`
	Sitemaps []locOnly  `xml:"sitemap"`
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type locOnly struct {
	Loc string `xml:"loc"`
}

// Parse parses a sitemap or sitemap index document. Entries without a <loc>
// are dropped.
func Parse(body []byte) (*Sitemap, error) {
	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid xml: %w", err)
	}

	sm := &Sitemap{
		IsIndex: doc.XMLName.Local == "sitemapindex",
		Entries: make([]Entry, 0, len(doc.URLs)),
	}

	for _, child := range doc.Sitemaps {
		if loc := strings.TrimSpace(child.Loc); loc != "" {
			sm.Nested = append(sm.Nested, loc)
		}
	}

	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		sm.Entries = append(sm.Entries, Entry{
			Loc:        loc,
			LastMod:    strings.TrimSpace(u.LastMod),
			ChangeFreq: strings.TrimSpace(u.ChangeFreq),
			Priority:   parsePriority(u.Priority),
		})
	}

	return sm, nil
}

func parsePriority(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultPriority
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultPriority
	}
	return p
}
