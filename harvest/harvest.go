package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/attestkit/harvester/attest"
	"github.com/attestkit/harvester/config"
	"github.com/attestkit/harvester/fetcher"
	"github.com/attestkit/harvester/logger"
	"github.com/attestkit/harvester/parser/feed"
	"github.com/attestkit/harvester/parser/page"
	"github.com/attestkit/harvester/parser/sitemap"
	"github.com/attestkit/harvester/ratelimit"
	"github.com/attestkit/harvester/robots"
	urlutil "github.com/attestkit/harvester/url"
)

// ErrNoSink is returned by the attesting workflows when no sink is wired.
var ErrNoSink = errors.New("no attestation sink configured")

// Content types accepted per pipeline. Mismatches are logged, not fatal.
var (
	htmlContentTypes    = []string{"text/html", "application/xhtml"}
	feedContentTypes    = []string{"application/rss", "application/atom", "application/xml", "text/xml"}
	sitemapContentTypes = []string{"application/xml", "text/xml"}
)

// PageRecord is the outcome of one HTML harvest. A failed harvest carries
// the failure in Error with StatusCode 0 unless the server answered.
type PageRecord struct {
	URL            string                 `json:"url"`
	Title          string                 `json:"title"`
	StatusCode     int                    `json:"status_code"`
	Links          []page.Link            `json:"links"`
	Meta           *page.Meta             `json:"meta,omitempty"`
	Images         []page.Image           `json:"images,omitempty"`
	StructuredData []page.StructuredDatum `json:"structured_data,omitempty"`
	Headings       map[string][]string    `json:"headings,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// FeedRecord is the outcome of one feed harvest.
type FeedRecord struct {
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	FeedType    string      `json:"feed_type"`
	Items       []feed.Item `json:"items"`
	Error       string      `json:"error,omitempty"`
}

// SitemapRecord is the outcome of one sitemap harvest.
type SitemapRecord struct {
	URL            string          `json:"url"`
	URLs           []sitemap.Entry `json:"urls"`
	NestedSitemaps []string        `json:"nested_sitemaps,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Harvester runs the harvest pipeline: guard, rate gate, robots, fetch,
// parse, project. All workflows share the robots cache, rate limiter and
// HTTP connection pool, and are safe for concurrent use.
type Harvester struct {
	cfg     config.Engine
	fetcher *fetcher.Fetcher
	robots  *robots.Cache
	limiter *ratelimit.Limiter
	sink    attest.Sink
	logger  logger.Logger
}

// New creates a Harvester. sink may be nil; the attesting workflows then
// return ErrNoSink.
func New(cfg config.Engine, sink attest.Sink, log logger.Logger) *Harvester {
	if log == nil {
		log = logger.Noop()
	}
	return &Harvester{
		cfg:     cfg,
		fetcher: fetcher.New(cfg, log),
		robots:  robots.NewCache(cfg.UserAgent, cfg.Timeout, log),
		limiter: ratelimit.New(cfg.RateLimit),
		sink:    sink,
		logger:  log,
	}
}

// fetch runs the admission pipeline for one URL: guard check, robots
// authorization, rate gate, then the bounded HTTP fetch.
func (h *Harvester) fetch(ctx context.Context, rawURL string, acceptTypes []string) (*fetcher.Response, error) {
	if err := urlutil.Check(rawURL, h.cfg.AllowPrivateIPs); err != nil {
		h.logger.Warn("url refused", "url", rawURL, "error", err)
		return nil, err
	}

	var crawlDelay time.Duration
	if h.cfg.RespectRobots {
		if !h.robots.CanFetch(ctx, rawURL) {
			return nil, errors.New("blocked by robots.txt")
		}
		crawlDelay = h.robots.CrawlDelay(ctx, rawURL)
	}

	if err := h.limiter.Wait(ctx, rawURL, crawlDelay); err != nil {
		return nil, err
	}

	return h.fetcher.Fetch(ctx, rawURL, acceptTypes)
}

// Scrape fetches a page and extracts its title and links.
func (h *Harvester) Scrape(ctx context.Context, rawURL string) *PageRecord {
	return h.scrape(ctx, rawURL, false)
}

// ScrapeFull fetches a page and extracts everything: title, links, meta,
// images, structured data and headings.
func (h *Harvester) ScrapeFull(ctx context.Context, rawURL string) *PageRecord {
	return h.scrape(ctx, rawURL, true)
}

func (h *Harvester) scrape(ctx context.Context, rawURL string, extractAll bool) *PageRecord {
	record := &PageRecord{URL: rawURL, Links: []page.Link{}}

	resp, err := h.fetch(ctx, rawURL, htmlContentTypes)
	if err != nil {
		record.StatusCode = statusOf(err)
		record.Error = err.Error()
		return record
	}
	record.StatusCode = resp.StatusCode

	doc, err := page.Parse(resp.Body, rawURL, extractAll)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	record.Title = doc.Title
	if doc.Links != nil {
		record.Links = doc.Links
	}
	if extractAll {
		meta := doc.Meta
		record.Meta = &meta
		record.Images = doc.Images
		record.StructuredData = doc.StructuredData
		record.Headings = doc.Headings
	}

	h.logger.Debug("page harvested", "url", rawURL, "links", len(record.Links))
	return record
}

// ScrapeAndAttest runs the full extraction and sends one attestation per
// projected command to the sink. It returns the record and the created
// attestation ids. Sink failures abort and surface as an error.
func (h *Harvester) ScrapeAndAttest(ctx context.Context, rawURL, actor string, includeExternal bool) (*PageRecord, []string, error) {
	if h.sink == nil {
		return nil, nil, ErrNoSink
	}

	record := h.ScrapeFull(ctx, rawURL)
	if record.Error != "" {
		return record, nil, nil
	}

	ids, err := h.attestPage(ctx, record, actor, includeExternal)
	if err != nil {
		return record, ids, err
	}

	h.logger.Info("page attested", "url", rawURL, "attestations", len(ids))
	return record, ids, nil
}

func (h *Harvester) attestPage(ctx context.Context, record *PageRecord, actor string, includeExternal bool) ([]string, error) {
	doc := &page.Document{
		Title:          record.Title,
		Links:          record.Links,
		Images:         record.Images,
		StructuredData: record.StructuredData,
		Headings:       record.Headings,
	}
	if record.Meta != nil {
		doc.Meta = *record.Meta
	}

	return h.send(ctx, attest.ProjectPage(record.URL, doc, actor, includeExternal))
}

// Feed fetches and parses an RSS or Atom feed.
func (h *Harvester) Feed(ctx context.Context, rawURL string) *FeedRecord {
	record := &FeedRecord{URL: rawURL, FeedType: feed.TypeUnknown, Items: []feed.Item{}}

	resp, err := h.fetch(ctx, rawURL, feedContentTypes)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	parsed, err := feed.Parse(resp.Body)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	record.Title = parsed.Title
	record.Description = parsed.Description
	record.FeedType = parsed.Type
	record.Items = parsed.Items
	return record
}

// FeedAndAttest parses a feed and attests its title and every linked item.
func (h *Harvester) FeedAndAttest(ctx context.Context, rawURL, actor string) (*FeedRecord, []string, error) {
	if h.sink == nil {
		return nil, nil, ErrNoSink
	}

	record := h.Feed(ctx, rawURL)
	if record.Error != "" {
		return record, nil, nil
	}

	parsed := &feed.Feed{Title: record.Title, Type: record.FeedType, Items: record.Items}
	ids, err := h.send(ctx, attest.ProjectFeed(rawURL, parsed, actor))
	if err != nil {
		return record, ids, err
	}

	h.logger.Info("feed attested", "url", rawURL, "attestations", len(ids))
	return record, ids, nil
}

// Sitemap fetches and parses a single sitemap document.
func (h *Harvester) Sitemap(ctx context.Context, rawURL string) *SitemapRecord {
	record := &SitemapRecord{URL: rawURL, URLs: []sitemap.Entry{}}

	resp, err := h.fetch(ctx, rawURL, sitemapContentTypes)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	parsed, err := sitemap.Parse(resp.Body)
	if err != nil {
		record.Error = err.Error()
		return record
	}

	record.URLs = parsed.Entries
	record.NestedSitemaps = parsed.Nested
	return record
}

// SitemapAndAttest parses a sitemap, optionally following nested sitemaps
// from an index up to maxNested documents, and attests every listed URL.
func (h *Harvester) SitemapAndAttest(ctx context.Context, rawURL, actor string, followNested bool, maxNested int) ([]*SitemapRecord, []string, error) {
	if h.sink == nil {
		return nil, nil, ErrNoSink
	}
	if maxNested <= 0 {
		maxNested = 10
	}

	var (
		records []*SitemapRecord
		ids     []string
	)

	pending := []string{rawURL}
	processed := make(map[string]bool)

	for len(pending) > 0 && len(processed) < maxNested {
		current := pending[0]
		pending = pending[1:]
		if processed[current] {
			continue
		}
		processed[current] = true

		record := h.Sitemap(ctx, current)
		records = append(records, record)
		if record.Error != "" {
			continue
		}

		if followNested {
			for _, nested := range record.NestedSitemaps {
				if !processed[nested] && !contains(pending, nested) {
					pending = append(pending, nested)
				}
			}
		}

		parsed := &sitemap.Sitemap{Entries: record.URLs}
		created, err := h.send(ctx, attest.ProjectSitemap(current, parsed, actor))
		ids = append(ids, created...)
		if err != nil {
			return records, ids, err
		}
	}

	h.logger.Info("sitemap attested", "url", rawURL, "documents", len(records), "attestations", len(ids))
	return records, ids, nil
}

// send issues the commands to the sink in order, returning the created ids.
func (h *Harvester) send(ctx context.Context, cmds []attest.Command) ([]string, error) {
	var ids []string
	for _, cmd := range cmds {
		att, err := h.sink.GenerateAndCreate(ctx, cmd)
		if err != nil {
			return ids, err
		}
		ids = append(ids, att.ID)
	}
	return ids, nil
}

func statusOf(err error) int {
	var se *fetcher.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
