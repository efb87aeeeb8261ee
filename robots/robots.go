package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/attestkit/harvester/logger"
	urlutil "github.com/attestkit/harvester/url"
	"github.com/temoto/robotstxt"
)

// maxRobotsSize caps how much of a robots.txt file is read.
const maxRobotsSize = 512 * 1024

// Cache fetches and caches robots.txt decisions per origin. Entries live for
// the lifetime of the process; robots changes are rare relative to a session.
type Cache struct {
	userAgent string
	client    *http.Client
	logger    logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// entry holds the parsed robots data for one origin. The sync.Once makes the
// first accessor fetch while later accessors wait for the completed result.
type entry struct {
	once sync.Once
	data *robotstxt.RobotsData
}

// NewCache creates a robots cache that identifies itself with userAgent.
func NewCache(userAgent string, timeout time.Duration, log logger.Logger) *Cache {
	if log == nil {
		log = logger.Noop()
	}

	return &Cache{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		logger:    log,
		entries:   make(map[string]*entry),
	}
}

// CanFetch reports whether robots.txt permits fetching urlStr. Unreachable or
// malformed robots.txt is treated as unrestricted.
func (c *Cache) CanFetch(ctx context.Context, urlStr string) bool {
	parsedURL, err := urlutil.ParseAndValidate(urlStr)
	if err != nil {
		return false
	}

	data := c.get(ctx, urlutil.Origin(parsedURL))

	path := parsedURL.Path
	if path == "" {
		path = "/"
	}
	if parsedURL.RawQuery != "" {
		path = path + "?" + parsedURL.RawQuery
	}

	return data.FindGroup(c.userAgent).Test(path)
}

// CrawlDelay returns the crawl-delay robots.txt declares for our user agent,
// or zero when none is set.
func (c *Cache) CrawlDelay(ctx context.Context, urlStr string) time.Duration {
	parsedURL, err := urlutil.ParseAndValidate(urlStr)
	if err != nil {
		return 0
	}

	data := c.get(ctx, urlutil.Origin(parsedURL))
	return data.FindGroup(c.userAgent).CrawlDelay
}

func (c *Cache) get(ctx context.Context, origin string) *robotstxt.RobotsData {
	c.mu.Lock()
	e, ok := c.entries[origin]
	if !ok {
		e = &entry{}
		c.entries[origin] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.data = c.fetch(ctx, origin)
	})

	return e.data
}

// fetch retrieves and parses robots.txt for an origin. Any failure, missing
// file, or non-2xx status yields an unrestricted ruleset.
func (c *Cache) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s/robots.txt", origin)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return unrestricted()
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("robots.txt fetch failed, assuming allowed", "origin", origin, "error", err)
		return unrestricted()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unrestricted()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return unrestricted()
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		c.logger.Debug("robots.txt parse failed, assuming allowed", "origin", origin, "error", err)
		return unrestricted()
	}

	return data
}

func unrestricted() *robotstxt.RobotsData {
	data, _ := robotstxt.FromBytes(nil)
	return data
}
