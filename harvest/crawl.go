package harvest

import (
	"context"

	"github.com/attestkit/harvester/attest"
)

// DefaultMaxPages bounds a crawl when the request does not.
const DefaultMaxPages = 10

// CrawlOptions configures a crawl run.
type CrawlOptions struct {
	StartURL               string
	Actor                  string
	MaxPages               int
	SameOriginOnly         bool
	SkipPreviouslyAttested bool
}

// Crawl walks pages breadth-first from StartURL, attesting each
// successfully fetched page. Links are followed in document order; each URL
// is visited at most once. A failed page is recorded and the crawl
// continues. Returns the per-page records and all created attestation ids.
func (h *Harvester) Crawl(ctx context.Context, opts CrawlOptions) ([]*PageRecord, []string, error) {
	if h.sink == nil {
		return nil, nil, ErrNoSink
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}

	if opts.SkipPreviouslyAttested && h.previouslyAttested(ctx, opts.StartURL) {
		h.logger.Info("start url already attested, skipping crawl", "url", opts.StartURL)
		return []*PageRecord{}, []string{}, nil
	}

	var (
		records []*PageRecord
		ids     []string
	)

	visited := make(map[string]bool)
	enqueued := map[string]bool{opts.StartURL: true}
	frontier := []string{opts.StartURL}

	for len(frontier) > 0 && len(visited) < opts.MaxPages {
		current := frontier[0]
		frontier = frontier[1:]
		if visited[current] {
			continue
		}

		if opts.SkipPreviouslyAttested && current != opts.StartURL && h.previouslyAttested(ctx, current) {
			h.logger.Debug("skipping previously attested url", "url", current)
			visited[current] = true
			continue
		}
		visited[current] = true

		record := h.ScrapeFull(ctx, current)
		records = append(records, record)
		if record.Error != "" {
			h.logger.Warn("page failed during crawl", "url", current, "error", record.Error)
			continue
		}

		created, err := h.attestPage(ctx, record, opts.Actor, !opts.SameOriginOnly)
		ids = append(ids, created...)
		if err != nil {
			return records, ids, err
		}

		for _, link := range record.Links {
			if enqueued[link.TargetURL] || visited[link.TargetURL] {
				continue
			}
			if opts.SameOriginOnly && link.IsExternal {
				continue
			}
			enqueued[link.TargetURL] = true
			frontier = append(frontier, link.TargetURL)
		}
	}

	h.logger.Info("crawl finished",
		"start_url", opts.StartURL,
		"pages", len(records),
		"attestations", len(ids),
	)
	return records, ids, nil
}

// previouslyAttested asks the sink whether the URL already carries a
// has_title attestation. Sink errors are treated as not attested so a
// flaky store does not wedge the crawl.
func (h *Harvester) previouslyAttested(ctx context.Context, rawURL string) bool {
	found, err := h.sink.Query(ctx, attest.Filter{
		Subjects:   []string{rawURL},
		Predicates: []string{attest.PredicateHasTitle},
		Limit:      1,
	})
	if err != nil {
		h.logger.Warn("sink query failed", "url", rawURL, "error", err)
		return false
	}
	return len(found) > 0
}
