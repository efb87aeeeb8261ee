package attest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/attestkit/harvester/parser/feed"
	"github.com/attestkit/harvester/parser/page"
	"github.com/attestkit/harvester/parser/sitemap"
)

// maxImageCommands caps how many images from a single page are attested.
const maxImageCommands = 10

// ProjectPage maps a parsed page to an ordered command sequence. The order
// is fixed: title, description, author, published date, canonical, images,
// structured data, then links in document order. Re-projecting the same
// document yields the same sequence.
func ProjectPage(pageURL string, doc *page.Document, actor string, includeExternal bool) []Command {
	var cmds []Command

	emit := func(predicate, context string, attrs map[string]string) {
		cmds = append(cmds, newCommand(pageURL, predicate, context, actor, attrs))
	}

	if doc.Title != "" {
		emit(PredicateHasTitle, doc.Title, nil)
	}
	if doc.Meta.Description != "" {
		emit(PredicateHasDescription, doc.Meta.Description, nil)
	}
	if doc.Meta.Author != "" {
		emit(PredicateAuthoredBy, doc.Meta.Author, nil)
	}
	if doc.Meta.PublishedDate != "" {
		emit(PredicatePublishedAt, doc.Meta.PublishedDate, nil)
	}
	if doc.Meta.CanonicalURL != "" && doc.Meta.CanonicalURL != pageURL {
		emit(PredicateHasCanonical, doc.Meta.CanonicalURL, nil)
	}

	scanned := 0
	for _, img := range doc.Images {
		if scanned >= maxImageCommands {
			break
		}
		scanned++
		if img.Alt == "" {
			continue
		}
		emit(PredicateHasImage, img.Src, map[string]string{
			"alt":   img.Alt,
			"title": img.Title,
		})
	}

	for _, sd := range doc.StructuredData {
		data, err := json.Marshal(sd.Data)
		if err != nil {
			continue
		}
		emit(PredicateHasStructuredData, sd.Type, map[string]string{
			"data": string(data),
		})
	}

	for _, link := range doc.Links {
		if !includeExternal && link.IsExternal {
			continue
		}

		predicate := PredicateLinksTo
		if link.IsExternal {
			predicate = PredicateLinksExternallyTo
		}

		attrs := map[string]string{}
		if link.AnchorText != "" {
			attrs["anchor_text"] = link.AnchorText
		}
		if len(link.Rel) > 0 {
			attrs["rel"] = strings.Join(link.Rel, ",")
		}
		emit(predicate, link.TargetURL, attrs)
	}

	return cmds
}

// ProjectFeed maps a parsed feed to commands: one has_title for the feed
// itself, then one feed_contains per item with a link.
func ProjectFeed(feedURL string, f *feed.Feed, actor string) []Command {
	var cmds []Command

	if f.Title != "" {
		cmds = append(cmds, newCommand(feedURL, PredicateHasTitle, f.Title, actor, map[string]string{
			"feed_type": f.Type,
		}))
	}

	for _, item := range f.Items {
		if item.Link == "" {
			continue
		}

		attrs := map[string]string{}
		if item.Title != "" {
			attrs["title"] = item.Title
		}
		if item.Published != "" {
			attrs["published"] = item.Published
		}
		if item.Author != "" {
			attrs["author"] = item.Author
		}
		cmds = append(cmds, newCommand(feedURL, PredicateFeedContains, item.Link, actor, attrs))
	}

	return cmds
}

// ProjectSitemap maps sitemap entries to sitemap_contains commands.
func ProjectSitemap(sitemapURL string, sm *sitemap.Sitemap, actor string) []Command {
	var cmds []Command

	for _, entry := range sm.Entries {
		attrs := map[string]string{}
		if entry.LastMod != "" {
			attrs["lastmod"] = entry.LastMod
		}
		if entry.ChangeFreq != "" {
			attrs["changefreq"] = entry.ChangeFreq
		}
		attrs["priority"] = strconv.FormatFloat(entry.Priority, 'g', -1, 64)

		cmds = append(cmds, newCommand(sitemapURL, PredicateSitemapContains, entry.Loc, actor, attrs))
	}

	return cmds
}

func newCommand(subject, predicate, context, actor string, attrs map[string]string) Command {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["source"] = Source

	var actors []string
	if actor != "" {
		actors = []string{actor}
	}

	return Command{
		Subjects:   []string{subject},
		Predicates: []string{predicate},
		Contexts:   []string{context},
		Actors:     actors,
		Attributes: attrs,
	}
}
