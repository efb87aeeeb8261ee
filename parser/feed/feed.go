package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Feed type identifiers.
const (
	TypeRSS     = "rss"
	TypeAtom    = "atom"
	TypeUnknown = "unknown"
)

const atomNamespace = "http://www.w3.org/2005/Atom"

// Item is a single entry in an RSS or Atom feed.
type Item struct {
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description,omitempty"`
	Published   string   `json:"published,omitempty"`
	Author      string   `json:"author,omitempty"`
	GUID        string   `json:"guid,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// Feed is a parsed RSS 2.0 or Atom feed.
type Feed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"feed_type"`
	Items       []Item `json:"items"`
}

// rssDoc matches both <rss><channel> documents and RDF-style feeds where the
// channel (or even items) hang off the root. XMLName is untagged so any root
// element is accepted; detection happens afterwards.
type rssDoc struct {
	XMLName xml.Name
	Channel *rssChannel `xml:"channel"`
	Items   []rssItem   `xml:"item"`

	Title    string     `xml:"title"`
	Subtitle string     `xml:"subtitle"`
	Entries  []atomEntry `xml:"entry"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Author      string   `xml:"author"`
	Creator     string   `xml:"creator"`
	GUID        string   `xml:"guid"`
	Categories  []string `xml:"category"`
}

type atomEntry struct {
	Title      string         `xml:"title"`
	Links      []atomLink     `xml:"link"`
	Summary    string         `xml:"summary"`
	Content    string         `xml:"content"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Author     atomAuthor     `xml:"author"`
	ID         string         `xml:"id"`
	Categories []atomCategory `xml:"category"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Parse parses feed XML, detecting RSS 2.0 vs Atom from the root element.
// Ill-formed XML is an error; an unrecognized root yields TypeUnknown.
func Parse(body []byte) (*Feed, error) {
	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid xml: %w", err)
	}

	root := doc.XMLName

	switch {
	case root.Local == "rss" || doc.Channel != nil:
		return parseRSS(&doc), nil
	case root.Local == "feed" || strings.Contains(root.Space, atomNamespace):
		return parseAtom(&doc), nil
	default:
		return nil, fmt.Errorf("unknown feed format: root element %q", root.Local)
	}
}

func parseRSS(doc *rssDoc) *Feed {
	channel := doc.Channel
	if channel == nil {
		// Some feeds carry items directly at the root.
		channel = &rssChannel{Title: doc.Title, Items: doc.Items}
	}

	feed := &Feed{
		Title:       strings.TrimSpace(channel.Title),
		Description: strings.TrimSpace(channel.Description),
		Type:        TypeRSS,
		Items:       make([]Item, 0, len(channel.Items)),
	}

	for _, item := range channel.Items {
		author := strings.TrimSpace(item.Author)
		if author == "" {
			author = strings.TrimSpace(item.Creator)
		}

		feed.Items = append(feed.Items, Item{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: strings.TrimSpace(item.Description),
			Published:   strings.TrimSpace(item.PubDate),
			Author:      author,
			GUID:        strings.TrimSpace(item.GUID),
			Categories:  trimAll(item.Categories),
		})
	}

	return feed
}

func parseAtom(doc *rssDoc) *Feed {
	feed := &Feed{
		Title:       strings.TrimSpace(doc.Title),
		Description: strings.TrimSpace(doc.Subtitle),
		Type:        TypeAtom,
		Items:       make([]Item, 0, len(doc.Entries)),
	}

	for _, entry := range doc.Entries {
		description := strings.TrimSpace(entry.Summary)
		if description == "" {
			description = strings.TrimSpace(entry.Content)
		}

		published := strings.TrimSpace(entry.Published)
		if published == "" {
			published = strings.TrimSpace(entry.Updated)
		}

		var categories []string
		for _, cat := range entry.Categories {
			if term := strings.TrimSpace(cat.Term); term != "" {
				categories = append(categories, term)
			}
		}

		feed.Items = append(feed.Items, Item{
			Title:       strings.TrimSpace(entry.Title),
			Link:        entryLink(entry.Links),
			Description: description,
			Published:   published,
			Author:      strings.TrimSpace(entry.Author.Name),
			GUID:        strings.TrimSpace(entry.ID),
			Categories:  categories,
		})
	}

	return feed
}

// entryLink prefers the alternate link (or one without a rel); otherwise the
// first link with an href.
func entryLink(links []atomLink) string {
	var first string
	for _, link := range links {
		if link.Href == "" {
			continue
		}
		if link.Rel == "alternate" || link.Rel == "" {
			return link.Href
		}
		if first == "" {
			first = link.Href
		}
	}
	return first
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
