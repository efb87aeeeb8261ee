package page

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is an anchor extracted from a page. TargetURL is always absolute.
type Link struct {
	SourceURL  string   `json:"source_url,omitempty"`
	TargetURL  string   `json:"target_url"`
	AnchorText string   `json:"anchor_text"`
	Rel        []string `json:"rel,omitempty"`
	IsExternal bool     `json:"is_external"`
}

// Image is an <img> extracted from a page, src absolutized.
type Image struct {
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	Title  string `json:"title,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Meta holds document metadata pulled from meta/link/html tags.
type Meta struct {
	Description        string   `json:"description,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
	Author             string   `json:"author,omitempty"`
	PublishedDate      string   `json:"published_date,omitempty"`
	ModifiedDate       string   `json:"modified_date,omitempty"`
	OGTitle            string   `json:"og_title,omitempty"`
	OGDescription      string   `json:"og_description,omitempty"`
	OGImage            string   `json:"og_image,omitempty"`
	OGType             string   `json:"og_type,omitempty"`
	OGURL              string   `json:"og_url,omitempty"`
	TwitterCard        string   `json:"twitter_card,omitempty"`
	TwitterTitle       string   `json:"twitter_title,omitempty"`
	TwitterDescription string   `json:"twitter_description,omitempty"`
	TwitterImage       string   `json:"twitter_image,omitempty"`
	CanonicalURL       string   `json:"canonical_url,omitempty"`
	Language           string   `json:"language,omitempty"`
}

// StructuredDatum is one JSON-LD object found in a ld+json script.
type StructuredDatum struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Document is the parsed form of an HTML page.
type Document struct {
	Title          string              `json:"title"`
	Links          []Link              `json:"links"`
	Meta           Meta                `json:"meta"`
	Images         []Image             `json:"images,omitempty"`
	StructuredData []StructuredDatum   `json:"structured_data,omitempty"`
	Headings       map[string][]string `json:"headings,omitempty"`
}

// Parse extracts title and links from an HTML body. When extractAll is set it
// also pulls metadata, images, JSON-LD structured data and headings. The
// parse is permissive; real-world markup rarely validates.
func Parse(body []byte, baseURL string, extractAll bool) (*Document, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	result := &Document{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: extractLinks(doc, base, baseURL),
	}

	if extractAll {
		result.Meta = extractMeta(doc, base)
		result.Images = extractImages(doc, base)
		result.StructuredData = extractStructuredData(doc)
		result.Headings = extractHeadings(doc)
	}

	return result, nil
}

func extractLinks(doc *goquery.Document, base *url.URL, sourceURL string) []Link {
	var links []Link

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}

		parsed, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		resolved := base.ResolveReference(parsed)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		links = append(links, Link{
			SourceURL:  sourceURL,
			TargetURL:  resolved.String(),
			AnchorText: collapseSpace(s.Text()),
			Rel:        strings.Fields(s.AttrOr("rel", "")),
			IsExternal: resolved.Host != base.Host,
		})
	})

	return links
}

// publishedProps and modifiedProps are checked in order; the first tag with
// content wins.
var (
	publishedProps = []string{"article:published_time", "datePublished", "date"}
	modifiedProps  = []string{"article:modified_time", "dateModified"}
)

func extractMeta(doc *goquery.Document, base *url.URL) Meta {
	meta := Meta{
		Description: metaContent(doc, "name", "description"),
		Author:      metaContent(doc, "name", "author"),

		OGTitle:       metaContent(doc, "property", "og:title"),
		OGDescription: metaContent(doc, "property", "og:description"),
		OGImage:       metaContent(doc, "property", "og:image"),
		OGType:        metaContent(doc, "property", "og:type"),
		OGURL:         metaContent(doc, "property", "og:url"),

		TwitterCard:        metaContent(doc, "name", "twitter:card"),
		TwitterTitle:       metaContent(doc, "name", "twitter:title"),
		TwitterDescription: metaContent(doc, "name", "twitter:description"),
		TwitterImage:       metaContent(doc, "name", "twitter:image"),

		Language: doc.Find("html").AttrOr("lang", ""),
	}

	if keywords := metaContent(doc, "name", "keywords"); keywords != "" {
		for _, k := range strings.Split(keywords, ",") {
			if trimmed := strings.TrimSpace(k); trimmed != "" {
				meta.Keywords = append(meta.Keywords, trimmed)
			}
		}
	}

	for _, prop := range publishedProps {
		if v := metaContent(doc, "property", prop); v != "" {
			meta.PublishedDate = v
			break
		}
		if v := metaContent(doc, "name", prop); v != "" {
			meta.PublishedDate = v
			break
		}
	}

	for _, prop := range modifiedProps {
		if v := metaContent(doc, "property", prop); v != "" {
			meta.ModifiedDate = v
			break
		}
	}

	if href, ok := doc.Find("link[rel='canonical']").First().Attr("href"); ok && href != "" {
		if parsed, err := url.Parse(href); err == nil {
			meta.CanonicalURL = base.ResolveReference(parsed).String()
		}
	}

	return meta
}

func metaContent(doc *goquery.Document, attr, value string) string {
	selector := fmt.Sprintf("meta[%s='%s']", attr, value)
	content, _ := doc.Find(selector).First().Attr("content")
	return content
}

func extractImages(doc *goquery.Document, base *url.URL) []Image {
	var images []Image

	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}

		parsed, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}

		images = append(images, Image{
			Src:    base.ResolveReference(parsed).String(),
			Alt:    s.AttrOr("alt", ""),
			Title:  s.AttrOr("title", ""),
			Width:  numericAttr(s, "width"),
			Height: numericAttr(s, "height"),
		})
	})

	return images
}

// numericAttr returns an attribute as int only when it is fully numeric;
// values like "100px" or "auto" yield zero.
func numericAttr(s *goquery.Selection, name string) int {
	v := s.AttrOr(name, "")
	if v == "" || !isDigits(v) {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func extractStructuredData(doc *goquery.Document) []StructuredDatum {
	var data []StructuredDatum

	doc.Find("script[type='application/ld+json']").Each(func(i int, s *goquery.Selection) {
		var decoded any
		if err := json.Unmarshal([]byte(s.Text()), &decoded); err != nil {
			return
		}

		switch v := decoded.(type) {
		case map[string]any:
			if graph, ok := v["@graph"].([]any); ok {
				for _, member := range graph {
					data = appendDatum(data, member)
				}
				return
			}
			data = appendDatum(data, v)
		case []any:
			for _, member := range v {
				data = appendDatum(data, member)
			}
		}
	})

	return data
}

func appendDatum(data []StructuredDatum, v any) []StructuredDatum {
	obj, ok := v.(map[string]any)
	if !ok {
		return data
	}

	typeName := ldType(obj["@type"])
	if typeName == "" {
		return data
	}

	return append(data, StructuredDatum{Type: typeName, Data: obj})
}

// ldType handles both "@type": "Article" and "@type": ["Article", …].
func ldType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func extractHeadings(doc *goquery.Document) map[string][]string {
	headings := make(map[string][]string)

	for level := 1; level <= 6; level++ {
		tag := fmt.Sprintf("h%d", level)
		var found []string
		doc.Find(tag).Each(func(i int, s *goquery.Selection) {
			found = append(found, collapseSpace(s.Text()))
		})
		if len(found) > 0 {
			headings[tag] = found
		}
	}

	if len(headings) == 0 {
		return nil
	}
	return headings
}

// collapseSpace trims and collapses runs of whitespace to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
