package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/attestkit/harvester/harvest"
	"github.com/attestkit/harvester/parser/page"
	"github.com/attestkit/harvester/queue"
)

// Response caps. Records keep the full extraction for projection; only the
// serialized response is truncated.
const (
	maxResponseImages = 20
	maxResponseURLs   = 100
)

// scheduleHandlers are the workflow names accepted by /schedule/{handler}.
var scheduleHandlers = map[string]bool{
	"scrape":  true,
	"feed":    true,
	"sitemap": true,
	"crawl":   true,
}

func (s *Service) routes() *chi.Mux {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown endpoint: %s", req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Post("/scrape", s.handleScrape)
	r.Post("/scrape-full", s.handleScrapeFull)
	r.Post("/scrape-and-attest", s.handleScrapeAndAttest)
	r.Post("/feed", s.handleFeed)
	r.Post("/feed-and-attest", s.handleFeedAndAttest)
	r.Post("/sitemap", s.handleSitemap)
	r.Post("/sitemap-and-attest", s.handleSitemapAndAttest)
	r.Post("/crawl", s.handleCrawl)
	r.Post("/schedule/{handler}", s.handleSchedule)
	r.Get("/jobs", s.handleListJobs)

	return r
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type attestScrapeRequest struct {
	URL             string `json:"url"`
	Actor           string `json:"actor"`
	IncludeExternal *bool  `json:"include_external"`
}

type feedAttestRequest struct {
	URL   string `json:"url"`
	Actor string `json:"actor"`
}

type sitemapAttestRequest struct {
	URL          string `json:"url"`
	Actor        string `json:"actor"`
	FollowNested *bool  `json:"follow_nested"`
	MaxNested    int    `json:"max_nested"`
}

type crawlRequest struct {
	URL                    string `json:"url"`
	Actor                  string `json:"actor"`
	MaxPages               int    `json:"max_pages"`
	SameDomainOnly         *bool  `json:"same_domain_only"`
	SkipPreviouslyAttested *bool  `json:"skip_previously_attested"`
}

// linkSummary is the reduced link shape in /scrape responses.
type linkSummary struct {
	TargetURL  string   `json:"target_url"`
	AnchorText string   `json:"anchor_text"`
	Rel        []string `json:"rel,omitempty"`
	IsExternal bool     `json:"is_external"`
}

func (s *Service) handleScrape(w http.ResponseWriter, req *http.Request) {
	var body scrapeRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	record := h.Scrape(req.Context(), body.URL)
	writeJSON(w, http.StatusOK, map[string]any{
		"url":         record.URL,
		"title":       record.Title,
		"status_code": record.StatusCode,
		"error":       record.Error,
		"links":       summarizeLinks(record.Links),
	})
}

func (s *Service) handleScrapeFull(w http.ResponseWriter, req *http.Request) {
	var body scrapeRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	record := h.ScrapeFull(req.Context(), body.URL)
	writeJSON(w, http.StatusOK, capPageImages(record))
}

func (s *Service) handleScrapeAndAttest(w http.ResponseWriter, req *http.Request) {
	var body attestScrapeRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	record, ids, err := h.ScrapeAndAttest(req.Context(), body.URL, body.Actor, boolOr(body.IncludeExternal, true))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":                  record.URL,
		"title":                record.Title,
		"status_code":          record.StatusCode,
		"error":                record.Error,
		"links_count":          len(record.Links),
		"attestations_created": len(ids),
		"attestation_ids":      stringsOrEmpty(ids),
	})
}

func (s *Service) handleFeed(w http.ResponseWriter, req *http.Request) {
	var body scrapeRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	writeJSON(w, http.StatusOK, h.Feed(req.Context(), body.URL))
}

func (s *Service) handleFeedAndAttest(w http.ResponseWriter, req *http.Request) {
	var body feedAttestRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	record, ids, err := h.FeedAndAttest(req.Context(), body.URL, body.Actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":                  record.URL,
		"title":                record.Title,
		"feed_type":            record.FeedType,
		"error":                record.Error,
		"items_count":          len(record.Items),
		"attestations_created": len(ids),
		"attestation_ids":      stringsOrEmpty(ids),
	})
}

func (s *Service) handleSitemap(w http.ResponseWriter, req *http.Request) {
	var body scrapeRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	writeJSON(w, http.StatusOK, capSitemapURLs(h.Sitemap(req.Context(), body.URL)))
}

func (s *Service) handleSitemapAndAttest(w http.ResponseWriter, req *http.Request) {
	var body sitemapAttestRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	records, ids, err := h.SitemapAndAttest(req.Context(), body.URL, body.Actor, boolOr(body.FollowNested, true), body.MaxNested)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	urlsCount := 0
	capped := make([]*harvest.SitemapRecord, 0, len(records))
	for _, record := range records {
		urlsCount += len(record.URLs)
		capped = append(capped, capSitemapURLs(record))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":                  body.URL,
		"sitemaps_processed":   len(records),
		"urls_count":           urlsCount,
		"attestations_created": len(ids),
		"attestation_ids":      stringsOrEmpty(ids),
		"sitemaps":             capped,
	})
}

func (s *Service) handleCrawl(w http.ResponseWriter, req *http.Request) {
	var body crawlRequest
	if !decodeBody(w, req, &body) {
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	h, _, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	records, ids, err := h.Crawl(req.Context(), harvest.CrawlOptions{
		StartURL:               body.URL,
		Actor:                  body.Actor,
		MaxPages:               body.MaxPages,
		SameOriginOnly:         boolOr(body.SameDomainOnly, true),
		SkipPreviouslyAttested: boolOr(body.SkipPreviouslyAttested, true),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totalLinks := 0
	pages := make([]map[string]any, 0, len(records))
	for _, record := range records {
		totalLinks += len(record.Links)
		pages = append(pages, map[string]any{
			"url":         record.URL,
			"title":       record.Title,
			"links_count": len(record.Links),
			"error":       record.Error,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start_url":            body.URL,
		"pages_crawled":        len(records),
		"total_links":          totalLinks,
		"attestations_created": len(ids),
		"pages":                pages,
	})
}

func (s *Service) handleSchedule(w http.ResponseWriter, req *http.Request) {
	handler := chi.URLParam(req, "handler")
	if !scheduleHandlers[handler] {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown handler: %s", handler))
		return
	}

	var payload json.RawMessage
	if !decodeBody(w, req, &payload) {
		return
	}
	if len(payload) > 0 {
		var probe struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(payload, &probe); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
			return
		}
		if probe.URL == "" {
			writeError(w, http.StatusBadRequest, "Missing 'url' field")
			return
		}
	} else {
		writeError(w, http.StatusBadRequest, "Missing 'url' field")
		return
	}

	_, jobs, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	job, err := jobs.Enqueue(req.Context(), handler, payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("job scheduled", "handler", handler, "job_id", job.ID)
	writeJSON(w, http.StatusOK, job)
}

func (s *Service) handleListJobs(w http.ResponseWriter, req *http.Request) {
	_, jobs, ok := s.engine()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Plugin not initialized")
		return
	}

	opts := queue.ListOptions{Status: req.URL.Query().Get("status")}
	if raw := req.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit: %q", raw))
			return
		}
		opts.Limit = limit
	}

	list, err := jobs.ListJobs(req.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []queue.Job{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

// decodeBody decodes a JSON request body into dst. An empty body decodes to
// the zero value. Returns false after writing a 400 on malformed JSON.
func decodeBody(w http.ResponseWriter, req *http.Request, dst any) bool {
	err := json.NewDecoder(req.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return false
	}
	return true
}

// capPageImages bounds the images list in a serialized page record without
// touching the record used for projection.
func capPageImages(r *harvest.PageRecord) *harvest.PageRecord {
	if len(r.Images) <= maxResponseImages {
		return r
	}
	capped := *r
	capped.Images = r.Images[:maxResponseImages]
	return &capped
}

func capSitemapURLs(r *harvest.SitemapRecord) *harvest.SitemapRecord {
	if len(r.URLs) <= maxResponseURLs {
		return r
	}
	capped := *r
	capped.URLs = r.URLs[:maxResponseURLs]
	return &capped
}

func summarizeLinks(links []page.Link) []linkSummary {
	out := make([]linkSummary, 0, len(links))
	for _, link := range links {
		out = append(out, linkSummary{
			TargetURL:  link.TargetURL,
			AnchorText: link.AnchorText,
			Rel:        link.Rel,
			IsExternal: link.IsExternal,
		})
	}
	return out
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func stringsOrEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func errorResponse(status int, message string) *Response {
	body, _ := json.Marshal(map[string]string{"error": message})
	return &Response{
		StatusCode: status,
		Headers:    map[string][]string{"Content-Type": {"application/json"}},
		Body:       body,
	}
}
