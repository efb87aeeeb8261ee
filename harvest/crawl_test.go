package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestkit/harvester/attest"
)

func TestCrawlFollowsLinksBreadthFirst(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<title>Root</title><a href="/a">a</a><a href="/b">b</a>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<title>A</title><a href="/c">c</a>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<title>B</title>`))
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<title>C</title>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := attest.NewMemorySink()
	h := newTestHarvester(sink)

	records, ids, err := h.Crawl(context.Background(), CrawlOptions{
		StartURL:       server.URL + "/",
		MaxPages:       10,
		SameOriginOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, records, 4)

	// BFS: root first, then its links in document order, then the next level.
	assert.Equal(t, "Root", records[0].Title)
	assert.Equal(t, "A", records[1].Title)
	assert.Equal(t, "B", records[2].Title)
	assert.Equal(t, "C", records[3].Title)
	assert.NotEmpty(t, ids)
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	var fetches atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		// Every page links to a fresh one, so only the budget stops the crawl.
		w.Write([]byte(`<title>P</title><a href="` + r.URL.Path + `x">next</a>`))
	}))
	defer server.Close()

	sink := attest.NewMemorySink()
	h := newTestHarvester(sink)

	records, _, err := h.Crawl(context.Background(), CrawlOptions{
		StartURL: server.URL + "/p",
		MaxPages: 3,
	})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, int64(3), fetches.Load())
}

func TestCrawlVisitsEachURLOnce(t *testing.T) {
	var rootFetches atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		rootFetches.Add(1)
		w.Write([]byte(`<title>Root</title><a href="/a">a</a>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		// Links back to the root.
		w.Write([]byte(`<title>A</title><a href="/">home</a>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := attest.NewMemorySink()
	h := newTestHarvester(sink)

	records, _, err := h.Crawl(context.Background(), CrawlOptions{
		StartURL: server.URL + "/",
		MaxPages: 10,
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int64(1), rootFetches.Load())
}

func TestCrawlSameOriginOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<title>Root</title><a href="http://external.example/x">out</a>`))
	}))
	defer server.Close()

	sink := attest.NewMemorySink()
	h := newTestHarvester(sink)

	records, _, err := h.Crawl(context.Background(), CrawlOptions{
		StartURL:       server.URL + "/",
		MaxPages:       10,
		SameOriginOnly: true,
	})
	require.NoError(t, err)
	assert.Len(t, records, 1, "external link must not be followed")
}

func TestCrawlSkipsPreviouslyAttestedStart(t *testing.T) {
	sink := attest.NewMemorySink()
	ctx := context.Background()

	startURL := "http://example.com/"
	_, err := sink.GenerateAndCreate(ctx, attest.Command{
		Subjects:   []string{startURL},
		Predicates: []string{attest.PredicateHasTitle},
		Contexts:   []string{"T"},
	})
	require.NoError(t, err)

	h := newTestHarvester(sink)
	records, ids, err := h.Crawl(ctx, CrawlOptions{
		StartURL:               startURL,
		MaxPages:               10,
		SkipPreviouslyAttested: true,
	})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, ids)
	assert.Equal(t, 1, sink.Len(), "no new attestations")
}

func TestCrawlSkipsPreviouslyAttestedChild(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<title>Root</title><a href="/a">a</a>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		t.Error("previously attested child was fetched")
	})

	sink := attest.NewMemorySink()
	ctx := context.Background()
	_, err := sink.GenerateAndCreate(ctx, attest.Command{
		Subjects:   []string{server.URL + "/a"},
		Predicates: []string{attest.PredicateHasTitle},
		Contexts:   []string{"A"},
	})
	require.NoError(t, err)

	h := newTestHarvester(sink)
	records, _, err := h.Crawl(ctx, CrawlOptions{
		StartURL:               server.URL + "/",
		MaxPages:               10,
		SkipPreviouslyAttested: true,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Root", records[0].Title)
}

func TestCrawlContinuesAfterPageFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<title>Root</title><a href="/broken">x</a><a href="/ok">y</a>`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<title>OK</title>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := attest.NewMemorySink()
	h := newTestHarvester(sink)

	records, _, err := h.Crawl(context.Background(), CrawlOptions{
		StartURL: server.URL + "/",
		MaxPages: 10,
	})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.NotEmpty(t, records[1].Error)
	assert.Equal(t, http.StatusInternalServerError, records[1].StatusCode)
	assert.Equal(t, "OK", records[2].Title)
}
