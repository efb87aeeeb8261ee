package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCanFetchDisallow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\nAllow: /private/open\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cache := NewCache("TestBot/1.0", 5*time.Second, nil)
	ctx := context.Background()

	if !cache.CanFetch(ctx, server.URL+"/public/page") {
		t.Error("expected /public/page allowed")
	}
	if cache.CanFetch(ctx, server.URL+"/private/page") {
		t.Error("expected /private/page disallowed")
	}
	if !cache.CanFetch(ctx, server.URL+"/private/open") {
		t.Error("expected longer Allow rule to win for /private/open")
	}
}

func TestCanFetchDisallowAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cache := NewCache("TestBot/1.0", 5*time.Second, nil)
	if cache.CanFetch(context.Background(), server.URL+"/anything") {
		t.Error("expected everything disallowed")
	}
}

func TestMissingRobotsAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	cache := NewCache("TestBot/1.0", 5*time.Second, nil)
	if !cache.CanFetch(context.Background(), server.URL+"/page") {
		t.Error("expected missing robots.txt to allow fetching")
	}
}

func TestCrawlDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nCrawl-delay: 2\n"))
	}))
	defer server.Close()

	cache := NewCache("TestBot/1.0", 5*time.Second, nil)
	delay := cache.CrawlDelay(context.Background(), server.URL+"/page")
	if delay != 2*time.Second {
		t.Errorf("expected 2s crawl delay, got %v", delay)
	}
}

func TestRobotsFetchedOncePerOrigin(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fetches.Add(1)
		}
		w.Write([]byte("User-agent: *\nDisallow: /secret\n"))
	}))
	defer server.Close()

	cache := NewCache("TestBot/1.0", 5*time.Second, nil)
	ctx := context.Background()

	for range 5 {
		cache.CanFetch(ctx, server.URL+"/page")
		cache.CrawlDelay(ctx, server.URL+"/other")
	}

	if got := fetches.Load(); got != 1 {
		t.Errorf("expected exactly one robots.txt fetch, got %d", got)
	}
}

func TestSpecificUserAgentGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: TestBot\nDisallow: /botsonly\n\nUser-agent: *\nDisallow: /everyone\n"))
	}))
	defer server.Close()

	cache := NewCache("TestBot/1.0", 5*time.Second, nil)
	ctx := context.Background()

	if cache.CanFetch(ctx, server.URL+"/botsonly") {
		t.Error("expected TestBot group to apply")
	}
	if !cache.CanFetch(ctx, server.URL+"/everyone") {
		t.Error("expected wildcard group ignored when a specific group matches")
	}
}
