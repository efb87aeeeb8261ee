package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/attestkit/harvester/config"
)

func testConfig(maxSize int64) config.Engine {
	cfg := config.DefaultEngine()
	cfg.Timeout = 10 * time.Second
	cfg.MaxResponseSize = maxSize
	return cfg
}

func TestFetchSizeCap(t *testing.T) {
	tests := []struct {
		name     string
		bodySize int
		maxSize  int64
		wantErr  bool
	}{
		{"small body within limit", 100, 1024, false},
		{"body exactly at limit", 1024, 1024, false},
		{"body exceeds limit", 2048, 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(strings.Repeat("a", tt.bodySize)))
			}))
			defer server.Close()

			f := New(testConfig(tt.maxSize), nil)
			resp, err := f.Fetch(context.Background(), server.URL, nil)

			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Errorf("expected ErrTooLarge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(resp.Body) != tt.bodySize {
				t.Errorf("expected %d bytes, got %d", tt.bodySize, len(resp.Body))
			}
		})
	}
}

func TestFetchContentLengthPrecheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5000")
		w.Write([]byte(strings.Repeat("a", 5000)))
	}))
	defer server.Close()

	f := New(testConfig(1024), nil)
	_, err := f.Fetch(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge from header precheck, got %v", err)
	}
}

func TestFetchStreamedOverCap(t *testing.T) {
	// No Content-Length header; the cap must still hold on the streamed body.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		flusher := w.(http.Flusher)
		for range 10 {
			w.Write([]byte(strings.Repeat("a", 1024)))
			flusher.Flush()
		}
	}))
	defer server.Close()

	f := New(testConfig(4096), nil)
	_, err := f.Fetch(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge for streamed oversize body, got %v", err)
	}
}

func TestFetchNon2xxStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := New(testConfig(1024), nil)
	_, err := f.Fetch(context.Background(), server.URL, nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", statusErr.StatusCode)
	}
}

func TestFetchSetsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := testConfig(1024)
	cfg.UserAgent = "TestBot/1.0"
	f := New(cfg, nil)
	if _, err := f.Fetch(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA != "TestBot/1.0" {
		t.Errorf("expected TestBot/1.0 user agent, got %q", gotUA)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/target", http.StatusFound)
	})
	mux.HandleFunc("/target", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("landed"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(1024)
	cfg.AllowPrivateIPs = true
	f := New(cfg, nil)

	resp, err := f.Fetch(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "landed" {
		t.Errorf("unexpected body: %q", resp.Body)
	}
	if !strings.HasSuffix(resp.URL, "/target") {
		t.Errorf("response URL should be the redirect target, got %q", resp.URL)
	}
}

func TestFetchRefusesRedirectToBlockedAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://127.0.0.1:1/secret", http.StatusFound)
	}))
	defer server.Close()

	f := New(testConfig(1024), nil)
	_, err := f.Fetch(context.Background(), server.URL, nil)
	if err == nil {
		t.Fatal("expected redirect to loopback to be refused")
	}
}

func TestFetchContentTypeAdvisory(t *testing.T) {
	// A wrong content type is logged, not fatal.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	f := New(testConfig(1024), nil)
	resp, err := f.Fetch(context.Background(), server.URL, []string{"text/html"})
	if err != nil {
		t.Fatalf("content type mismatch should not abort: %v", err)
	}
	if string(resp.Body) != "<html></html>" {
		t.Errorf("unexpected body: %q", resp.Body)
	}
}
