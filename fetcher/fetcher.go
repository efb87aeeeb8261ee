package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/attestkit/harvester/config"
	"github.com/attestkit/harvester/logger"
	urlutil "github.com/attestkit/harvester/url"
)

// readChunkSize is how much body is read per iteration while enforcing the
// response size cap.
const readChunkSize = 8 * 1024

// maxRedirects caps how many redirects a single fetch will follow.
const maxRedirects = 10

// ErrTooLarge is returned when a response body exceeds the configured cap.
var ErrTooLarge = errors.New("response exceeds maximum size")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// Response is a fetched resource, body already capped.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Fetcher performs size-capped HTTP GETs with a shared connection pool.
type Fetcher struct {
	client          *http.Client
	userAgent       string
	maxResponseSize int64
	logger          logger.Logger
}

// New creates a Fetcher from engine settings. The timeout covers the whole
// fetch, headers and body included.
func New(cfg config.Engine, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Noop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4

	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				// Redirect targets go through the same admission policy as
				// the original URL.
				return urlutil.Check(req.URL.String(), cfg.AllowPrivateIPs)
			},
		},
		userAgent:       cfg.UserAgent,
		maxResponseSize: cfg.MaxResponseSize,
		logger:          log,
	}
}

// Fetch retrieves urlStr, enforcing the response size cap while streaming the
// body. acceptTypes is an advisory list of Content-Type substrings; a
// mismatch is logged but does not abort the fetch.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string, acceptTypes []string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if len(acceptTypes) > 0 && !matchesAny(contentType, acceptTypes) {
		f.logger.Warn("unexpected content type", "url", urlStr, "content_type", contentType)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if length, parseErr := strconv.ParseInt(cl, 10, 64); parseErr == nil && length > f.maxResponseSize {
			return nil, fmt.Errorf("content length %d bytes over %d byte cap: %w", length, f.maxResponseSize, ErrTooLarge)
		}
	}

	body, err := f.readCapped(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// readCapped reads the body in small chunks and aborts as soon as the
// accumulated length would exceed the cap, regardless of what Content-Length
// claimed.
func (f *Fetcher) readCapped(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(buf.Len()+n) > f.maxResponseSize {
				return nil, fmt.Errorf("body over %d byte cap: %w", f.maxResponseSize, ErrTooLarge)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
	}
}

func matchesAny(contentType string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(contentType, s) {
			return true
		}
	}
	return false
}
