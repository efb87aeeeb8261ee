package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/attestkit/harvester/retry"
)

const clientTimeout = 15 * time.Second

// Client talks JSON over HTTP to an external job queue. Network failures
// are retried with backoff; HTTP errors are surfaced as-is since the queue
// owns job deduplication.
type Client struct {
	endpoint  string
	authToken string
	client    *http.Client
	retry     retry.Policy
}

// NewClient creates a queue client for the queue at endpoint.
func NewClient(endpoint, authToken string) *Client {
	return &Client{
		endpoint:  endpoint,
		authToken: authToken,
		client:    &http.Client{Timeout: clientTimeout},
		retry:     retry.DefaultPolicy(),
	}
}

// Enqueue submits a job for the given handler.
func (c *Client) Enqueue(ctx context.Context, handler string, payload json.RawMessage) (*Job, error) {
	request := struct {
		Handler string          `json:"handler"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{Handler: handler, Payload: payload}

	var job Job
	if err := c.do(ctx, http.MethodPost, "/jobs", request, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches a single job by id.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs fetches jobs, optionally filtered by status and capped by limit.
func (c *Client) ListJobs(ctx context.Context, opts ListOptions) ([]Job, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := "/jobs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var result struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	return retry.Do(ctx, c.retry, func(err error) bool {
		var ue *url.Error
		return errors.As(err, &ue) && !errors.Is(err, context.Canceled)
	}, func() error {
		return c.doOnce(ctx, method, path, payload, result)
	})
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("queue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("queue returned status %d: %s", resp.StatusCode, bytes.TrimSpace(message))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
