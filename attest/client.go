package attest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/attestkit/harvester/retry"
)

const clientTimeout = 15 * time.Second

// Client talks JSON over HTTP to an external attestation store. Transient
// failures (network errors, 5xx) are retried with backoff.
type Client struct {
	endpoint  string
	authToken string
	client    *http.Client
	retry     retry.Policy
}

// NewClient creates a sink client for the store at endpoint. The auth token,
// when set, is sent as a bearer token on every request.
func NewClient(endpoint, authToken string) *Client {
	return &Client{
		endpoint:  endpoint,
		authToken: authToken,
		client:    &http.Client{Timeout: clientTimeout},
		retry:     retry.DefaultPolicy(),
	}
}

// GenerateAndCreate asks the store to mint and persist an attestation.
func (c *Client) GenerateAndCreate(ctx context.Context, cmd Command) (*Attestation, error) {
	var att Attestation
	if err := c.do(ctx, http.MethodPost, "/attestations", cmd, &att); err != nil {
		return nil, err
	}
	return &att, nil
}

// Exists reports whether the store holds an attestation with the given id.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/attestations/"+id, nil, nil)
	if err != nil {
		var se *StoreError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Query returns attestations matching the filter.
func (c *Client) Query(ctx context.Context, filter Filter) ([]Attestation, error) {
	var result struct {
		Attestations []Attestation `json:"attestations"`
	}
	if err := c.do(ctx, http.MethodPost, "/attestations/query", filter, &result); err != nil {
		return nil, err
	}
	return result.Attestations, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// StoreError is a non-2xx response from the attestation store.
type StoreError struct {
	StatusCode int
	Message    string
}

func (e *StoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("attestation store returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("attestation store returned status %d", e.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	return retry.Do(ctx, c.retry, transient, func() error {
		return c.doOnce(ctx, method, path, payload, result)
	})
}

// transient reports whether an error is worth retrying: network failures
// and 5xx responses from the store.
func transient(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue) && !errors.Is(err, context.Canceled)
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
		return fmt.Errorf("attestation store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StoreError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(message))}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
