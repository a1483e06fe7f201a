package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/concord/internal/domain/types"
)

// Submission outcomes.
const (
	outcomeAccepted     = "accepted"
	outcomeDuplicate    = "duplicate"
	outcomeBackpressure = "backpressure"
)

// Client talks to the concord HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Submit posts one evaluation and reports accepted, duplicate or
// backpressure.
func (c *Client) Submit(ctx context.Context, e Evaluation) (string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal evaluation: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/evaluations", body)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted, nil
	case http.StatusOK:
		return outcomeDuplicate, nil
	case http.StatusTooManyRequests:
		return outcomeBackpressure, nil
	default:
		return "", fmt.Errorf("%w: %s/%s status %d", ErrRejected, e.SubjectID, e.RaterID, resp.StatusCode)
	}
}

// Report fetches the reliability report of a scope. A 404 yields a nil
// report and no error.
func (c *Client) Report(ctx context.Context, org, assessment string) (*types.Report, error) {
	path := "/v1/assessments/" + url.PathEscape(org) + "/" + url.PathEscape(assessment) + "/reliability"
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("get report: status %d", resp.StatusCode)
	}
	var report types.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
