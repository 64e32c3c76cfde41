package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pders01/foro/internal/debuglog"
)

const (
	userAgent       = "foro/1.0 (github.com/pders01/foro)"
	maxErrorPreview = 200
)

// Client talks to the hosted service over its REST and storage endpoints.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Select(ctx context.Context, table string, order Order) ([]Row, error) {
	q := url.Values{}
	q.Set("select", "*")
	if order.Column != "" {
		q.Set("order", order.Column+"."+order.Direction.String())
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.tableURL(table, q), nil)
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := c.do(req, &rows); err != nil {
		return nil, fmt.Errorf("selecting from %s: %w", table, err)
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, table string, row Row) (Row, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encoding row: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.tableURL(table, nil), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	var rows []Row
	if err := c.do(req, &rows); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("inserting into %s: empty representation", table)
	}
	return rows[0], nil
}

func (c *Client) Update(ctx context.Context, table, id string, patch Row) (Row, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encoding patch: %w", err)
	}

	q := url.Values{}
	q.Set("id", "eq."+id)
	req, err := c.newRequest(ctx, http.MethodPatch, c.tableURL(table, q), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	var rows []Row
	if err := c.do(req, &rows); err != nil {
		return nil, fmt.Errorf("updating %s/%s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("updating %s/%s: %w", table, id, ErrNotFound)
	}
	return rows[0], nil
}

// UploadBlob stores data under bucket/path, overwriting any existing object,
// and returns its public URL.
func (c *Client) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("data cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, url.PathEscape(bucket), escapePath(path))
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	if err := c.do(req, nil); err != nil {
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, path, err)
	}
	return PublicURL(c.baseURL, bucket, path), nil
}

func (c *Client) tableURL(table string, q url.Values) string {
	u := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, url.PathEscape(table))
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			debuglog.Warnf("failed to close response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		preview := truncatePreview(string(body), maxErrorPreview)
		debuglog.WithFields(map[string]any{
			"method": req.Method,
			"status": resp.StatusCode,
		}).Errorf("remote error: %s", preview)
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, preview)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// truncatePreview cuts s to at most n bytes without splitting a rune.
func truncatePreview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "... (truncated)"
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
