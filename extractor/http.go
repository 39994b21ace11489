package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultServerURL is where a local embedding server is expected to listen
// when no address is configured.
const DefaultServerURL = "http://localhost:8800"

// Client extracts embeddings through an HTTP embedding server. The server
// exposes POST /embed for single images and POST /embed/batch for batches.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. to tune timeouts
// or inject transports in tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// NewClient returns a client for the embedding server at baseURL. An empty
// baseURL falls back to DefaultServerURL.
func NewClient(baseURL, model string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	c := &Client{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the model name requested from the server.
func (c *Client) Name() string { return c.model }

// Embed extracts the embedding for a single image.
func (c *Client) Embed(ctx context.Context, source string) ([]float32, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"source": source,
	}
	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := c.post(ctx, "/embed", reqBody, &result); err != nil {
		return nil, &Error{Source: source, Err: err}
	}
	if len(result.Embedding) == 0 {
		return nil, &Error{Source: source, Err: fmt.Errorf("empty embedding returned")}
	}
	return result.Embedding, nil
}

// EmbedBatch extracts embeddings for several images in one request. The
// server must return exactly one embedding per source, in order.
func (c *Client) EmbedBatch(ctx context.Context, sources []string) ([][]float32, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"model":   c.model,
		"sources": sources,
	}
	var result struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.post(ctx, "/embed/batch", reqBody, &result); err != nil {
		return nil, &Error{Source: sources[0], Err: err}
	}
	if len(result.Embeddings) != len(sources) {
		return nil, &Error{
			Source: sources[0],
			Err:    fmt.Errorf("server returned %d embeddings for %d sources", len(result.Embeddings), len(sources)),
		}
	}
	return result.Embeddings, nil
}

// Func adapts the client to the single-image extraction capability.
func (c *Client) Func() Func { return c.Embed }

// BatchFunc adapts the client to the batch extraction capability.
func (c *Client) BatchFunc() BatchFunc { return c.EmbedBatch }

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
