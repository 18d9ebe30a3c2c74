// Package embedding talks to the external OpenAI-compatible embeddings
// provider and runs the background pipeline that keeps log_entries'
// embedding column populated.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin wrapper over one OpenAI-compatible /v1/embeddings
// endpoint. Every call isolates provider failures behind an error —
// callers decide whether a failed signal degrades gracefully or aborts.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
}

// NewClient builds a Client. dimensions is forwarded to the provider so
// returned vectors match the store's vector column. The caller controls
// per-call timeouts via context (60s for batch embedding, 30s for a
// single query embedding); the http.Client itself carries no default
// timeout.
func NewClient(baseURL, apiKey, model string, dimensions int) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
	}
}

// Configured reports whether the provider has credentials, the
// disabled/enabled gate for the pipeline and vector search signal.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.baseURL != ""
}

type embeddingsRequest struct {
	Input      any    `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []embeddingDatum `json:"data"`
}

type embeddingDatum struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests one vector per input string, in order. The caller is
// expected to have set a deadline on ctx.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("embedding provider not configured")
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingsRequest{Input: inputs, Model: c.model, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embeddings request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(decoded.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings provider returned %d vectors for %d inputs", len(decoded.Data), len(inputs))
	}

	vectors := make([][]float32, len(decoded.Data))
	for i, d := range decoded.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// EmbedOne is the single-string convenience used by the search engine's
// query-embedding step.
func (c *Client) EmbedOne(ctx context.Context, input string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embeddings provider returned no vectors")
	}
	return vectors[0], nil
}
