// Package embed provides a client for a text-embeddings-inference endpoint
// (the dense half of the hybrid index). The endpoint URL comes from
// Embed_API_URL and serves POST {endpoint} with {"inputs": [...]} returning
// one vector per input.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultEndpoint is the TEI embed route.
const DefaultEndpoint = "/embed"

// Embedder turns texts into dense vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Client calls a text-embeddings-inference server.
type Client struct {
	baseURL  string
	endpoint string
	http     *http.Client
}

// NewClient creates an embedding client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  baseURL,
		endpoint: DefaultEndpoint,
		http:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// EmbedBatch implements Embedder.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: status %d", resp.StatusCode)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("embed: decode: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}
