// Package precipitation is an HTTP client for the external precipitation
// microservice that supplies 24h/72h accumulation per H3 cell.
package precipitation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sottomarino/geolens-europa/internal/core/httpclient"
	"github.com/sottomarino/geolens-europa/internal/core/model"
)

const defaultChunkSize = 5000

type request struct {
	H3Indices []string `json:"h3_indices"`
	TRef      *int64   `json:"t_ref,omitempty"`
	Hours24   bool     `json:"hours_24"`
	Hours72   bool     `json:"hours_72"`
}

type response struct {
	Cells []struct {
		H3Index    string  `json:"h3_index"`
		Rain24hMM  float64 `json:"rain24h_mm"`
		Rain72hMM  float64 `json:"rain72h_mm"`
	} `json:"cells"`
	Source string `json:"source"`
	TRef   int64  `json:"t_ref"`
	Cached bool   `json:"cached"`
}

// Client talks to the precipitation microservice. It is the only component
// in this repo that makes an outbound HTTP call on the request hot path.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	ChunkSize  int
	MaxRetries int
}

func New(baseURL string, timeout time.Duration, chunkSize, maxRetries int) *Client {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	cli := httpclient.NewOutbound()
	cli.Timeout = timeout
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: cli,
		ChunkSize:  chunkSize,
		MaxRetries: maxRetries,
	}
}

// Fetch requests 24h/72h precipitation for every cell, chunking the request
// and merging results. It fails strictly: callers on the orchestrator hot
// path should use FetchWithFallback instead.
func (c *Client) Fetch(ctx context.Context, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	out := make(map[string]model.CellFeatures, len(cellIDs))
	for start := 0; start < len(cellIDs); start += c.ChunkSize {
		end := start + c.ChunkSize
		if end > len(cellIDs) {
			end = len(cellIDs)
		}
		chunk, err := c.fetchChunk(ctx, cellIDs[start:end])
		if err != nil {
			return nil, err
		}
		for k, v := range chunk {
			out[k] = v
		}
	}
	return out, nil
}

// FetchWithFallback returns zeros for every requested cell (and logs,
// via the returned error, which the caller is expected to log and discard)
// when the service cannot be reached after retries. The bool result reports
// whether the data actually came from the service (true) or is the zero
// fallback (false); callers use it to decide whether the response's
// "source" is reportable as live precipitation data.
func (c *Client) FetchWithFallback(ctx context.Context, cellIDs model.Cells) (map[string]model.CellFeatures, bool, error) {
	out, err := c.Fetch(ctx, cellIDs)
	if err == nil {
		return out, true, nil
	}
	zeros := make(map[string]model.CellFeatures, len(cellIDs))
	zero := 0.0
	for _, id := range cellIDs {
		zeros[id] = model.CellFeatures{Rain24h: &zero, Rain72h: &zero}
	}
	return zeros, false, err
}

func (c *Client) fetchChunk(ctx context.Context, cellIDs model.Cells) (map[string]model.CellFeatures, error) {
	body, err := json.Marshal(request{H3Indices: cellIDs, Hours24: true, Hours72: true})
	if err != nil {
		return nil, fmt.Errorf("precipitation: marshal request: %w", err)
	}

	var parsed response
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/precip/h3", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("precipitation: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("precipitation: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("precipitation: server error %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("precipitation: client error %d", resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("precipitation: read response: %w", err)
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("precipitation: decode response: %w", err))
		}
		return nil
	}

	// Linear retry: 2s, 4s.
	bo := &linearBackOff{step: 2 * time.Second, attempt: &attempt}
	if err := backoff.Retry(operation, backoff.WithMaxRetries(bo, uint64(c.MaxRetries))); err != nil {
		return nil, err
	}

	out := make(map[string]model.CellFeatures, len(parsed.Cells))
	for _, cell := range parsed.Cells {
		rain24, rain72 := cell.Rain24hMM, cell.Rain72hMM
		out[cell.H3Index] = model.CellFeatures{Rain24h: &rain24, Rain72h: &rain72}
	}
	return out, nil
}

type linearBackOff struct {
	step    time.Duration
	attempt *int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	return time.Duration(*b.attempt) * b.step
}

func (b *linearBackOff) Reset() {}
