// Package stac searches a STAC item catalog.
package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/forest-guardian/agrosense-ndvi/internal/auth"
	"github.com/forest-guardian/agrosense-ndvi/internal/metrics"
	"github.com/forest-guardian/agrosense-ndvi/internal/utils"
)

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Collections []string               `json:"collections"`
	BBox        []float64              `json:"bbox"`
	Datetime    string                 `json:"datetime"`
	Limit       int                    `json:"limit"`
	Filter      map[string]interface{} `json:"filter,omitempty"`
	FilterLang  string                 `json:"filter-lang,omitempty"`
}

// CloudCoverFilter builds the cql2-json filter "eo:cloud_cover <= max".
func CloudCoverFilter(max float64) map[string]interface{} {
	return map[string]interface{}{
		"op": "lte",
		"args": []interface{}{
			map[string]interface{}{"property": "eo:cloud_cover"},
			max,
		},
	}
}

type ItemProperties struct {
	Datetime   string   `json:"datetime"`
	CloudCover *float64 `json:"eo:cloud_cover"`
}

type Item struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Properties ItemProperties `json:"properties"`
}

type SearchResponse struct {
	Features []Item `json:"features"`
}

// HTTPError is returned for non-2xx catalog responses.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("STAC %d: %s", e.Status, e.Body)
}

type Client struct {
	url        string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewClient(url string, httpClient *http.Client, tokens oauth2.TokenSource, m *metrics.Metrics, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, httpClient: httpClient, tokens: tokens, metrics: m, logger: logger}
}

// Search posts the request and decodes the item collection.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	resp, err := c.search(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.CatalogRequests.WithLabelValues(outcome).Inc()
	return resp, err
}

func (c *Client) search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json, application/json")
	if c.tokens != nil {
		header, err := auth.Header(c.tokens, auth.PlainBearer)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", header)
	}

	c.logger.Debug("catalog search",
		zap.Strings("collections", req.Collections),
		zap.Float64s("bbox", req.BBox),
		zap.String("datetime", req.Datetime),
		zap.Bool("filtered", req.Filter != nil))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: utils.Truncate(string(data), 200)}
	}

	var out SearchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return &out, nil
}
