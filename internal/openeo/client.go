// Package openeo executes process graphs synchronously against an openEO
// back-end.
package openeo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/forest-guardian/agrosense-ndvi/internal/auth"
	"github.com/forest-guardian/agrosense-ndvi/internal/metrics"
	"github.com/forest-guardian/agrosense-ndvi/internal/utils"
)

// HTTPError is returned for non-2xx responses of the back-end.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openEO %d: %s", e.Status, e.Body)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	bearer     auth.BearerFunc
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, tokens oauth2.TokenSource, bearer auth.BearerFunc, m *metrics.Metrics, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if bearer == nil {
		bearer = auth.PlainBearer
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		bearer:     bearer,
		metrics:    m,
		logger:     logger,
	}
}

// Execute runs graph with POST /result and returns the raw result body.
func (c *Client) Execute(ctx context.Context, graph ProcessGraph) ([]byte, error) {
	data, err := c.execute(ctx, graph)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ProcessRequests.WithLabelValues(outcome).Inc()
	return data, err
}

func (c *Client) execute(ctx context.Context, graph ProcessGraph) ([]byte, error) {
	payload := map[string]interface{}{
		"process": map[string]interface{}{"process_graph": graph},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process graph: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/result", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build process request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		header, err := auth.Header(c.tokens, c.bearer)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", header)
	}

	c.logger.Debug("executing process graph", zap.Int("nodes", len(graph)), zap.Int("bytes", len(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("process request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read process response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: utils.Truncate(string(data), 200)}
	}
	return data, nil
}
