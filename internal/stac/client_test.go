package stac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/forest-guardian/agrosense-ndvi/internal/metrics"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cql2-json", body["filter-lang"])
		assert.Equal(t, float64(50), body["limit"])

		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"id":"S2A_1","properties":{"datetime":"2024-06-03T08:56:21.024Z","eo:cloud_cover":12.5}},
			{"id":"S2B_2","properties":{"datetime":"2024-06-05T08:56:21.024Z"}}
		]}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := NewClient(srv.URL, srv.Client(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), m, zap.NewNop())

	resp, err := c.Search(context.Background(), SearchRequest{
		Collections: []string{"SENTINEL-2"},
		BBox:        []float64{30, 37, 31, 38},
		Datetime:    "2024-05-17T00:00:00Z/2024-06-16T23:59:59Z",
		Limit:       50,
		Filter:      CloudCoverFilter(70),
		FilterLang:  "cql2-json",
	})
	require.NoError(t, err)
	require.Len(t, resp.Features, 2)
	assert.Equal(t, "S2A_1", resp.Features[0].ID)
	require.NotNil(t, resp.Features[0].Properties.CloudCover)
	assert.InDelta(t, 12.5, *resp.Features[0].Properties.CloudCover, 1e-9)
	assert.Nil(t, resp.Features[1].Properties.CloudCover)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogRequests.WithLabelValues("ok")))
}

func TestSearchOmitsEmptyFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasFilter := body["filter"]
		_, hasLang := body["filter-lang"]
		assert.False(t, hasFilter)
		assert.False(t, hasLang)
		_, _ = w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil, metrics.New(), zap.NewNop())
	resp, err := c.Search(context.Background(), SearchRequest{Collections: []string{"SENTINEL-2"}, Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, resp.Features)
}

func TestSearchErrors(t *testing.T) {
	long := strings.Repeat("x", 500)
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx carries status and truncated body",
			status: http.StatusBadRequest,
			body:   long,
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				require.True(t, errors.As(err, &httpErr))
				assert.Equal(t, http.StatusBadRequest, httpErr.Status)
				assert.Len(t, httpErr.Body, 200)
			},
		},
		{
			name:   "undecodable body",
			status: http.StatusOK,
			body:   `<html>`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "failed to decode catalog response")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			m := metrics.New()
			_, err := NewClient(srv.URL, srv.Client(), nil, m, zap.NewNop()).Search(context.Background(), SearchRequest{})
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogRequests.WithLabelValues("error")))
		})
	}
}
