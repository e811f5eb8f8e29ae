package delivery

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/metrics"
	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/openeo"
	"github.com/forest-guardian/agrosense-ndvi/internal/results"
	"github.com/forest-guardian/agrosense-ndvi/internal/sentinel"
)

// dateProcessor answers aggregation jobs per scene date.
type dateProcessor struct {
	mu     sync.Mutex
	dates  []model.Date
	answer func(date model.Date) ([]byte, error)
}

func (p *dateProcessor) Execute(_ context.Context, graph openeo.ProcessGraph) ([]byte, error) {
	extent := graph["load"].Arguments["temporal_extent"].([]string)
	date := model.Date(extent[0])
	p.mu.Lock()
	p.dates = append(p.dates, date)
	p.mu.Unlock()
	return p.answer(date)
}

func newPipeline(resolver *stubResolver, proc *dateProcessor) (*Analyzer, *metrics.Metrics) {
	m := metrics.New()
	aggregator := sentinel.NewAggregator(proc, sentinel.DefaultAggregatorConfig(), zap.NewNop())
	return NewAnalyzer(resolver, aggregator, Options{}, m, zap.NewNop()), m
}

func sameDayScenes(dates ...model.Date) map[model.Date]model.Date {
	scenes := make(map[model.Date]model.Date, len(dates))
	for _, d := range dates {
		scenes[d] = d
	}
	return scenes
}

func TestPipelineWorkedExample(t *testing.T) {
	resolver := &stubResolver{scenes: map[model.Date]model.Date{"2024-06-01": "2024-06-03"}}
	proc := &dateProcessor{answer: func(model.Date) ([]byte, error) {
		return []byte(`[0.41, -1.5]`), nil
	}}
	analyzer, _ := newPipeline(resolver, proc)

	store, report, err := analyzer.Analyze(context.Background(), AnalysisRequest{
		Polygons:  dataset(),
		Selection: []string{"0", "1"},
		Dates:     []model.Date{"2024-06-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, []model.Date{"2024-06-03"}, proc.dates)

	p1, ok := store.Get("0", "2024-06-01")
	require.True(t, ok)
	require.NotNil(t, p1.NDVI)
	assert.InDelta(t, 0.41, *p1.NDVI, 1e-9)
	assert.Equal(t, model.Date("2024-06-03"), p1.ResolvedDate)

	p2, ok := store.Get("1", "2024-06-01")
	require.True(t, ok)
	assert.Nil(t, p2.NDVI, "out of range values are absent")
	assert.Equal(t, model.Date("2024-06-03"), p2.ResolvedDate)
	assert.Equal(t, results.StatusComputed, p2.Status)

	assert.Equal(t, []string{"2024-06-01: nearest scene 2024-06-03 used"}, report.Warnings)
	assert.Empty(t, report.Errors)
}

func TestPipelineNoImageExample(t *testing.T) {
	proc := &dateProcessor{answer: func(model.Date) ([]byte, error) { return []byte(`[0.5]`), nil }}
	analyzer, _ := newPipeline(&stubResolver{}, proc)

	store, report, err := analyzer.Analyze(context.Background(), AnalysisRequest{
		Polygons:  dataset(),
		Selection: []string{"0"},
		Dates:     []model.Date{"2024-01-01"},
	})
	require.NoError(t, err)
	assert.Empty(t, proc.dates)
	assert.Equal(t, []string{"2024-01-01: no image within ±15 days"}, report.Warnings)

	entry, ok := store.Get("0", "2024-01-01")
	require.True(t, ok)
	assert.Nil(t, entry.NDVI)
	assert.Equal(t, results.StatusNoImagery, entry.Status)
}

func TestPipelineRejectedDatesDoNotStopLaterDates(t *testing.T) {
	dates := []model.Date{"2024-05-01", "2024-05-11", "2024-05-21", "2024-06-01", "2024-06-11"}
	rejected := map[model.Date]bool{"2024-05-01": true, "2024-05-11": true, "2024-05-21": true}
	proc := &dateProcessor{answer: func(d model.Date) ([]byte, error) {
		if rejected[d] {
			return nil, &openeo.HTTPError{Status: 400, Body: "NoDataAvailable"}
		}
		return []byte(`[0.3]`), nil
	}}
	analyzer, _ := newPipeline(&stubResolver{scenes: sameDayScenes(dates...)}, proc)

	store, report, err := analyzer.Analyze(context.Background(), AnalysisRequest{
		Polygons:  dataset(),
		Selection: []string{"0"},
		Dates:     dates,
	})
	require.NoError(t, err)
	assert.Equal(t, dates, proc.dates, "every date reaches the back-end")
	assert.Len(t, report.Errors, 3)
	assert.Zero(t, report.DeferredCount())

	for _, d := range dates[3:] {
		entry, ok := store.Get("0", d)
		require.True(t, ok)
		assert.Equal(t, results.StatusComputed, entry.Status)
		require.NotNil(t, entry.NDVI)
		assert.InDelta(t, 0.3, *entry.NDVI, 1e-9)
	}
}

func TestPipelineDefersDatesWhileBackendIsDown(t *testing.T) {
	dates := []model.Date{"2024-05-01", "2024-05-11", "2024-05-21", "2024-06-01", "2024-06-11"}
	down := &dateProcessor{answer: func(model.Date) ([]byte, error) {
		return nil, &openeo.HTTPError{Status: 503, Body: "Service Unavailable"}
	}}
	analyzer, m := newPipeline(&stubResolver{scenes: sameDayScenes(dates...)}, down)
	req := AnalysisRequest{Polygons: dataset(), Selection: []string{"0"}, Dates: dates}

	store, report, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, down.dates, 3, "the breaker opens after three back-end failures")
	assert.Len(t, report.Errors, 5)
	assert.Equal(t, 2, report.DeferredCount())
	assert.Contains(t, report.Summary(), "2 deferred to the next run")
	assert.True(t, report.Outcomes[3].Deferred)

	for _, d := range dates[:3] {
		entry, ok := store.Get("0", d)
		require.True(t, ok)
		assert.Equal(t, results.StatusFailed, entry.Status)
	}
	for _, d := range dates[3:] {
		assert.False(t, store.Has("0", d), "deferred dates stay unstored")
	}

	up := &dateProcessor{answer: func(model.Date) ([]byte, error) { return []byte(`[0.6]`), nil }}
	retry, _ := newPipeline(&stubResolver{scenes: sameDayScenes(dates...)}, up)
	req.Store = store
	store, _, err = retry.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, dates[3:], up.dates)
	for _, d := range dates[3:] {
		entry, _ := store.Get("0", d)
		assert.Equal(t, results.StatusComputed, entry.Status)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysisDates.WithLabelValues("deferred")))
}
