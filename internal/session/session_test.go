package session

import (
	"context"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/agrosense-ndvi/internal/delivery"
	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/results"
)

func square(id string, x, y, size float64, props ...model.Property) model.Polygon {
	return model.Polygon{
		ID:         id,
		Properties: props,
		Geometry: orb.Polygon{{
			{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
		}},
	}
}

func prop(k string, v model.Value) model.Property { return model.Property{Key: k, Value: v} }

func fields() []model.Polygon {
	return []model.Polygon{
		square("0", 0, 0, 1, prop("crop", model.StringValue("wheat")), prop("yield", model.NumberValue(4))),
		square("1", 2, 0, 1, prop("crop", model.StringValue("corn"))),
		square("2", 10, 10, 1, prop("crop", model.StringValue("wheat")), prop("owner", model.AbsentValue())),
	}
}

func ptr(v float64) *float64 { return &v }

func TestSelectionBasics(t *testing.T) {
	dataset := fields()
	s := NewSelection()
	s.SelectAll(dataset)
	assert.Equal(t, []string{"0", "1", "2"}, s.IDs(dataset))

	assert.False(t, s.Toggle("1"))
	assert.True(t, s.Toggle("1"))
	s.Remove("0")
	s.Add("2", "99")
	assert.Equal(t, []string{"1", "2"}, s.IDs(dataset))
	assert.Equal(t, 3, s.Len())

	s.Clear()
	assert.Empty(t, s.IDs(dataset))
}

func TestFilterByValues(t *testing.T) {
	dataset := fields()
	assert.Equal(t, []string{"crop", "owner"}, FilterableKeys(dataset))
	assert.Equal(t, []string{"corn", "wheat"}, DistinctValues(dataset, "crop"))

	s := NewSelection("1")
	n := s.SelectByValues(dataset, "crop", []string{"wheat"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"0", "2"}, s.IDs(dataset))
}

func TestSelectDrawn(t *testing.T) {
	dataset := fields()
	s := NewSelection("2")

	// Overlaps the lower edge of 0 and a corner of 1.
	drawn := orb.Polygon{{{-0.5, -0.5}, {2.2, -0.5}, {2.2, 0.2}, {-0.5, 0.2}, {-0.5, -0.5}}}
	matched := s.SelectDrawn(dataset, drawn)
	assert.Equal(t, []string{"0", "1"}, matched)
	assert.Equal(t, []string{"0", "1", "2"}, s.IDs(dataset))

	// A thin band crossing 1 away from its centroid, with no vertex inside
	// either shape.
	band := orb.Polygon{{{1.9, 0.8}, {3.1, 0.8}, {3.1, 0.9}, {1.9, 0.9}, {1.9, 0.8}}}
	s.Clear()
	assert.Equal(t, []string{"1"}, s.SelectDrawn(dataset, band))

	s.Clear()
	assert.Empty(t, s.SelectDrawn(dataset, orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{51, 51}}))
}

func TestDateList(t *testing.T) {
	l := NewDateList()
	ok, err := l.Add("2024-06-01")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Add(" 2024-06-01 ")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.Add("01.06.2024")
	assert.ErrorIs(t, err, model.ErrInvalidDate)

	added, rejected := l.AddBulk("2024-07-15, nope, 2024-06-01,2024-08-20")
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"nope"}, rejected)
	assert.Equal(t, []model.Date{"2024-06-01", "2024-07-15", "2024-08-20"}, l.Dates())

	assert.True(t, l.Remove("2024-07-15"))
	assert.False(t, l.Remove("2024-07-15"))
	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestDateListRange(t *testing.T) {
	l := NewDateList("2024-01-11")
	added, err := l.AddRange("2024-01-01", "2024-01-31", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, []model.Date{"2024-01-01", "2024-01-11", "2024-01-21", "2024-01-31"}, l.Sorted())

	_, err = l.AddRange("2024-02-01", "2024-01-01", 5)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = l.AddRange("2024-01-01", "2024-02-01", 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestDateListImportCSV(t *testing.T) {
	l := NewDateList()
	added, rejected, err := l.ImportCSV(strings.NewReader("date,note\n2024-05-01,first\nmay 2,bad\n2024-05-01,dup\n2024-05-10,\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"may 2"}, rejected)
	assert.Equal(t, []model.Date{"2024-05-01", "2024-05-10"}, l.Dates())
}

type fakeAnalyzer struct {
	calls int
	run   func(req delivery.AnalysisRequest) (*results.Store, *delivery.Report, error)
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req delivery.AnalysisRequest) (*results.Store, *delivery.Report, error) {
	f.calls++
	return f.run(req)
}

func TestSessionAnalyzeAdoptsStore(t *testing.T) {
	fa := &fakeAnalyzer{}
	fa.run = func(req delivery.AnalysisRequest) (*results.Store, *delivery.Report, error) {
		assert.Equal(t, []string{"0", "2"}, req.Selection)
		assert.Equal(t, []model.Date{"2024-06-01"}, req.Dates)
		store := req.Store.Clone()
		store.Set("0", "2024-06-01", results.Entry{NDVI: ptr(0.5), ResolvedDate: "2024-06-03", Status: results.StatusComputed})
		return store, &delivery.Report{}, nil
	}

	s := New(fa)
	s.ReplaceDataset(fields())
	s.Selection.Add("2", "0")
	_, _ = s.Dates.Add("2024-06-01")

	report, err := s.Analyze(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.InDelta(t, 0.5, *s.Store.NDVI("0", "2024-06-01"), 1e-9)
	assert.Equal(t, []model.Date{"2024-06-03"}, s.Divergence("2024-06-01"))
	assert.Equal(t, model.Date("2024-06-01"), s.ActiveDate)
	assert.Equal(t, []model.Date{"2024-06-01"}, s.SortedDivergence())
}

func TestSessionAnalyzeRejectsReentry(t *testing.T) {
	fa := &fakeAnalyzer{}
	s := New(fa)
	var nested error
	fa.run = func(req delivery.AnalysisRequest) (*results.Store, *delivery.Report, error) {
		_, nested = s.Analyze(context.Background())
		return req.Store, &delivery.Report{}, nil
	}

	_, err := s.Analyze(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrBusy)
	assert.Equal(t, 1, fa.calls)
}

func TestSessionAnalyzeErrorKeepsState(t *testing.T) {
	fa := &fakeAnalyzer{run: func(delivery.AnalysisRequest) (*results.Store, *delivery.Report, error) {
		return nil, nil, delivery.ErrEmptySelection
	}}
	s := New(fa)
	before := s.Store

	_, err := s.Analyze(context.Background())
	assert.ErrorIs(t, err, delivery.ErrEmptySelection)
	assert.Same(t, before, s.Store)
}

func TestReplaceAndAppendDataset(t *testing.T) {
	s := New(&fakeAnalyzer{})
	s.ReplaceDataset(fields())
	s.Selection.SelectAll(s.Dataset)
	s.Store.Set("1", "2024-06-01", results.Entry{NDVI: ptr(0.2), ResolvedDate: "2024-06-01", Status: results.StatusComputed})
	assert.Equal(t, 3, s.NextID())

	s.AppendDataset([]model.Polygon{square("3", 20, 20, 1)})
	assert.Equal(t, 4, s.NextID())
	assert.Equal(t, 3, s.Selection.Len())
	assert.Equal(t, 1, s.Store.Len())

	s.ReplaceDataset([]model.Polygon{square("0", 5, 5, 1)})
	assert.Equal(t, 0, s.Selection.Len())
	assert.Equal(t, 0, s.Store.Len())
}

func TestMetricsAndTimeSeries(t *testing.T) {
	s := New(&fakeAnalyzer{})
	s.ReplaceDataset(fields())
	s.Selection.SelectAll(s.Dataset)
	s.Dates = NewDateList("2024-07-01", "2024-06-01")

	set := func(id string, d model.Date, v *float64) {
		s.Store.Set(id, d, results.Entry{NDVI: v, ResolvedDate: d, Status: results.StatusComputed})
	}
	set("0", "2024-06-01", ptr(0.6))
	set("1", "2024-06-01", ptr(0.1))
	set("2", "2024-06-01", nil)
	set("0", "2024-07-01", ptr(0.7))

	m := s.Metrics("2024-06-01")
	assert.Equal(t, 3, m.Selected)
	assert.Equal(t, 2, m.Valued)
	require.NotNil(t, m.Mean)
	assert.InDelta(t, 0.35, *m.Mean, 1e-9)
	assert.Equal(t, 1, m.Planted)
	assert.Equal(t, 1, m.Bare)

	assert.Nil(t, s.Metrics("2024-09-01").Mean)

	series := s.TimeSeries()
	require.Len(t, series, 2)
	assert.Equal(t, "#0 wheat", series[0].Label)
	assert.Equal(t, []SeriesPoint{{Date: "2024-06-01", NDVI: 0.6}, {Date: "2024-07-01", NDVI: 0.7}}, series[0].Points)
	assert.Equal(t, "1", series[1].PolygonID)
}

func TestSnapshotRestore(t *testing.T) {
	s := New(&fakeAnalyzer{})
	s.ReplaceDataset(fields())
	s.Selection.Add("0", "1")
	s.Dates = NewDateList("2024-06-01")
	s.Store.Set("0", "2024-06-01", results.Entry{NDVI: ptr(0.4), ResolvedDate: "2024-06-03", Status: results.StatusComputed})
	s.Store.Set("7", "2024-06-01", results.Entry{ResolvedDate: "2024-06-01", Status: results.StatusFailed})

	st := s.Snapshot()
	assert.Equal(t, []string{"0", "1"}, st.Selection)
	assert.Len(t, st.Results, 2)

	restored := New(&fakeAnalyzer{})
	restored.ReplaceDataset(fields())
	restored.Restore(st)
	assert.Equal(t, []string{"0", "1"}, restored.Selection.IDs(restored.Dataset))
	assert.Equal(t, []model.Date{"2024-06-01"}, restored.Dates.Dates())
	assert.Equal(t, []model.Date{"2024-06-03"}, restored.Divergence("2024-06-01"))
	assert.Equal(t, 1, restored.Store.Len(), "results of polygons outside the dataset are dropped")
}

func TestClearDate(t *testing.T) {
	s := New(&fakeAnalyzer{})
	s.ReplaceDataset(fields())
	s.Store.Set("0", "2024-06-01", results.Entry{NDVI: ptr(0.3), ResolvedDate: "2024-06-02", Status: results.StatusComputed})
	s.Store.Set("1", "2024-06-01", results.Entry{Status: results.StatusFailed})
	s.Store.Set("1", "2024-07-01", results.Entry{Status: results.StatusFailed})

	assert.Equal(t, 2, s.ClearDate("2024-06-01"))
	assert.Equal(t, 1, s.Store.Len())
	assert.Empty(t, s.Divergence("2024-06-01"))
}

func TestDivergenceFollowsEntries(t *testing.T) {
	s := New(&fakeAnalyzer{})
	s.ReplaceDataset(fields())
	s.Selection.Add("0", "1")
	s.Dates = NewDateList("2024-06-01", "2024-07-01")
	s.Store.Set("0", "2024-06-01", results.Entry{NDVI: ptr(0.4), ResolvedDate: "2024-06-03", Status: results.StatusComputed})
	s.Store.Set("0", "2024-07-01", results.Entry{NDVI: ptr(0.5), ResolvedDate: "2024-07-01", Status: results.StatusComputed})

	// A polygon appended later resolved to another scene for the same date.
	s.AppendDataset([]model.Polygon{square("3", 20, 20, 1)})
	s.Selection.Add("3")
	s.Store.Set("3", "2024-06-01", results.Entry{NDVI: ptr(0.6), ResolvedDate: "2024-05-30", Status: results.StatusComputed})

	assert.Equal(t, []model.Date{"2024-05-30", "2024-06-03"}, s.Metrics("2024-06-01").Resolved)
	assert.Empty(t, s.Metrics("2024-07-01").Resolved)
	assert.Equal(t, []model.Date{"2024-06-01"}, s.SortedDivergence())

	series := s.TimeSeries()
	require.Len(t, series, 2)
	assert.Equal(t, []SeriesPoint{
		{Date: "2024-06-01", NDVI: 0.4, Resolved: "2024-06-03"},
		{Date: "2024-07-01", NDVI: 0.5},
	}, series[0].Points)

	s.ReplaceDataset([]model.Polygon{square("0", 5, 5, 1)})
	assert.Empty(t, s.Divergence("2024-06-01"))
	assert.Empty(t, s.SortedDivergence())
}
