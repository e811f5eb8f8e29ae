// Package session holds the interactive state of one user: the loaded
// dataset, the selection, the requested dates and the computed results.
package session

import (
	"context"
	"math"
	"strconv"

	"github.com/forest-guardian/agrosense-ndvi/internal/delivery"
	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/properties"
	"github.com/forest-guardian/agrosense-ndvi/internal/results"
	"github.com/forest-guardian/agrosense-ndvi/internal/utils"
)

// ErrBusy is returned when an analysis is started while another one runs.
var ErrBusy = utils.ErrBusy

type Analyzer interface {
	Analyze(ctx context.Context, req delivery.AnalysisRequest) (*results.Store, *delivery.Report, error)
}

type Session struct {
	Dataset   []model.Polygon
	Selection *Selection
	Dates     *DateList
	Store     *results.Store
	ActiveDate model.Date

	analyzer Analyzer
	running  utils.Exclusive
}

func New(analyzer Analyzer) *Session {
	return &Session{
		Selection: NewSelection(),
		Dates:     NewDateList(),
		Store:     results.NewStore(),
		analyzer:  analyzer,
	}
}

// NextID is the first id free for polygons appended to the dataset.
func (s *Session) NextID() int {
	next := 0
	for _, p := range s.Dataset {
		if n, err := strconv.Atoi(p.ID); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

// ReplaceDataset swaps the dataset. The selection is cleared and results of
// the previous polygons are purged.
func (s *Session) ReplaceDataset(polygons []model.Polygon) {
	old := make([]string, 0, len(s.Dataset))
	for _, p := range s.Dataset {
		old = append(old, p.ID)
	}
	s.Store.Purge(old...)
	s.Dataset = polygons
	s.Selection.Clear()
}

// AppendDataset adds polygons numbered from NextID. The selection and
// existing results are kept.
func (s *Session) AppendDataset(polygons []model.Polygon) {
	s.Dataset = append(s.Dataset, polygons...)
}

func (s *Session) Polygon(id string) (model.Polygon, bool) {
	for _, p := range s.Dataset {
		if p.ID == id {
			return p, true
		}
	}
	return model.Polygon{}, false
}

// SelectedPolygons returns the selected polygons in dataset order.
func (s *Session) SelectedPolygons() []model.Polygon {
	var out []model.Polygon
	for _, p := range s.Dataset {
		if s.Selection.Contains(p.ID) {
			out = append(out, p)
		}
	}
	return out
}

// Analyze runs the analyzer over the current selection and dates and adopts
// its store. A second call while one is running fails with ErrBusy.
func (s *Session) Analyze(ctx context.Context) (*delivery.Report, error) {
	var report *delivery.Report
	err := s.running.Run(func() error {
		store, r, err := s.analyzer.Analyze(ctx, delivery.AnalysisRequest{
			Polygons:  s.Dataset,
			Selection: s.Selection.IDs(s.Dataset),
			Dates:     s.Dates.Dates(),
			Store:     s.Store,
		})
		if err != nil {
			return err
		}
		s.Store = store
		if s.ActiveDate == "" && s.Dates.Len() > 0 {
			s.ActiveDate = s.Dates.Dates()[0]
		}
		report = r
		return nil
	})
	return report, err
}

// ClearDate drops stored results of a date so the next run recomputes it.
func (s *Session) ClearDate(d model.Date) int {
	return s.Store.Clear(d)
}

func (s *Session) datasetIDs() []string {
	ids := make([]string, len(s.Dataset))
	for i, p := range s.Dataset {
		ids[i] = p.ID
	}
	return ids
}

// Divergence lists the scene dates other than d that polygons of the dataset
// were computed on for d.
func (s *Session) Divergence(d model.Date) []model.Date {
	return s.Store.ResolvedDates(d, s.datasetIDs())
}

// DateMetrics summarizes the selection for one requested date.
type DateMetrics struct {
	Date model.Date
	// Resolved holds the scene dates other than Date used by the selection.
	Resolved []model.Date
	Selected int
	Valued   int
	Mean     *float64
	Planted  int
	Bare     int
}

func (s *Session) Metrics(d model.Date) DateMetrics {
	ids := s.Selection.IDs(s.Dataset)
	m := DateMetrics{Date: d, Resolved: s.Store.ResolvedDates(d, ids)}
	sum := 0.0
	for _, id := range ids {
		m.Selected++
		v := s.Store.NDVI(id, d)
		if v == nil {
			continue
		}
		m.Valued++
		sum += *v
		switch properties.NDVIStatus(v) {
		case properties.StatusPlanted:
			m.Planted++
		case properties.StatusBare:
			m.Bare++
		}
	}
	if m.Valued > 0 {
		mean := math.Round(sum/float64(m.Valued)*1000) / 1000
		m.Mean = &mean
	}
	return m
}

type SeriesPoint struct {
	Date model.Date
	NDVI float64
	// Resolved is set when the value comes from another scene date.
	Resolved model.Date
}

// Series is the NDVI history of one polygon over the requested dates.
type Series struct {
	PolygonID string
	Label     string
	Points    []SeriesPoint
}

// TimeSeries lists, for every selected polygon with at least one value, its
// values over the sorted requested dates.
func (s *Session) TimeSeries() []Series {
	dates := s.Dates.Sorted()
	var out []Series
	for _, p := range s.SelectedPolygons() {
		series := Series{PolygonID: p.ID, Label: Label(p, 15)}
		for _, d := range dates {
			entry, ok := s.Store.Get(p.ID, d)
			if !ok || entry.NDVI == nil {
				continue
			}
			point := SeriesPoint{Date: d, NDVI: *entry.NDVI}
			if entry.Diverges(d) {
				point.Resolved = entry.ResolvedDate
			}
			series.Points = append(series.Points, point)
		}
		if len(series.Points) > 0 {
			out = append(out, series)
		}
	}
	return out
}

// Label is "#<id>" followed by the first property value cut to width runes.
func Label(p model.Polygon, width int) string {
	label := "#" + p.ID
	if len(p.Properties) == 0 {
		return label
	}
	v := []rune(p.Properties[0].Value.String())
	if len(v) > width {
		v = v[:width]
	}
	if len(v) == 0 {
		return label
	}
	return label + " " + string(v)
}

// State is the persistable part of a session. The dataset itself is reloaded
// from its files.
type State struct {
	Selection  []string         `json:"selection"`
	Dates      []model.Date     `json:"dates"`
	ActiveDate model.Date       `json:"active_date,omitempty"`
	Results    []results.Record `json:"results"`
}

func (s *Session) Snapshot() State {
	return State{
		Selection:  s.Selection.Sorted(),
		Dates:      s.Dates.Dates(),
		ActiveDate: s.ActiveDate,
		Results:    s.Store.Snapshot(),
	}
}

// Restore replaces selection, dates and results with st. When a dataset is
// loaded, results of polygons it lacks are dropped.
func (s *Session) Restore(st State) {
	s.Selection = NewSelection(st.Selection...)
	s.Dates = NewDateList(st.Dates...)
	s.ActiveDate = st.ActiveDate
	s.Store = results.Restore(st.Results)

	if len(s.Dataset) > 0 {
		keep := make(map[string]bool, len(s.Dataset))
		for _, p := range s.Dataset {
			keep[p.ID] = true
		}
		s.Store.Retain(keep)
	}
}

// SortedDivergence lists, sorted, the requested dates on which some polygon
// of the dataset used another scene date.
func (s *Session) SortedDivergence() []model.Date {
	var out []model.Date
	for _, d := range s.Dates.Sorted() {
		if len(s.Divergence(d)) > 0 {
			out = append(out, d)
		}
	}
	return out
}
