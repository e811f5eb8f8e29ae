// Package export renders analysis results as spreadsheets.
package export

import (
	"fmt"
	"math"
	"strconv"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/properties"
	"github.com/forest-guardian/agrosense-ndvi/internal/results"
	"github.com/forest-guardian/agrosense-ndvi/internal/utils"
)

type Kind string

const (
	KindParcel     Kind = "parcel"
	KindTimeSeries Kind = "timeseries"
)

const (
	ColumnParcel     = "Parcel_#"
	ColumnArea       = "Area_da"
	ColumnTargetDate = "Target_Date"
	ColumnActualDate = "Actual_Date"
	ColumnNDVI       = "NDVI"
	ColumnStatus     = "Status"
)

// Cell is one spreadsheet value. Float cells are measurements printed with
// fixed precision in CSV.
type Cell struct {
	Value model.Value
	Float bool
}

func text(s string) Cell { return Cell{Value: model.StringValue(s)} }

func measure(v *float64) Cell {
	if v == nil {
		return Cell{}
	}
	return Cell{Value: model.NumberValue(*v), Float: true}
}

func attribute(v model.Value) Cell {
	return Cell{Value: v, Float: v.Kind == model.KindNumber && v.Num != math.Trunc(v.Num)}
}

// CSV renders the cell for the CSV writer.
func (c Cell) CSV() string {
	if c.Value.Kind == model.KindNumber {
		if c.Float {
			return strconv.FormatFloat(c.Value.Num, 'f', 4, 64)
		}
		return strconv.FormatFloat(c.Value.Num, 'f', -1, 64)
	}
	return c.Value.String()
}

// Table is a sheet with a header row. Headers are the union of the row keys
// in first-appearance order; rows lacking a header leave the cell empty.
type Table struct {
	Kind        Kind
	Sheet       string
	HeaderColor string
	Headers     []string
	Rows        [][]Cell

	index map[string]int
}

func newTable(kind Kind) *Table {
	t := &Table{Kind: kind, index: make(map[string]int)}
	switch kind {
	case KindTimeSeries:
		t.Sheet, t.HeaderColor = "TimeSeries", "1A3A6A"
	default:
		t.Sheet, t.HeaderColor = "Analysis", "1E5631"
	}
	return t
}

type row struct {
	keys  []string
	cells map[string]Cell
}

func (r *row) set(key string, c Cell) {
	if r.cells == nil {
		r.cells = make(map[string]Cell)
	}
	if _, ok := r.cells[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.cells[key] = c
}

func (r *row) clone() *row {
	c := &row{keys: append([]string(nil), r.keys...), cells: make(map[string]Cell, len(r.cells))}
	for k, v := range r.cells {
		c.cells[k] = v
	}
	return c
}

func (t *Table) append(r *row) {
	for _, k := range r.keys {
		if _, ok := t.index[k]; !ok {
			t.index[k] = len(t.Headers)
			t.Headers = append(t.Headers, k)
		}
	}
	for i, existing := range t.Rows {
		for len(existing) < len(t.Headers) {
			existing = append(existing, Cell{})
		}
		t.Rows[i] = existing
	}
	cells := make([]Cell, len(t.Headers))
	for k, c := range r.cells {
		cells[t.index[k]] = c
	}
	t.Rows = append(t.Rows, cells)
}

// Column returns the cells under header, or nil when the header is unknown.
func (t *Table) Column(header string) []Cell {
	i, ok := t.index[header]
	if !ok {
		return nil
	}
	out := make([]Cell, len(t.Rows))
	for r, cells := range t.Rows {
		out[r] = cells[i]
	}
	return out
}

// Input is what both tables are built from: the dataset, the selected ids in
// the order they should be listed, the requested dates and the results.
type Input struct {
	Dataset   []model.Polygon
	Selection []string
	Dates     []model.Date
	Store     *results.Store
}

func (in Input) polygons() []model.Polygon {
	byID := make(map[string]model.Polygon, len(in.Dataset))
	for _, p := range in.Dataset {
		byID[p.ID] = p
	}
	var out []model.Polygon
	for _, id := range in.Selection {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func baseRow(p model.Polygon) *row {
	r := &row{}
	r.set(ColumnParcel, text(p.ID))
	for _, prop := range p.Properties {
		r.set(prop.Key, attribute(prop.Value))
	}
	r.set(ColumnArea, measure(floatPtr(p.AreaDecares())))
	return r
}

// lookup returns the NDVI and the date it was measured on, which falls back
// to the requested date.
func lookup(store *results.Store, id string, date model.Date) (*float64, model.Date) {
	entry, ok := store.Get(id, date)
	if !ok {
		return nil, date
	}
	actual := entry.ResolvedDate
	if actual == "" {
		actual = date
	}
	return entry.NDVI, actual
}

// ParcelTable has one row per polygon and an NDVI plus a status column per
// date. A column whose scene date differs is headed NDVI_<date>(act:<scene>).
func ParcelTable(in Input) *Table {
	t := newTable(KindParcel)
	dates := utils.SortDates(append([]model.Date(nil), in.Dates...), true)
	for _, p := range in.polygons() {
		r := baseRow(p)
		for _, d := range dates {
			v, actual := lookup(in.Store, p.ID, d)
			header := fmt.Sprintf("NDVI_%s", d)
			if actual != d {
				header += fmt.Sprintf("(act:%s)", actual)
			}
			r.set(header, measure(v))
			r.set("Status_"+string(d), text(properties.NDVIStatus(v)))
		}
		t.append(r)
	}
	return t
}

// TimeSeriesTable has one row per polygon and date.
func TimeSeriesTable(in Input) *Table {
	t := newTable(KindTimeSeries)
	dates := utils.SortDates(append([]model.Date(nil), in.Dates...), true)
	for _, p := range in.polygons() {
		base := baseRow(p)
		for _, d := range dates {
			v, actual := lookup(in.Store, p.ID, d)
			r := base.clone()
			r.set(ColumnTargetDate, text(string(d)))
			r.set(ColumnActualDate, text(string(actual)))
			r.set(ColumnNDVI, measure(v))
			r.set(ColumnStatus, text(properties.NDVIStatus(v)))
			t.append(r)
		}
	}
	return t
}

func floatPtr(v float64) *float64 { return &v }
