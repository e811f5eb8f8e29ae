// Package results holds NDVI values computed per polygon and requested date.
//
// The Store is written only by the analysis path; it is not safe for
// concurrent writers.
package results

import (
	"sort"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/utils"
)

type Status string

const (
	// StatusComputed means the processing backend returned a value (possibly
	// absent) for the resolved date.
	StatusComputed Status = "computed"
	// StatusNoImagery means no scene existed within the tolerance window.
	StatusNoImagery Status = "no_imagery"
	// StatusFailed means resolving or aggregating the date failed.
	StatusFailed Status = "failed"
)

// Entry is the outcome for one (polygon, requested date) pair. A nil NDVI is
// a valid terminal outcome.
type Entry struct {
	NDVI         *float64   `json:"ndvi"`
	ResolvedDate model.Date `json:"resolved_date"`
	Status       Status     `json:"status"`
}

func (e Entry) Diverges(requested model.Date) bool {
	return e.ResolvedDate != "" && e.ResolvedDate != requested
}

type Store struct {
	entries map[string]map[model.Date]Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]map[model.Date]Entry)}
}

func (s *Store) Set(polygonID string, date model.Date, entry Entry) {
	byDate, ok := s.entries[polygonID]
	if !ok {
		byDate = make(map[model.Date]Entry)
		s.entries[polygonID] = byDate
	}
	byDate[date] = entry
}

func (s *Store) Get(polygonID string, date model.Date) (Entry, bool) {
	entry, ok := s.entries[polygonID][date]
	return entry, ok
}

func (s *Store) Has(polygonID string, date model.Date) bool {
	_, ok := s.Get(polygonID, date)
	return ok
}

// NDVI returns the stored value, nil when absent or not computed.
func (s *Store) NDVI(polygonID string, date model.Date) *float64 {
	entry, ok := s.Get(polygonID, date)
	if !ok {
		return nil
	}
	return entry.NDVI
}

// ResolvedDates lists, sorted and without duplicates, the scene dates other
// than date that the given polygons were computed on for date.
func (s *Store) ResolvedDates(date model.Date, polygonIDs []string) []model.Date {
	seen := make(map[model.Date]bool)
	for _, id := range polygonIDs {
		if entry, ok := s.Get(id, date); ok && entry.Diverges(date) {
			seen[entry.ResolvedDate] = true
		}
	}
	return utils.GetSortedKeys(seen, true)
}

// Entries returns a copy of all entries of a polygon.
func (s *Store) Entries(polygonID string) map[model.Date]Entry {
	out := make(map[model.Date]Entry, len(s.entries[polygonID]))
	for d, e := range s.entries[polygonID] {
		out[d] = e
	}
	return out
}

// Purge drops every entry of the given polygons.
func (s *Store) Purge(polygonIDs ...string) {
	for _, id := range polygonIDs {
		delete(s.entries, id)
	}
}

// Retain drops entries of polygons not in keep.
func (s *Store) Retain(keep map[string]bool) {
	for id := range s.entries {
		if !keep[id] {
			delete(s.entries, id)
		}
	}
}

// Clear removes the entries of a requested date so the next analysis
// recomputes it.
func (s *Store) Clear(date model.Date) int {
	removed := 0
	for _, byDate := range s.entries {
		if _, ok := byDate[date]; ok {
			delete(byDate, date)
			removed++
		}
	}
	return removed
}

// Len is the number of stored (polygon, date) pairs.
func (s *Store) Len() int {
	n := 0
	for _, byDate := range s.entries {
		n += len(byDate)
	}
	return n
}

func (s *Store) Clone() *Store {
	c := NewStore()
	for id, byDate := range s.entries {
		for d, e := range byDate {
			if e.NDVI != nil {
				v := *e.NDVI
				e.NDVI = &v
			}
			c.Set(id, d, e)
		}
	}
	return c
}

// Record is a flattened store entry used for persistence.
type Record struct {
	PolygonID     string     `json:"polygon_id"`
	RequestedDate model.Date `json:"requested_date"`
	Entry
}

// Snapshot lists every entry ordered by polygon id then requested date.
func (s *Store) Snapshot() []Record {
	records := make([]Record, 0, s.Len())
	for id, byDate := range s.entries {
		for d, e := range byDate {
			records = append(records, Record{PolygonID: id, RequestedDate: d, Entry: e})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].PolygonID != records[j].PolygonID {
			return records[i].PolygonID < records[j].PolygonID
		}
		return records[i].RequestedDate < records[j].RequestedDate
	})
	return records
}

func Restore(records []Record) *Store {
	s := NewStore()
	for _, r := range records {
		s.Set(r.PolygonID, r.RequestedDate, r.Entry)
	}
	return s
}
