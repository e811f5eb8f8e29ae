package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestStore_SetGetHas(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Has("1", "2024-06-01"))

	s.Set("1", "2024-06-01", Entry{NDVI: ptr(0.41), ResolvedDate: "2024-06-03", Status: StatusComputed})
	s.Set("1", "2024-07-01", Entry{ResolvedDate: "2024-07-01", Status: StatusNoImagery})

	entry, ok := s.Get("1", "2024-06-01")
	require.True(t, ok)
	assert.Equal(t, 0.41, *entry.NDVI)
	assert.True(t, entry.Diverges("2024-06-01"))

	absent, ok := s.Get("1", "2024-07-01")
	require.True(t, ok)
	assert.Nil(t, absent.NDVI)
	assert.False(t, absent.Diverges("2024-07-01"))
	assert.Equal(t, 2, s.Len())
}

func TestStore_SetOverwrites(t *testing.T) {
	s := NewStore()
	s.Set("1", "2024-06-01", Entry{Status: StatusFailed, ResolvedDate: "2024-06-01"})
	s.Set("1", "2024-06-01", Entry{NDVI: ptr(0.2), Status: StatusComputed, ResolvedDate: "2024-06-01"})

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0.2, *s.NDVI("1", "2024-06-01"))
}

func TestStore_CloneIsIndependent(t *testing.T) {
	s := NewStore()
	s.Set("1", "2024-06-01", Entry{NDVI: ptr(0.5), Status: StatusComputed})

	c := s.Clone()
	*c.NDVI("1", "2024-06-01") = 0.9
	c.Set("2", "2024-06-01", Entry{Status: StatusComputed})

	assert.Equal(t, 0.5, *s.NDVI("1", "2024-06-01"))
	assert.False(t, s.Has("2", "2024-06-01"))
}

func TestStore_PurgeRetainClear(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"0", "1", "2"} {
		s.Set(id, "2024-06-01", Entry{Status: StatusComputed})
		s.Set(id, "2024-07-01", Entry{Status: StatusComputed})
	}

	s.Purge("0")
	assert.False(t, s.Has("0", "2024-06-01"))

	s.Retain(map[string]bool{"1": true})
	assert.False(t, s.Has("2", "2024-06-01"))
	assert.True(t, s.Has("1", "2024-06-01"))

	removed := s.Clear("2024-07-01")
	assert.Equal(t, 1, removed)
	assert.True(t, s.Has("1", "2024-06-01"))
	assert.False(t, s.Has("1", "2024-07-01"))
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := NewStore()
	s.Set("b", "2024-06-01", Entry{NDVI: ptr(0.1), ResolvedDate: "2024-06-02", Status: StatusComputed})
	s.Set("a", "2024-07-01", Entry{ResolvedDate: "2024-07-01", Status: StatusFailed})
	s.Set("a", "2024-06-01", Entry{ResolvedDate: "2024-06-01", Status: StatusNoImagery})

	records := s.Snapshot()
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].PolygonID)
	assert.Equal(t, model.Date("2024-06-01"), records[0].RequestedDate)
	assert.Equal(t, "b", records[2].PolygonID)

	restored := Restore(records)
	assert.Equal(t, s.Snapshot(), restored.Snapshot())
}

func TestStore_ResolvedDates(t *testing.T) {
	s := NewStore()
	s.Set("0", "2024-06-01", Entry{NDVI: ptr(0.4), ResolvedDate: "2024-06-03", Status: StatusComputed})
	s.Set("1", "2024-06-01", Entry{NDVI: ptr(0.5), ResolvedDate: "2024-06-01", Status: StatusComputed})
	s.Set("2", "2024-06-01", Entry{NDVI: ptr(0.6), ResolvedDate: "2024-05-30", Status: StatusComputed})
	s.Set("3", "2024-06-01", Entry{NDVI: ptr(0.7), ResolvedDate: "2024-06-03", Status: StatusComputed})

	assert.Equal(t, []model.Date{"2024-05-30", "2024-06-03"}, s.ResolvedDates("2024-06-01", []string{"0", "1", "2", "3"}))
	assert.Equal(t, []model.Date{"2024-06-03"}, s.ResolvedDates("2024-06-01", []string{"0", "1"}))
	assert.Empty(t, s.ResolvedDates("2024-06-01", []string{"1", "9"}))
}
