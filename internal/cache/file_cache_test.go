package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
	"github.com/forest-guardian/agrosense-ndvi/internal/results"
	"github.com/forest-guardian/agrosense-ndvi/internal/session"
)

func newCache(t *testing.T) *FileCache[session.State] {
	t.Helper()
	fc := NewFileCache[session.State](t.TempDir(), "sessions")
	fc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return fc
}

func TestSetLoad(t *testing.T) {
	fc := newCache(t)
	ndvi := 0.41
	state := session.State{
		Selection: []string{"0", "2"},
		Dates:     []model.Date{"2024-06-01"},
		Results: []results.Record{{
			PolygonID:     "0",
			RequestedDate: "2024-06-01",
			Entry:         results.Entry{NDVI: &ndvi, ResolvedDate: "2024-06-03", Status: results.StatusComputed},
		}},
	}
	require.NoError(t, fc.Set("north-field", state))

	got, created, err := fc.Load("north-field")
	require.NoError(t, err)
	assert.Equal(t, state, got)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), created.UTC())

	_, err = os.Stat(filepath.Join(fc.Dir(), "north-field.json.tmp"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMissing(t *testing.T) {
	fc := newCache(t)
	_, _, err := fc.Load("nothing")
	assert.ErrorIs(t, err, os.ErrNotExist)

}

func TestLoadDetectsTampering(t *testing.T) {
	fc := newCache(t)
	require.NoError(t, fc.Set("s", session.State{Selection: []string{"1"}}))

	path := filepath.Join(fc.Dir(), "s.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(raw), `"1"`, `"9"`, 1)), 0o644))

	_, _, err = fc.Load("s")
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err = fc.Load("s")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestKeysAndDelete(t *testing.T) {
	fc := newCache(t)
	keys, err := fc.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, fc.Set("b", session.State{}))
	require.NoError(t, fc.Set("a", session.State{}))
	keys, err = fc.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, fc.Delete("a"))
	require.NoError(t, fc.Delete("a"))
	keys, err = fc.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}
