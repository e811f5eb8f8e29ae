package gdal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const parcelsKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>Parcel 12</name>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        30,37.5 30.01,37.5 30.01,37.51 30,37.51 30,37.5
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark>
    <Placemark>
      <name>Pump</name>
      <Point><coordinates>30.2,37.7</coordinates></Point>
    </Placemark>
  </Document>
</kml>`

func TestReadKML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels.kml")
	require.NoError(t, os.WriteFile(path, []byte(parcelsKML), 0o644))

	features, err := NewReader(zap.NewNop()).ReadFeatures(path)
	require.NoError(t, err)
	require.Len(t, features, 2)

	poly, ok := features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.InDelta(t, 30, poly.Bound().Min[0], 1e-9)
	assert.InDelta(t, 37.51, poly.Bound().Max[1], 1e-9)

	name, ok := features[0].Properties.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "Parcel 12", name.String())

	_, isPoint := features[1].Geometry.(orb.Point)
	assert.True(t, isPoint)
}

const placemarksWithoutGeometry = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark><name>Note</name></Placemark>
    <Placemark>
      <name>Parcel 3</name>
      <Polygon><outerBoundaryIs><LinearRing><coordinates>
        31,38 31.01,38 31.01,38.01 31,38.01 31,38
      </coordinates></LinearRing></outerBoundaryIs></Polygon>
    </Placemark>
  </Document>
</kml>`

func TestReadSkipsFeaturesWithoutGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.kml")
	require.NoError(t, os.WriteFile(path, []byte(placemarksWithoutGeometry), 0o644))

	r := NewReader(zap.NewNop())
	for i := 0; i < 3; i++ {
		features, err := r.ReadFeatures(path)
		require.NoError(t, err)
		require.Len(t, features, 1)
		name, _ := features[0].Properties.Get("Name")
		assert.Equal(t, "Parcel 3", name.String())
	}
}
