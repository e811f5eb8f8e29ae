// Package gdal reads vector formats through OGR.
package gdal

import (
	"fmt"
	"sort"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/forest-guardian/agrosense-ndvi/internal/loader"
	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

var registerOnce sync.Once

// Reader implements loader.VectorReader. Geometries are reprojected to
// WGS84 lon/lat.
type Reader struct {
	logger *zap.Logger
}

func NewReader(logger *zap.Logger) *Reader {
	registerOnce.Do(godal.RegisterAll)
	return &Reader{logger: logger}
}

func (r *Reader) ReadFeatures(path string) ([]loader.Feature, error) {
	ds, err := godal.Open(path, godal.VectorOnly(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			r.logger.Debug("gdal warning", zap.String("path", path), zap.String("msg", msg))
			return nil
		}
		return fmt.Errorf("gdal: %s", msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer ds.Close()

	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, err
	}
	defer wgs84.Close()

	var features []loader.Feature
	for _, layer := range ds.Layers() {
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}
			f, ok, err := r.convert(feat, wgs84)
			feat.Close()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if ok {
				features = append(features, f)
			}
		}
	}
	return features, nil
}

func (r *Reader) convert(feat *godal.Feature, wgs84 *godal.SpatialRef) (loader.Feature, bool, error) {
	geom := feat.Geometry()
	if geom == nil {
		return loader.Feature{}, false, nil
	}
	defer geom.Close()
	if geom.Empty() {
		return loader.Feature{}, false, nil
	}

	if sr := geom.SpatialRef(); sr != nil && !sr.IsSame(wgs84) {
		if err := geom.Reproject(wgs84); err != nil {
			return loader.Feature{}, false, fmt.Errorf("reproject: %w", err)
		}
	}

	text, err := geom.GeoJSON()
	if err != nil {
		return loader.Feature{}, false, err
	}
	g, err := geojson.UnmarshalGeometry([]byte(text))
	if err != nil {
		return loader.Feature{}, false, err
	}

	return loader.Feature{Properties: fieldProperties(feat.Fields()), Geometry: g.Geometry()}, true, nil
}

// fieldProperties sorts attributes by name; OGR field maps carry no order.
func fieldProperties(fields map[string]godal.Field) model.Properties {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var props model.Properties
	for _, name := range names {
		field := fields[name]
		var v model.Value
		switch field.Type() {
		case godal.FTInt, godal.FTInt64:
			v = model.NumberValue(float64(field.Int()))
		case godal.FTReal:
			v = model.NumberValue(field.Float())
		default:
			if s := field.String(); s != "" {
				v = model.StringValue(s)
			}
		}
		props = props.Set(name, v)
	}
	return props
}
