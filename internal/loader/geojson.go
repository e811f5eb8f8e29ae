package loader

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/forest-guardian/agrosense-ndvi/internal/model"
)

// DecodeGeoJSON reads a FeatureCollection or a single Feature. Property order
// follows the document; orb's decoded property map does not keep it.
func DecodeGeoJSON(data []byte) ([]Feature, error) {
	var head struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	raws := head.Features
	switch head.Type {
	case "FeatureCollection":
	case "Feature":
		raws = []json.RawMessage{data}
	default:
		return nil, fmt.Errorf("invalid GeoJSON: unsupported type %q", head.Type)
	}

	features := make([]Feature, 0, len(raws))
	for i, raw := range raws {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid GeoJSON feature %d: %w", i, err)
		}
		if f.Geometry == nil {
			continue
		}

		var body struct {
			Properties json.RawMessage `json:"properties"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("invalid GeoJSON feature %d: %w", i, err)
		}
		props, err := orderedProperties(body.Properties)
		if err != nil {
			return nil, fmt.Errorf("invalid properties of feature %d: %w", i, err)
		}
		features = append(features, Feature{Properties: props, Geometry: f.Geometry})
	}
	return features, nil
}

func orderedProperties(raw json.RawMessage) (model.Properties, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil {
		return nil, err
	} else if tok != json.Delim('{') {
		return nil, fmt.Errorf("properties must be an object")
	}

	var props model.Properties
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		props = props.Set(key, model.ValueOf(v))
	}
	return props, nil
}
