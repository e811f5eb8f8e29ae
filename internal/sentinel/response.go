package sentinel

import (
	"bytes"
	"encoding/json"
	"math"
)

// Shape tells which of the known layouts an aggregate_spatial result used.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeFlat is a sequence with one element per submitted geometry:
	// [v, ...] or [[v], ...].
	ShapeFlat
	// ShapeTimeKeyed maps a timestamp to such a sequence:
	// {"2024-06-03T00:00:00Z": [[v], ...]}.
	ShapeTimeKeyed
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeTimeKeyed:
		return "time-keyed"
	}
	return "unknown"
}

// Aggregation is a decoded result: one raw element per geometry, in the order
// the geometries were submitted.
type Aggregation struct {
	Shape     Shape
	Timestamp string
	Elements  []json.RawMessage
}

// DecodeAggregation classifies raw and extracts the per-geometry sequence.
// A time-keyed result uses its first timestamp in document order. Anything
// else decodes to ShapeUnknown with no elements; it never fails.
func DecodeAggregation(raw []byte) Aggregation {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Aggregation{}
	}

	switch raw[0] {
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(raw, &elements); err != nil {
			return Aggregation{}
		}
		return Aggregation{Shape: ShapeFlat, Elements: elements}
	case '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		if _, err := dec.Token(); err != nil {
			return Aggregation{}
		}
		if !dec.More() {
			return Aggregation{}
		}
		key, err := dec.Token()
		if err != nil {
			return Aggregation{}
		}
		timestamp, ok := key.(string)
		if !ok {
			return Aggregation{}
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return Aggregation{}
		}
		var elements []json.RawMessage
		if err := json.Unmarshal(value, &elements); err != nil {
			return Aggregation{}
		}
		return Aggregation{Shape: ShapeTimeKeyed, Timestamp: timestamp, Elements: elements}
	}
	return Aggregation{}
}

// Value extracts the NDVI of the i-th element: the first numeric leaf that is
// not a nodata sentinel, rounded to 3 decimals, or nil when missing,
// non-numeric or outside [-1, 1].
func (a Aggregation) Value(i int) *float64 {
	if i < 0 || i >= len(a.Elements) {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(a.Elements[i], &v); err != nil {
		return nil
	}
	f, ok := firstNumber(v)
	if !ok || math.IsNaN(f) || f < -1 || f > 1 {
		return nil
	}
	rounded := math.Round(f*1000) / 1000
	return &rounded
}

// nodataMagnitude bounds plausible band values; larger numbers inside an
// element are nodata sentinels such as -9999 and are skipped.
const nodataMagnitude = 10

func firstNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.Abs(t) > nodataMagnitude {
			return 0, false
		}
		return t, true
	case []interface{}:
		for _, item := range t {
			if f, ok := firstNumber(item); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// Map assigns the i-th value to ids[i]. Every id is present in the result.
func (a Aggregation) Map(ids []string) map[string]*float64 {
	out := make(map[string]*float64, len(ids))
	for i, id := range ids {
		out[id] = a.Value(i)
	}
	return out
}
