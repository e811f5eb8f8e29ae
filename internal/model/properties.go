package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type ValueKind int

const (
	KindAbsent ValueKind = iota
	KindString
	KindNumber
)

// Value is a property value: a string, a number or nothing.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func AbsentValue() Value          { return Value{} }

// ValueOf converts a decoded JSON / vector attribute into a Value. Booleans
// become strings, nested structures their JSON text.
func ValueOf(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return AbsentValue()
	case string:
		return StringValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return NumberValue(f)
		}
		return StringValue(t.String())
	case bool:
		return StringValue(strconv.FormatBool(t))
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return StringValue(fmt.Sprint(t))
		}
		return StringValue(string(raw))
	}
}

func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// String renders the value for display; absent renders empty.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return ""
}

type Property struct {
	Key   string
	Value Value
}

// Properties keeps attributes in their source order. Keys are not guaranteed
// to be consistent across polygons.
type Properties []Property

func (p Properties) Get(key string) (Value, bool) {
	for _, prop := range p {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return AbsentValue(), false
}

// Set replaces the value of key or appends it.
func (p Properties) Set(key string, v Value) Properties {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = v
			return p
		}
	}
	return append(p, Property{Key: key, Value: v})
}

func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for _, prop := range p {
		keys = append(keys, prop.Key)
	}
	return keys
}
