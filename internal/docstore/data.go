package docstore

import (
	"time"
)

// Data is a document body. Values are strings, float64/int numbers, bools,
// time.Time, nested Data (or map[string]any) and []any.
type Data map[string]any

// Clone returns a deep copy so callers can never alias stored state.
func (d Data) Clone() Data {
	if d == nil {
		return nil
	}

	out := make(Data, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}

	return out
}

// CloneValue deep-copies a single field value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case Data:
		return t.Clone()
	case map[string]any:
		return Data(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}

		return out
	}

	return v
}

// Compact drops nil values at every level. Stores reject unset fields, and a
// missing key is not the same thing as a stored null.
func (d Data) Compact() Data {
	out := make(Data, len(d))

	for k, v := range d {
		if v == nil {
			continue
		}

		switch t := v.(type) {
		case Data:
			out[k] = t.Compact()
		case map[string]any:
			out[k] = Data(t).Compact()
		case []any:
			items := make([]any, 0, len(t))
			for _, e := range t {
				if e == nil {
					continue
				}

				if m, ok := AsMap(e); ok {
					e = m.Compact()
				}

				items = append(items, e)
			}

			out[k] = items
		default:
			out[k] = v
		}
	}

	return out
}

type increment struct {
	delta float64
}

// Increment marks a field for an atomic server-side add of delta.
func Increment(delta float64) any {
	return increment{delta: delta}
}

// IncrementDelta reports whether v was built with Increment.
func IncrementDelta(v any) (float64, bool) {
	inc, ok := v.(increment)
	return inc.delta, ok
}

// SplitIncrements separates plain field values from increments.
func SplitIncrements(d Data) (set Data, inc map[string]float64) {
	set = make(Data, len(d))
	inc = make(map[string]float64)

	for k, v := range d {
		if delta, ok := IncrementDelta(v); ok {
			inc[k] = delta
			continue
		}

		set[k] = v
	}

	return set, inc
}

func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsFloat converts any numeric representation a backend may return.
func AsFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	}

	return 0
}

// AsTime accepts native times and RFC 3339 strings.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}

		return parsed, true
	}

	return time.Time{}, false
}

func AsMap(v any) (Data, bool) {
	switch m := v.(type) {
	case Data:
		return m, true
	case map[string]any:
		return Data(m), true
	}

	return nil, false
}

func AsSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
