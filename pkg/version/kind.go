package version

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"vaultcore/pkg/schema"
)

// normalize converts v into the value Decode produces for kind, so a stored
// value compares Identical after a snapshot round trip.
func normalize(kind schema.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case schema.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.KindInt:
		return toInt64(v)
	case schema.KindFloat:
		return toFloat64(v)
	case schema.KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.KindBytes:
		if b, ok := v.([]byte); ok {
			if b == nil {
				return nil, nil
			}
			return b, nil
		}
	case schema.KindTime:
		if t, ok := v.(time.Time); ok {
			return t.Round(0), nil
		}
	default:
		return canonicalJSON(v)
	}
	return nil, fmt.Errorf("%T is not %s", v, kind)
}

func toInt64(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", n)
		}
		return int64(n), nil
	}
	return nil, fmt.Errorf("%T is not %s", v, schema.KindInt)
}

func toFloat64(v any) (any, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}
	i, err := toInt64(v)
	if err == nil {
		return float64(i.(int64)), nil
	}
	if u, ok := v.(uint64); ok {
		return float64(u), nil
	}
	if u, ok := v.(uint); ok {
		return float64(u), nil
	}
	return nil, fmt.Errorf("%T is not %s", v, schema.KindFloat)
}

// canonicalJSON reduces v to what decodeAny yields for its encoding.
func canonicalJSON(v any) (any, error) {
	switch v.(type) {
	case string, bool:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeAny(raw)
}

// decodeAny decodes raw keeping integral numbers as int64 and the rest as
// float64.
func decodeAny(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return fromNumbers(v)
}

func fromNumbers(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	case map[string]any:
		for k, e := range x {
			n, err := fromNumbers(e)
			if err != nil {
				return nil, err
			}
			x[k] = n
		}
	case []any:
		for i, e := range x {
			n, err := fromNumbers(e)
			if err != nil {
				return nil, err
			}
			x[i] = n
		}
	}
	return v, nil
}
