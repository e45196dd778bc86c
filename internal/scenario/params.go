package scenario

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Parameters arrive from JSON (float64, json.Number), YAML (int) or form
// input (strings), so every numeric read goes through numberValue.

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := numberValue(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func intSetParam(params map[string]any, key string) map[int]struct{} {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	out := make(map[int]struct{})
	add := func(x any) {
		if f, ok := numberValue(x); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			out[int(math.Round(f))] = struct{}{}
		}
	}
	switch list := v.(type) {
	case []any:
		for _, x := range list {
			add(x)
		}
	case []int:
		for _, x := range list {
			add(x)
		}
	case []float64:
		for _, x := range list {
			add(x)
		}
	default:
		add(v)
	}
	return out
}
