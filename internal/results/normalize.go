package results

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CoerceFloat turns loosely typed numeric values from the completion
// capability into a float64. Unparseable input defaults to 0.
func CoerceFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// NormalizeSentiment maps a raw sentiment value onto [-1,1]. Values on a
// unit scale ([0,1]) are remapped to (v*2)-1; everything clamps to [-1,1].
func NormalizeSentiment(value any) float64 {
	v := CoerceFloat(value)
	if v >= 0 && v <= 1 {
		v = (v * 2) - 1
	}
	return clampSigned(v)
}

// NormalizeFrequency clamps a raw frequency value to [0,1] with the same
// string coercion as sentiment.
func NormalizeFrequency(value any) float64 {
	v := CoerceFloat(value)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
