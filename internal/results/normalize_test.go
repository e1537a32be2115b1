package results

import (
	"encoding/json"
	"testing"
)

func TestCoerceFloat(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  float64
	}{
		{"float64", 0.75, 0.75},
		{"int", 2, 2},
		{"json number", json.Number("0.4"), 0.4},
		{"string", "0.8", 0.8},
		{"padded string", "  -0.3 ", -0.3},
		{"garbage string", "very positive", 0},
		{"bool", true, 0},
		{"nil", nil, 0},
	}
	for _, tc := range cases {
		if got := CoerceFloat(tc.value); got != tc.want {
			t.Errorf("%s: CoerceFloat(%v) = %f, want %f", tc.name, tc.value, got, tc.want)
		}
	}
}

func TestNormalizeSentiment(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  float64
	}{
		{"unit midpoint", 0.5, 0},
		{"unit high", 1.0, 1},
		{"unit low", 0.0, -1},
		{"already signed", -0.2, -0.2},
		{"string signed", "-0.2", -0.2},
		{"above range", 2.0, 1},
		{"below range", -3.0, -1},
		{"garbage remaps like zero", "n/a", -1},
	}
	for _, tc := range cases {
		if got := NormalizeSentiment(tc.value); got != tc.want {
			t.Errorf("%s: NormalizeSentiment(%v) = %f, want %f", tc.name, tc.value, got, tc.want)
		}
	}
}

func TestNormalizeSentimentFixedPoints(t *testing.T) {
	// Values outside the unit interval pass through the remap untouched, so
	// re-normalizing them is a no-op.
	for _, v := range []float64{-1, -0.5, -0.01, 1.5, 8} {
		once := NormalizeSentiment(v)
		if once >= 0 && once <= 1 {
			continue
		}
		if again := NormalizeSentiment(once); again != once {
			t.Errorf("NormalizeSentiment not stable at %f: %f then %f", v, once, again)
		}
	}
}

func TestNormalizeFrequency(t *testing.T) {
	cases := []struct {
		value any
		want  float64
	}{
		{0.4, 0.4},
		{1.4, 1},
		{-0.1, 0},
		{"0.9", 0.9},
		{"often", 0},
	}
	for _, tc := range cases {
		if got := NormalizeFrequency(tc.value); got != tc.want {
			t.Errorf("NormalizeFrequency(%v) = %f, want %f", tc.value, got, tc.want)
		}
	}
}
