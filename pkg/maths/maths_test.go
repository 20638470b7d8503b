package maths_test

import (
	"math"
	"testing"

	"vidfetch/pkg/maths"
	"vidfetch/pkg/ptr"
)

func TestRoundFloat64ToInt(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{in: 41.6, want: 42},
		{in: 42.4, want: 42},
		{in: 0, want: 0},
		{in: math.NaN(), want: 0},
		{in: math.Inf(1), want: 0},
	}

	for _, tt := range tests {
		if got := maths.RoundFloat64ToInt(tt.in); got != tt.want {
			t.Errorf("RoundFloat64ToInt(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRoundFloat64PtrToInt(t *testing.T) {
	if got := maths.RoundFloat64PtrToInt(nil); got != nil {
		t.Errorf("RoundFloat64PtrToInt(nil) = %v, want nil", *got)
	}

	if got := maths.RoundFloat64PtrToInt(ptr.Of(math.NaN())); got != nil {
		t.Errorf("RoundFloat64PtrToInt(NaN) = %v, want nil", *got)
	}

	got := maths.RoundFloat64PtrToInt(ptr.Of(41.7))
	if got == nil || *got != 42 {
		t.Errorf("RoundFloat64PtrToInt(41.7) = %v, want 42", got)
	}
}
