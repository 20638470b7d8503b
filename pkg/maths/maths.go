// Package maths provides numeric helpers for values reported by external tools.
package maths

import (
	"math"
)

// RoundFloat64ToInt rounds v to the nearest int. NaN and infinities become 0.
func RoundFloat64ToInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return int(math.Round(v))
}

// RoundFloat64PtrToInt rounds *v to the nearest int, keeping nil as nil.
func RoundFloat64PtrToInt(v *float64) *int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}

	rounded := int(math.Round(*v))

	return &rounded
}
