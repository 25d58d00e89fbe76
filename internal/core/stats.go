package core

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// FieldSummary condenses one output field's distribution for the run log
type FieldSummary struct {
	Mean   float64
	StdDev float64
	Min    uint64
	Max    uint64
}

// Summarize computes the distribution summary of one field.
func Summarize(field []uint64) FieldSummary {
	if len(field) == 0 {
		return FieldSummary{}
	}

	vals := make([]float64, len(field))
	lo, hi := field[0], field[0]
	for i, v := range field {
		vals[i] = float64(v)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	mean, std := stat.MeanStdDev(vals, nil)
	if math.IsNaN(std) {
		std = 0 // single-sample field
	}

	return FieldSummary{Mean: mean, StdDev: std, Min: lo, Max: hi}
}
