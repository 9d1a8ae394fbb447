package cleaning

import (
	"math"
	"sort"
)

const (
	// OutlierThreshold is the modified z-score above which a reading is rejected
	OutlierThreshold = 10.0

	// madScale converts a MAD to a standard-normal comparable spread
	madScale = 0.6745
)

// Median returns the median of values, averaging the two middle elements for
// even lengths. It returns NaN for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ModifiedZScores returns 0.6745*|x-median|/MAD for every value.
//
// A zero MAD is not guarded: any nonzero deviation scores +Inf. A zero
// deviation scores 0 even when the MAD is 0.
func ModifiedZScores(values []float64) []float64 {
	scores := make([]float64, len(values))
	if len(values) == 0 {
		return scores
	}

	median := Median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - median)
	}
	mad := Median(deviations)

	for i, d := range deviations {
		if d == 0 {
			scores[i] = 0
			continue
		}
		scores[i] = madScale * d / mad
	}
	return scores
}

// OutlierMask flags values whose modified z-score exceeds OutlierThreshold.
// The mask always has the same length as values; true means exclude.
func OutlierMask(values []float64) []bool {
	scores := ModifiedZScores(values)
	mask := make([]bool, len(values))
	for i, s := range scores {
		mask[i] = s > OutlierThreshold
	}
	return mask
}
