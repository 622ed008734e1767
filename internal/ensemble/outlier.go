package ensemble

import (
	"math"
	"sort"
)

// DefaultOutlierZScore is the modified z-score above which a potential
// energy marks its conformer as an outlier.
const DefaultOutlierZScore = 3.5

// DetectOutliers flags values whose modified z-score,
// 0.6745*(x-median)/MAD, exceeds the threshold. The score is signed, so
// only the high tail is flagged. Fewer than two values, or a zero median
// absolute deviation, yields no outliers.
func DetectOutliers(values []float64, threshold float64) []bool {
	out := make([]bool, len(values))
	if len(values) < 2 {
		return out
	}
	if threshold <= 0 {
		threshold = DefaultOutlierZScore
	}

	med := median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	mad := median(dev)
	if mad == 0 {
		return out
	}
	for i, v := range values {
		if 0.6745*(v-med)/mad > threshold {
			out[i] = true
		}
	}
	return out
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
