package indicator

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Number is any numeric type the rolling statistics helpers accept.
// Grounded on the teacher's internal/utils/norm.Number constraint.
type Number interface {
	constraints.Integer | constraints.Float
}

// MeanAndPopStdDev returns the arithmetic mean and population standard
// deviation of s, generalized from the teacher's norm.ZScore (which
// computed the same mean/variance pair internally, then discarded them
// after producing a single z-score) into a reusable rolling-window
// primitive for Bollinger().
func MeanAndPopStdDev[V Number](s []V) (mean, stdDev float64) {
	n := len(s)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range s {
		sum += float64(v)
	}
	mean = sum / float64(n)

	var sumSqr float64
	for _, v := range s {
		diff := float64(v) - mean
		sumSqr += diff * diff
	}
	variance := sumSqr / float64(n)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
