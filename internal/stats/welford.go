package stats

import "math"

// Welford accumulates an exact online mean and variance.
type Welford struct {
	N    int64   `json:"n"`
	Mean float64 `json:"mean"`
	M2   float64 `json:"m2"`
}

// Update folds one observation into the running estimate.
func (w *Welford) Update(value float64) {
	w.N++
	delta := value - w.Mean
	w.Mean += delta / float64(w.N)
	delta2 := value - w.Mean
	w.M2 += delta * delta2
}

// Stddev returns the sample standard deviation, or 0 when fewer than two
// observations exist.
func (w *Welford) Stddev() float64 {
	if w.N < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.N-1))
}
