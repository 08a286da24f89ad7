package stats

import "fmt"

// HistogramBins is the fixed bin count for gap histograms.
const HistogramBins = 64

// Histogram estimates tail quantiles from a fixed-bin counter array over
// a closed [min, max] range. Values outside the range are clamped before
// binning, so estimates stay bounded-memory over unbounded history.
type Histogram struct {
	min    float64
	max    float64
	width  float64
	counts []int64
	total  int64
}

// NewHistogram creates a histogram over [min, max] with HistogramBins bins.
func NewHistogram(min, max float64) (*Histogram, error) {
	if max <= min {
		return nil, fmt.Errorf("%w: histogram range [%g, %g] must be positive", ErrConfiguration, min, max)
	}
	return &Histogram{
		min:    min,
		max:    max,
		width:  (max - min) / HistogramBins,
		counts: make([]int64, HistogramBins),
	}, nil
}

func (h *Histogram) binIndex(value float64) int {
	if value < h.min {
		value = h.min
	}
	if value > h.max {
		value = h.max
	}
	idx := int((value - h.min) / h.width)
	if idx >= HistogramBins {
		idx = HistogramBins - 1
	}
	return idx
}

// Add records one observation.
func (h *Histogram) Add(value float64) {
	h.counts[h.binIndex(value)]++
	h.total++
}

// Quantile returns the approximate q-quantile as the midpoint of the bin
// where the cumulative count reaches rank q*total. Monotonic in q.
// Quantile(0) returns min and Quantile(1) returns max; an empty histogram
// returns 0.
func (h *Histogram) Quantile(q float64) float64 {
	if h.total == 0 {
		return 0
	}
	if q <= 0 {
		return h.min
	}
	if q >= 1 {
		return h.max
	}
	target := q * float64(h.total)
	var cum float64
	for i, c := range h.counts {
		cum += float64(c)
		if cum >= target {
			return h.min + (float64(i)+0.5)*h.width
		}
	}
	return h.max
}

// Counts returns a copy of the per-bin counters, for checkpointing.
func (h *Histogram) Counts() []int64 {
	out := make([]int64, len(h.counts))
	copy(out, h.counts)
	return out
}

// Restore rebuilds the counters from a checkpoint. Counts shorter or
// longer than the bin count are ignored.
func (h *Histogram) Restore(counts []int64) {
	if len(counts) != len(h.counts) {
		return
	}
	h.total = 0
	for i, c := range counts {
		h.counts[i] = c
		h.total += c
	}
}
