package stats

import "fmt"

// AccumulatorConfig sizes a gap accumulator. Zero values fall back to
// the package defaults.
type AccumulatorConfig struct {
	RingCapacity int
	HistogramMin float64
	HistogramMax float64
	EMAHalfLife  int
}

// Defaults for accumulator sizing.
const (
	DefaultRingCapacity = 50
	DefaultHistogramMin = 0
	DefaultHistogramMax = 10000
	DefaultEMAHalfLife  = 20
)

func (c AccumulatorConfig) withDefaults() AccumulatorConfig {
	if c.RingCapacity == 0 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.HistogramMin == 0 && c.HistogramMax == 0 {
		c.HistogramMin = DefaultHistogramMin
		c.HistogramMax = DefaultHistogramMax
	}
	if c.EMAHalfLife == 0 {
		c.EMAHalfLife = DefaultEMAHalfLife
	}
	return c
}

// GapAccumulator tracks online gap statistics for one multiplier bucket:
// exact mean/variance, bounded recent-gap history, approximate tail
// quantiles, and a smoothed rate.
type GapAccumulator struct {
	count        int64
	lastSequence int64
	hasSequence  bool
	welford      Welford
	recent       *Ring
	hist         *Histogram
	alpha        float64
	ema          float64
	emaInit      bool
}

// GapSnapshot is a point-in-time read of accumulator state. LastGap, P90,
// P99, and EMA are 0 until at least one gap has been observed.
type GapSnapshot struct {
	Count        int64   `json:"count"`
	LastSequence int64   `json:"last_sequence"`
	MeanGap      float64 `json:"mean_gap"`
	StdGap       float64 `json:"std_gap"`
	LastGap      int64   `json:"last_gap"`
	P90          float64 `json:"p90"`
	P99          float64 `json:"p99"`
	EMA          float64 `json:"ema"`
	EtaObserved  float64 `json:"eta_observed"`
}

// NewGapAccumulator constructs an accumulator, failing on non-positive
// ring capacity, histogram range, or EMA half-life.
func NewGapAccumulator(cfg AccumulatorConfig) (*GapAccumulator, error) {
	cfg = cfg.withDefaults()
	if cfg.EMAHalfLife <= 0 {
		return nil, fmt.Errorf("%w: EMA half-life must be positive, got %d", ErrConfiguration, cfg.EMAHalfLife)
	}
	ring, err := NewRing(cfg.RingCapacity)
	if err != nil {
		return nil, err
	}
	hist, err := NewHistogram(cfg.HistogramMin, cfg.HistogramMax)
	if err != nil {
		return nil, err
	}
	return &GapAccumulator{
		recent: ring,
		hist:   hist,
		alpha:  2.0 / float64(1+cfg.EMAHalfLife),
	}, nil
}

// Observe folds one gap into every estimator. Gaps must be >= 0 since
// sequence numbers are non-decreasing in processing order.
func (a *GapAccumulator) Observe(gap int64) error {
	if gap < 0 {
		return fmt.Errorf("%w: negative gap %d", ErrInvariant, gap)
	}
	a.count++
	a.welford.Update(float64(gap))
	a.recent.Push(gap)
	a.hist.Add(float64(gap))
	if a.emaInit {
		a.ema = a.alpha*float64(gap) + (1-a.alpha)*a.ema
	} else {
		a.ema = float64(gap)
		a.emaInit = true
	}
	return nil
}

// Hit records an event at sequence for this bucket: the first hit only
// anchors lastSequence, every later hit observes the gap since the
// previous hit.
func (a *GapAccumulator) Hit(sequence int64) error {
	if a.hasSequence {
		if err := a.Observe(sequence - a.lastSequence); err != nil {
			return err
		}
	}
	a.lastSequence = sequence
	a.hasSequence = true
	return nil
}

// Count reports how many gaps have been observed.
func (a *GapAccumulator) Count() int64 {
	return a.count
}

// Snapshot reads the current statistics.
func (a *GapAccumulator) Snapshot() GapSnapshot {
	snap := GapSnapshot{
		Count:   a.count,
		MeanGap: a.welford.Mean,
		StdGap:  a.welford.Stddev(),
	}
	if a.hasSequence {
		snap.LastSequence = a.lastSequence
	}
	if last, ok := a.recent.Last(); ok {
		snap.LastGap = last
	}
	if a.count > 0 {
		snap.P90 = a.hist.Quantile(0.90)
		snap.P99 = a.hist.Quantile(0.99)
		snap.EMA = a.ema
		snap.EtaObserved = float64(a.lastSequence) + a.welford.Mean
	}
	return snap
}

// RecentGaps returns the retained gap history, oldest first.
func (a *GapAccumulator) RecentGaps() []int64 {
	return a.recent.Values()
}

// AccumulatorState is the serializable checkpoint of an accumulator.
type AccumulatorState struct {
	Count          int64   `json:"count"`
	LastSequence   int64   `json:"last_sequence"`
	HasSequence    bool    `json:"has_sequence"`
	Welford        Welford `json:"welford"`
	RecentGaps     []int64 `json:"recent_gaps"`
	HistogramBins  []int64 `json:"histogram_bins"`
	EMA            float64 `json:"ema"`
	EMAInitialized bool    `json:"ema_initialized"`
}

// State captures a checkpoint for persistence.
func (a *GapAccumulator) State() AccumulatorState {
	return AccumulatorState{
		Count:          a.count,
		LastSequence:   a.lastSequence,
		HasSequence:    a.hasSequence,
		Welford:        a.welford,
		RecentGaps:     a.recent.Values(),
		HistogramBins:  a.hist.Counts(),
		EMA:            a.ema,
		EMAInitialized: a.emaInit,
	}
}

// RestoreState rebuilds the accumulator from a checkpoint.
func (a *GapAccumulator) RestoreState(st AccumulatorState) {
	a.count = st.Count
	a.lastSequence = st.LastSequence
	a.hasSequence = st.HasSequence
	a.welford = st.Welford
	a.recent.Restore(st.RecentGaps)
	a.hist.Restore(st.HistogramBins)
	a.ema = st.EMA
	a.emaInit = st.EMAInitialized
}
