package stats

import (
	"fmt"
	"time"
)

// WindowMode selects how a rolling window bounds its samples.
type WindowMode string

const (
	WindowTime  WindowMode = "time"
	WindowCount WindowMode = "count"
)

type rollingSample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// RollingWindow maintains a short-horizon view of a numeric series,
// bounded either by wall clock (horizon seconds) or by sample count.
// Comparing its mean against an all-time baseline via z-score flags
// regime shifts (hot/cold streaks).
type RollingWindow struct {
	mode    WindowMode
	horizon int64
	samples []rollingSample
}

// RollingStats summarizes the current window. All fields are 0 when the
// window is empty.
type RollingStats struct {
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// NewRollingWindow creates a window. For WindowTime the horizon is in
// seconds; for WindowCount it is a sample count. Horizon must be positive.
func NewRollingWindow(mode WindowMode, horizon int64) (*RollingWindow, error) {
	if mode != WindowTime && mode != WindowCount {
		return nil, fmt.Errorf("%w: unknown window mode %q", ErrConfiguration, mode)
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: window horizon must be positive, got %d", ErrConfiguration, horizon)
	}
	return &RollingWindow{mode: mode, horizon: horizon}, nil
}

// Observe appends a sample, then prunes the window to its horizon.
func (r *RollingWindow) Observe(value float64, at time.Time) {
	r.samples = append(r.samples, rollingSample{Value: value, At: at})
	r.prune(at)
}

func (r *RollingWindow) prune(now time.Time) {
	switch r.mode {
	case WindowTime:
		cutoff := now.Add(-time.Duration(r.horizon) * time.Second)
		firstKept := 0
		for firstKept < len(r.samples) && r.samples[firstKept].At.Before(cutoff) {
			firstKept++
		}
		if firstKept > 0 {
			r.samples = append(r.samples[:0], r.samples[firstKept:]...)
		}
	case WindowCount:
		if int64(len(r.samples)) > r.horizon {
			excess := int64(len(r.samples)) - r.horizon
			r.samples = append(r.samples[:0], r.samples[excess:]...)
		}
	}
}

// Stats summarizes the current window.
func (r *RollingWindow) Stats() RollingStats {
	st := RollingStats{Count: len(r.samples)}
	if len(r.samples) == 0 {
		return st
	}
	var sum float64
	max := r.samples[0].Value
	for _, s := range r.samples {
		sum += s.Value
		if s.Value > max {
			max = s.Value
		}
	}
	st.Mean = sum / float64(len(r.samples))
	st.Max = max
	return st
}

// HitRate reports samples per minute. Time mode divides by the horizon;
// count mode divides by the actual span between oldest and newest sample
// (0 with fewer than two samples or a non-positive span).
func (r *RollingWindow) HitRate() float64 {
	n := len(r.samples)
	switch r.mode {
	case WindowTime:
		return float64(n) * 60.0 / float64(r.horizon)
	case WindowCount:
		if n < 2 {
			return 0
		}
		span := r.samples[n-1].At.Sub(r.samples[0].At).Seconds()
		if span <= 0 {
			return 0
		}
		return float64(n) * 60.0 / span
	}
	return 0
}

// Deviation returns the z-score of the window mean against an all-time
// baseline, or 0 when the window is empty or the baseline stddev is not
// positive. Callers flag a regime shift when |deviation| reaches their
// threshold.
func (r *RollingWindow) Deviation(baselineMean, baselineStddev float64) float64 {
	if len(r.samples) == 0 || baselineStddev <= 0 {
		return 0
	}
	return (r.Stats().Mean - baselineMean) / baselineStddev
}
