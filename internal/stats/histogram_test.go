package stats

import (
	"errors"
	"math"
	"testing"
)

func TestNewHistogram_InvalidRange(t *testing.T) {
	if _, err := NewHistogram(10, 10); !errors.Is(err, ErrConfiguration) {
		t.Errorf("empty range error = %v, want ErrConfiguration", err)
	}
	if _, err := NewHistogram(10, 5); !errors.Is(err, ErrConfiguration) {
		t.Errorf("inverted range error = %v, want ErrConfiguration", err)
	}
}

func TestHistogram_UniformQuantiles(t *testing.T) {
	h, err := NewHistogram(0, 6400)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	// One value per integer keeps the true quantiles exact.
	for v := 0; v < 6400; v++ {
		h.Add(float64(v))
	}
	binWidth := 6400.0 / HistogramBins

	truth := map[float64]float64{0.9: 5760, 0.99: 6336}
	for q, want := range truth {
		got := h.Quantile(q)
		if math.Abs(got-want) > binWidth {
			t.Errorf("Quantile(%v) = %v, want within %v of %v", q, got, binWidth, want)
		}
	}
}

func TestHistogram_QuantileBounds(t *testing.T) {
	h, err := NewHistogram(100, 200)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	h.Add(150)
	if got := h.Quantile(0); got != 100 {
		t.Errorf("Quantile(0) = %v, want 100", got)
	}
	if got := h.Quantile(1); got != 200 {
		t.Errorf("Quantile(1) = %v, want 200", got)
	}
}

func TestHistogram_ClampsOutOfRange(t *testing.T) {
	h, err := NewHistogram(0, 100)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	h.Add(-50)
	h.Add(5000)
	counts := h.Counts()
	if counts[0] != 1 {
		t.Errorf("low outlier should land in first bin, counts[0] = %d", counts[0])
	}
	if counts[HistogramBins-1] != 1 {
		t.Errorf("high outlier should land in last bin, counts[last] = %d", counts[HistogramBins-1])
	}
}

func TestHistogram_EmptyQuantile(t *testing.T) {
	h, err := NewHistogram(0, 100)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	if got := h.Quantile(0.9); got != 0 {
		t.Errorf("Quantile on empty histogram = %v, want 0", got)
	}
}

func TestHistogram_QuantileMonotonic(t *testing.T) {
	h, err := NewHistogram(0, 1000)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	for v := 0; v < 997; v += 7 {
		h.Add(float64(v))
	}
	prev := h.Quantile(0)
	for q := 0.05; q <= 1.0; q += 0.05 {
		cur := h.Quantile(q)
		if cur < prev {
			t.Fatalf("Quantile(%v) = %v < Quantile at previous q = %v", q, cur, prev)
		}
		prev = cur
	}
}

func TestHistogram_RestoreRoundTrip(t *testing.T) {
	h, err := NewHistogram(0, 640)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	for v := 0; v < 640; v++ {
		h.Add(float64(v))
	}
	restored, err := NewHistogram(0, 640)
	if err != nil {
		t.Fatalf("NewHistogram: %v", err)
	}
	restored.Restore(h.Counts())
	for _, q := range []float64{0.1, 0.5, 0.9, 0.99} {
		if restored.Quantile(q) != h.Quantile(q) {
			t.Errorf("Quantile(%v) differs after restore: %v vs %v", q, restored.Quantile(q), h.Quantile(q))
		}
	}
}
