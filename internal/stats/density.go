package stats

import (
	"fmt"
	"sort"
)

// DensityTracker counts event occupancy per fixed-width sequence bucket,
// for visualizing event concentration along the nonce axis. The bucket
// key space is a map, not an array: it grows with stream length, which
// is bounded by the caller's retention policy.
type DensityTracker struct {
	bucketSize int64
	counts     map[int64]int64
	maxCount   int64
}

// DensityBucket is one normalized occupancy entry.
type DensityBucket struct {
	Index      int64   `json:"index"`
	Count      int64   `json:"count"`
	Normalized float64 `json:"normalized"`
}

// NewDensityTracker creates a tracker with the given bucket width.
func NewDensityTracker(bucketSize int64) (*DensityTracker, error) {
	if bucketSize <= 0 {
		return nil, fmt.Errorf("%w: density bucket size must be positive, got %d", ErrConfiguration, bucketSize)
	}
	return &DensityTracker{
		bucketSize: bucketSize,
		counts:     make(map[int64]int64),
	}, nil
}

// Increment counts an event at the given sequence position.
func (d *DensityTracker) Increment(sequence int64) {
	idx := sequence / d.bucketSize
	d.counts[idx]++
	if d.counts[idx] > d.maxCount {
		d.maxCount = d.counts[idx]
	}
}

// Normalized returns (bucket index, count/maxCount) pairs sorted by
// index. Pure function of current state; safe to call repeatedly.
func (d *DensityTracker) Normalized() []DensityBucket {
	out := make([]DensityBucket, 0, len(d.counts))
	for idx, c := range d.counts {
		out = append(out, DensityBucket{
			Index:      idx,
			Count:      c,
			Normalized: float64(c) / float64(d.maxCount),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Resize changes the bucket width and clears all state: prior counts are
// not remappable without the raw event log.
func (d *DensityTracker) Resize(bucketSize int64) error {
	if bucketSize <= 0 {
		return fmt.Errorf("%w: density bucket size must be positive, got %d", ErrConfiguration, bucketSize)
	}
	d.bucketSize = bucketSize
	d.counts = make(map[int64]int64)
	d.maxCount = 0
	return nil
}

// BucketSize reports the current bucket width.
func (d *DensityTracker) BucketSize() int64 {
	return d.bucketSize
}
