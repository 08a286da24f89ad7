// Package core owns per-stream sessions: the accumulator set, density and
// rolling trackers, gap computation, and alert evaluation for one stream.
package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/alerts"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/stats"
)

// Config sizes the per-stream statistics components.
type Config struct {
	Accumulator        stats.AccumulatorConfig
	DensityBucketSize  int64
	RollingMode        stats.WindowMode
	RollingHorizon     int64
	Cooldown           time.Duration
	DeviationThreshold float64
}

// Defaults for session sizing.
const (
	DefaultDensityBucketSize  = 1000
	DefaultRollingHorizon     = 300
	DefaultDeviationThreshold = 2.0
)

func (c Config) withDefaults() Config {
	if c.DensityBucketSize == 0 {
		c.DensityBucketSize = DefaultDensityBucketSize
	}
	if c.RollingMode == "" {
		c.RollingMode = stats.WindowTime
	}
	if c.RollingHorizon == 0 {
		c.RollingHorizon = DefaultRollingHorizon
	}
	if c.DeviationThreshold == 0 {
		c.DeviationThreshold = DefaultDeviationThreshold
	}
	return c
}

// Session holds all mutable statistics state for one stream. State is
// fully isolated from other sessions; the internal mutex only serializes
// callers of the same session.
type Session struct {
	mu sync.Mutex

	streamID     string
	cfg          Config
	accumulators map[float64]*stats.GapAccumulator
	gaps         *stats.GapComputer
	density      *stats.DensityTracker
	rolling      *stats.RollingWindow
	baseline     stats.Welford
	alerts       *alerts.Engine
	lastSequence int64
}

// RollingSnapshot augments window stats with the derived rate and
// regime-shift signal.
type RollingSnapshot struct {
	Stats       stats.RollingStats `json:"stats"`
	HitRate     float64            `json:"hit_rate"`
	Deviation   float64            `json:"deviation"`
	RegimeShift bool               `json:"regime_shift"`
}

// IngestResult is returned to the caller after a batch is applied.
type IngestResult struct {
	Applied      int                          `json:"applied"`
	Accumulators map[string]stats.GapSnapshot `json:"accumulators"`
	Density      []stats.DensityBucket        `json:"density"`
	Rolling      RollingSnapshot              `json:"rolling"`
	Alerts       []models.AlertEvent          `json:"alerts"`
}

// NewSession creates a session for one stream.
func NewSession(streamID string, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	density, err := stats.NewDensityTracker(cfg.DensityBucketSize)
	if err != nil {
		return nil, err
	}
	rolling, err := stats.NewRollingWindow(cfg.RollingMode, cfg.RollingHorizon)
	if err != nil {
		return nil, err
	}
	return &Session{
		streamID:     streamID,
		cfg:          cfg,
		accumulators: make(map[float64]*stats.GapAccumulator),
		gaps:         stats.NewGapComputer(stats.GapExact),
		density:      density,
		rolling:      rolling,
		alerts:       alerts.NewEngine(streamID, cfg.Cooldown),
	}, nil
}

// StreamID reports which stream this session tracks.
func (s *Session) StreamID() string {
	return s.streamID
}

// Ingest applies one ascending, deduplicated batch of outcome events in
// strict sequence order and returns updated snapshots plus any fired
// alerts. Batches that do not advance the last applied sequence are
// rejected.
func (s *Session) Ingest(events []models.OutcomeEvent, now time.Time) (IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]models.OutcomeEvent, len(events))
	copy(batch, events)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Sequence < batch[j].Sequence })

	prev := s.lastSequence
	for _, e := range batch {
		if e.Sequence <= prev {
			return IngestResult{}, fmt.Errorf("%w: sequence %d does not advance past %d on stream %s",
				stats.ErrInvariant, e.Sequence, prev, s.streamID)
		}
		prev = e.Sequence
	}

	result := IngestResult{Applied: len(batch)}
	for _, sample := range s.gaps.Compute(batch) {
		e := sample.Event
		bucket := models.Quantize(e.Multiplier)

		if acc, ok := s.accumulators[bucket]; ok {
			if err := acc.Hit(e.Sequence); err != nil {
				return IngestResult{}, err
			}
		}

		s.density.Increment(e.Sequence)
		at := e.OccurredAt
		if at.IsZero() {
			at = now
		}
		s.rolling.Observe(e.Multiplier, at)
		s.baseline.Update(e.Multiplier)

		result.Alerts = append(result.Alerts, s.alerts.Check(e, s.snapshotLocked, now)...)
		s.lastSequence = e.Sequence
	}

	result.Accumulators = s.accumulatorSnapshotsLocked()
	result.Density = s.density.Normalized()
	result.Rolling = s.rollingSnapshotLocked()
	return result, nil
}

func (s *Session) snapshotLocked(multiplier float64) (stats.GapSnapshot, bool) {
	acc, ok := s.accumulators[models.Quantize(multiplier)]
	if !ok {
		return stats.GapSnapshot{}, false
	}
	return acc.Snapshot(), true
}

func (s *Session) accumulatorSnapshotsLocked() map[string]stats.GapSnapshot {
	out := make(map[string]stats.GapSnapshot, len(s.accumulators))
	for bucket, acc := range s.accumulators {
		out[models.BucketKey(bucket)] = acc.Snapshot()
	}
	return out
}

func (s *Session) rollingSnapshotLocked() RollingSnapshot {
	deviation := s.rolling.Deviation(s.baseline.Mean, s.baseline.Stddev())
	return RollingSnapshot{
		Stats:       s.rolling.Stats(),
		HitRate:     s.rolling.HitRate(),
		Deviation:   deviation,
		RegimeShift: deviation >= s.cfg.DeviationThreshold || deviation <= -s.cfg.DeviationThreshold,
	}
}

// Pin starts tracking a multiplier bucket, creating its accumulator on
// first pin. Pinning an already-pinned bucket is a no-op.
func (s *Session) Pin(multiplier float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := models.Quantize(multiplier)
	if _, ok := s.accumulators[bucket]; ok {
		return nil
	}
	acc, err := stats.NewGapAccumulator(s.cfg.Accumulator)
	if err != nil {
		return err
	}
	s.accumulators[bucket] = acc
	return nil
}

// Unpin drops the accumulator for a bucket. Unpinning an untracked
// bucket is a no-op.
func (s *Session) Unpin(multiplier float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accumulators, models.Quantize(multiplier))
}

// Pins lists the tracked buckets.
func (s *Session) Pins() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, 0, len(s.accumulators))
	for bucket := range s.accumulators {
		out = append(out, bucket)
	}
	sort.Float64s(out)
	return out
}

// Snapshot reads the accumulator for a bucket, or false when untracked.
func (s *Session) Snapshot(multiplier float64) (stats.GapSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(multiplier)
}

// Rolling reads the current rolling window view.
func (s *Session) Rolling() RollingSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollingSnapshotLocked()
}

// Density reads the normalized density buckets.
func (s *Session) Density() []stats.DensityBucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.density.Normalized()
}

// ResizeDensity changes the density bucket width, clearing prior counts.
func (s *Session) ResizeDensity(bucketSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.density.Resize(bucketSize)
}

// Alerts exposes the session's rule engine for CRUD.
func (s *Session) Alerts() *alerts.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts
}

// LastSequence reports the highest applied sequence, 0 before any batch.
func (s *Session) LastSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSequence
}

// State captures accumulator checkpoints keyed by bucket, for persistence.
func (s *Session) State() map[string]stats.AccumulatorState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]stats.AccumulatorState, len(s.accumulators))
	for bucket, acc := range s.accumulators {
		out[models.BucketKey(bucket)] = acc.State()
	}
	return out
}

// RestoreAccumulator re-creates a pinned bucket from a checkpoint.
func (s *Session) RestoreAccumulator(multiplier float64, st stats.AccumulatorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := models.Quantize(multiplier)
	acc, err := stats.NewGapAccumulator(s.cfg.Accumulator)
	if err != nil {
		return err
	}
	acc.RestoreState(st)
	s.accumulators[bucket] = acc
	if st.LastSequence > s.lastSequence {
		s.lastSequence = st.LastSequence
	}
	return nil
}
