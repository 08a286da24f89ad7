package stats

import (
	"sort"

	"github.com/rewired-gh/pumpsentry/internal/models"
)

// GapMode selects how the gap computer matches prior events.
type GapMode string

const (
	// GapExact matches events in the same 2-decimal multiplier bucket.
	GapExact GapMode = "exact"
	// GapThreshold matches the most recent event whose multiplier was at
	// least as large.
	GapThreshold GapMode = "threshold"
)

// GapSample pairs an event with its distance (in sequence units) since
// the previous matching event. Known is false for the first match of a
// bucket or threshold.
type GapSample struct {
	Event models.OutcomeEvent `json:"event"`
	Gap   int64               `json:"gap"`
	Known bool                `json:"known"`
}

type thresholdEntry struct {
	multiplier float64
	sequence   int64
}

// GapComputer derives gap-since-last-match for a chronological event
// stream. Input batches are re-sorted ascending by sequence before
// processing; state carries across batches.
//
// Threshold mode scans its full history backward per event. The most
// recent entry by sequence wins on equal multipliers, which the backward
// scan yields for free.
type GapComputer struct {
	mode      GapMode
	lastByKey map[string]int64
	history   []thresholdEntry
}

// NewGapComputer creates a computer for the given mode.
func NewGapComputer(mode GapMode) *GapComputer {
	return &GapComputer{
		mode:      mode,
		lastByKey: make(map[string]int64),
	}
}

// Compute assigns each event in the batch a gap-since-last-match, in
// ascending sequence order. The returned samples follow that order.
func (g *GapComputer) Compute(events []models.OutcomeEvent) []GapSample {
	batch := make([]models.OutcomeEvent, len(events))
	copy(batch, events)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Sequence < batch[j].Sequence })

	out := make([]GapSample, 0, len(batch))
	for _, e := range batch {
		switch g.mode {
		case GapThreshold:
			out = append(out, g.computeThreshold(e))
		default:
			out = append(out, g.computeExact(e))
		}
	}
	return out
}

func (g *GapComputer) computeExact(e models.OutcomeEvent) GapSample {
	key := models.BucketKey(e.Multiplier)
	sample := GapSample{Event: e}
	if last, ok := g.lastByKey[key]; ok {
		sample.Gap = e.Sequence - last
		sample.Known = true
	}
	g.lastByKey[key] = e.Sequence
	return sample
}

func (g *GapComputer) computeThreshold(e models.OutcomeEvent) GapSample {
	target := models.Quantize(e.Multiplier)
	sample := GapSample{Event: e}
	for i := len(g.history) - 1; i >= 0; i-- {
		if g.history[i].multiplier >= target {
			sample.Gap = e.Sequence - g.history[i].sequence
			sample.Known = true
			break
		}
	}
	g.history = append(g.history, thresholdEntry{
		multiplier: models.Quantize(e.Multiplier),
		sequence:   e.Sequence,
	})
	return sample
}

// LastSequence returns the last sequence recorded for a multiplier bucket
// in exact mode, or (0, false) when the bucket has not been seen.
func (g *GapComputer) LastSequence(multiplier float64) (int64, bool) {
	seq, ok := g.lastByKey[models.BucketKey(multiplier)]
	return seq, ok
}
