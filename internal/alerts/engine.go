package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/stats"
)

// DefaultCooldown is how long a fired rule stays silent, tracked per
// rule id regardless of which multiplier triggered it.
const DefaultCooldown = 10 * time.Second

// DefaultGapZScore is the z multiplier for gap rules that do not use the
// histogram quantile.
const DefaultGapZScore = 2.0

// SnapshotFunc resolves live accumulator state for a multiplier bucket.
// The second return is false when the bucket is not tracked.
type SnapshotFunc func(multiplier float64) (stats.GapSnapshot, bool)

type clusterSample struct {
	sequence int64
	at       time.Time
}

// Engine evaluates alert rules against incoming events and rate-limits
// firings. It keeps no alert history beyond what cooldown tracking and
// cluster windows require. The mutex lets rule CRUD race safely against
// ingest-driven evaluation.
type Engine struct {
	mu        sync.Mutex
	streamID  string
	cooldown  time.Duration
	rules     map[string]models.AlertRule
	lastFired map[string]time.Time
	clusters  map[string][]clusterSample
}

// NewEngine creates an engine for one stream. A non-positive cooldown
// falls back to DefaultCooldown.
func NewEngine(streamID string, cooldown time.Duration) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{
		streamID:  streamID,
		cooldown:  cooldown,
		rules:     make(map[string]models.AlertRule),
		lastFired: make(map[string]time.Time),
		clusters:  make(map[string][]clusterSample),
	}
}

// Check evaluates every enabled rule against one incoming event and
// returns the alerts that fired. Rules in cooldown are skipped.
func (e *Engine) Check(event models.OutcomeEvent, lookup SnapshotFunc, now time.Time) []models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	bucket := models.Quantize(event.Multiplier)

	var fired []models.AlertEvent
	for _, rule := range e.rulesLocked() {
		if !rule.Enabled {
			continue
		}
		message, ok := e.evaluate(rule, event, bucket, lookup, now)
		if !ok {
			continue
		}
		if last, seen := e.lastFired[rule.ID]; seen && now.Sub(last) < e.cooldown {
			continue
		}
		e.lastFired[rule.ID] = now
		fired = append(fired, models.AlertEvent{
			ID:         uuid.New().String(),
			RuleID:     rule.ID,
			StreamID:   e.streamID,
			Multiplier: bucket,
			Kind:       rule.Kind,
			Sequence:   event.Sequence,
			Message:    message,
			Timestamp:  now,
		})
	}
	return fired
}

// evaluate dispatches on the rule kind, the single dispatch point over
// the rule variants.
func (e *Engine) evaluate(rule models.AlertRule, event models.OutcomeEvent, bucket float64, lookup SnapshotFunc, now time.Time) (string, bool) {
	switch rule.Kind {
	case models.RuleGap:
		if rule.TrackedMultiplier != bucket {
			return "", false
		}
		return evaluateGap(rule, lookup)
	case models.RuleCluster:
		return e.evaluateCluster(rule, event, now)
	case models.RuleThreshold:
		if rule.TrackedMultiplier > 0 && rule.TrackedMultiplier != bucket {
			return "", false
		}
		return evaluateThreshold(rule, event)
	}
	return "", false
}

func evaluateGap(rule models.AlertRule, lookup SnapshotFunc) (string, bool) {
	snap, ok := lookup(rule.TrackedMultiplier)
	if !ok || snap.Count < 2 {
		return "", false
	}
	threshold := snap.MeanGap + rule.Gap.ZScore*snap.StdGap
	basis := fmt.Sprintf("mean %.1f + %.1fσ", snap.MeanGap, rule.Gap.ZScore)
	if rule.Gap.UseQuantile {
		threshold = snap.P90
		basis = fmt.Sprintf("p90 %.1f", snap.P90)
	}
	if float64(snap.LastGap) <= threshold {
		return "", false
	}
	msg := fmt.Sprintf("%.2fx gap %d exceeds %s", rule.TrackedMultiplier, snap.LastGap, basis)
	return msg, true
}

func (e *Engine) evaluateCluster(rule models.AlertRule, event models.OutcomeEvent, now time.Time) (string, bool) {
	cfg := rule.Cluster
	if models.Quantize(event.Multiplier) < models.Quantize(cfg.MinMultiplier) {
		return "", false
	}

	window := append(e.clusters[rule.ID], clusterSample{sequence: event.Sequence, at: now})

	// A sample stays only while inside both the sequence span and the
	// wall-clock span.
	seqCutoff := event.Sequence - cfg.WindowSequenceSpan
	timeCutoff := now.Add(-time.Duration(cfg.WindowSeconds * float64(time.Second)))
	kept := window[:0]
	for _, s := range window {
		if s.sequence >= seqCutoff && !s.at.Before(timeCutoff) {
			kept = append(kept, s)
		}
	}
	e.clusters[rule.ID] = kept

	if len(kept) < cfg.MinCount {
		return "", false
	}
	msg := fmt.Sprintf("%d hits >= %.2fx within %d nonces and %.0fs",
		len(kept), cfg.MinMultiplier, cfg.WindowSequenceSpan, cfg.WindowSeconds)
	return msg, true
}

func evaluateThreshold(rule models.AlertRule, event models.OutcomeEvent) (string, bool) {
	if event.Multiplier < rule.Threshold.TargetMultiplier {
		return "", false
	}
	msg := fmt.Sprintf("%.2fx hit at nonce %d (target %.2fx)",
		event.Multiplier, event.Sequence, rule.Threshold.TargetMultiplier)
	return msg, true
}
