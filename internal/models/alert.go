package models

import (
	"errors"
	"time"
)

// RuleKind discriminates the alert rule variants.
type RuleKind string

const (
	RuleGap       RuleKind = "gap"
	RuleCluster   RuleKind = "cluster"
	RuleThreshold RuleKind = "threshold"
)

// GapRuleConfig fires when the last observed gap for the tracked bucket
// exceeds either the histogram p90 (UseQuantile) or mean + ZScore*stddev.
type GapRuleConfig struct {
	UseQuantile bool    `json:"use_quantile"`
	ZScore      float64 `json:"z_score"`
}

// ClusterRuleConfig fires when at least MinCount qualifying events
// (multiplier >= MinMultiplier) land inside a window bounded by both a
// sequence span and a wall-clock span.
type ClusterRuleConfig struct {
	MinMultiplier      float64 `json:"min_multiplier"`
	MinCount           int     `json:"min_count"`
	WindowSequenceSpan int64   `json:"window_sequence_span"`
	WindowSeconds      float64 `json:"window_seconds"`
}

// ThresholdRuleConfig fires when an event's multiplier reaches the target.
type ThresholdRuleConfig struct {
	TargetMultiplier float64 `json:"target_multiplier"`
}

// AlertRule is a user-managed rule evaluated against live accumulator
// state. Exactly one of the per-kind config payloads must be set,
// matching Kind.
type AlertRule struct {
	ID                string               `json:"id"`
	StreamID          string               `json:"stream_id"`
	TrackedMultiplier float64              `json:"tracked_multiplier"`
	Kind              RuleKind             `json:"kind"`
	Enabled           bool                 `json:"enabled"`
	Gap               *GapRuleConfig       `json:"gap,omitempty"`
	Cluster           *ClusterRuleConfig   `json:"cluster,omitempty"`
	Threshold         *ThresholdRuleConfig `json:"threshold,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

// Validate checks rule field constraints, including the kind/payload pairing.
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return errors.New("rule ID must not be empty")
	}
	switch r.Kind {
	case RuleGap:
		if r.TrackedMultiplier <= 0 {
			return errors.New("gap rule requires a positive tracked multiplier")
		}
		if r.Gap == nil {
			return errors.New("gap rule requires a gap config")
		}
		if !r.Gap.UseQuantile && r.Gap.ZScore <= 0 {
			return errors.New("gap rule z-score must be positive")
		}
	case RuleCluster:
		if r.Cluster == nil {
			return errors.New("cluster rule requires a cluster config")
		}
		if r.Cluster.MinMultiplier <= 0 {
			return errors.New("cluster rule min multiplier must be positive")
		}
		if r.Cluster.MinCount < 1 {
			return errors.New("cluster rule min count must be >= 1")
		}
		if r.Cluster.WindowSequenceSpan < 1 {
			return errors.New("cluster rule window sequence span must be >= 1")
		}
		if r.Cluster.WindowSeconds <= 0 {
			return errors.New("cluster rule window seconds must be positive")
		}
	case RuleThreshold:
		if r.Threshold == nil {
			return errors.New("threshold rule requires a threshold config")
		}
		if r.Threshold.TargetMultiplier <= 0 {
			return errors.New("threshold rule target multiplier must be positive")
		}
	default:
		return errors.New("rule kind must be one of: gap, cluster, threshold")
	}
	return nil
}

// AlertEvent is emitted by the alert engine when a rule fires. Immutable
// once emitted.
type AlertEvent struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	StreamID     string    `json:"stream_id"`
	Multiplier   float64   `json:"multiplier"`
	Kind         RuleKind  `json:"kind"`
	Sequence     int64     `json:"sequence"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}
