package alerts

import (
	"testing"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/stats"
)

var alertEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func engineEvent(seq int64, multiplier float64) models.OutcomeEvent {
	return models.OutcomeEvent{Sequence: seq, Multiplier: multiplier}
}

func noSnapshot(float64) (stats.GapSnapshot, bool) {
	return stats.GapSnapshot{}, false
}

func fixedSnapshot(snap stats.GapSnapshot) SnapshotFunc {
	return func(float64) (stats.GapSnapshot, bool) { return snap, true }
}

func mustAddRule(t *testing.T, e *Engine, rule models.AlertRule) models.AlertRule {
	t.Helper()
	added, err := e.AddRule(rule)
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	return added
}

func TestEngine_ThresholdRuleCooldown(t *testing.T) {
	e := NewEngine("stream-1", 10*time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:      models.RuleThreshold,
		Enabled:   true,
		Threshold: &models.ThresholdRuleConfig{TargetMultiplier: 100},
	})

	first := e.Check(engineEvent(1000, 150), noSnapshot, alertEpoch)
	if len(first) != 1 {
		t.Fatalf("first qualifying event fired %d alerts, want 1", len(first))
	}
	if first[0].Kind != models.RuleThreshold || first[0].Sequence != 1000 {
		t.Errorf("alert = %+v, want threshold alert at sequence 1000", first[0])
	}

	// Still inside cooldown: suppressed.
	second := e.Check(engineEvent(1001, 200), noSnapshot, alertEpoch.Add(time.Second))
	if len(second) != 0 {
		t.Fatalf("event inside cooldown fired %d alerts, want 0", len(second))
	}

	third := e.Check(engineEvent(1002, 200), noSnapshot, alertEpoch.Add(11*time.Second))
	if len(third) != 1 {
		t.Fatalf("event after cooldown fired %d alerts, want 1", len(third))
	}
}

func TestEngine_ThresholdBelowTarget(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:      models.RuleThreshold,
		Enabled:   true,
		Threshold: &models.ThresholdRuleConfig{TargetMultiplier: 100},
	})
	if fired := e.Check(engineEvent(1000, 99.99), noSnapshot, alertEpoch); len(fired) != 0 {
		t.Errorf("sub-target event fired %d alerts, want 0", len(fired))
	}
}

func TestEngine_GapRuleQuantile(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:              models.RuleGap,
		TrackedMultiplier: 2.5,
		Enabled:           true,
		Gap:               &models.GapRuleConfig{UseQuantile: true},
	})

	lookup := fixedSnapshot(stats.GapSnapshot{Count: 10, LastGap: 900, P90: 500})
	fired := e.Check(engineEvent(5000, 2.5), lookup, alertEpoch)
	if len(fired) != 1 {
		t.Fatalf("overdue gap fired %d alerts, want 1", len(fired))
	}

	// A different bucket does not touch this rule even with an extreme gap.
	if fired := e.Check(engineEvent(5001, 3.0), lookup, alertEpoch.Add(time.Minute)); len(fired) != 0 {
		t.Errorf("other bucket fired %d alerts, want 0", len(fired))
	}
}

func TestEngine_GapRuleZScore(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:              models.RuleGap,
		TrackedMultiplier: 2.5,
		Enabled:           true,
		Gap:               &models.GapRuleConfig{ZScore: 2},
	})

	// Threshold is mean + 2*std = 300.
	quiet := fixedSnapshot(stats.GapSnapshot{Count: 10, LastGap: 299, MeanGap: 100, StdGap: 100})
	if fired := e.Check(engineEvent(5000, 2.5), quiet, alertEpoch); len(fired) != 0 {
		t.Errorf("gap at threshold fired %d alerts, want 0", len(fired))
	}

	overdue := fixedSnapshot(stats.GapSnapshot{Count: 10, LastGap: 301, MeanGap: 100, StdGap: 100})
	if fired := e.Check(engineEvent(5100, 2.5), overdue, alertEpoch.Add(time.Minute)); len(fired) != 1 {
		t.Errorf("gap past threshold fired %d alerts, want 1", len(fired))
	}
}

func TestEngine_GapRuleNeedsHistory(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:              models.RuleGap,
		TrackedMultiplier: 2.5,
		Enabled:           true,
		Gap:               &models.GapRuleConfig{UseQuantile: true},
	})
	thin := fixedSnapshot(stats.GapSnapshot{Count: 1, LastGap: 9000, P90: 10})
	if fired := e.Check(engineEvent(5000, 2.5), thin, alertEpoch); len(fired) != 0 {
		t.Errorf("single-gap history fired %d alerts, want 0", len(fired))
	}
	if fired := e.Check(engineEvent(5001, 2.5), noSnapshot, alertEpoch.Add(time.Minute)); len(fired) != 0 {
		t.Errorf("untracked bucket fired %d alerts, want 0", len(fired))
	}
}

func TestEngine_ClusterRule(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:    models.RuleCluster,
		Enabled: true,
		Cluster: &models.ClusterRuleConfig{
			MinMultiplier:      50,
			MinCount:           2,
			WindowSequenceSpan: 2000,
			WindowSeconds:      60,
		},
	})

	if fired := e.Check(engineEvent(1000, 120), noSnapshot, alertEpoch); len(fired) != 0 {
		t.Fatalf("single hit fired %d alerts, want 0", len(fired))
	}
	fired := e.Check(engineEvent(1100, 80), noSnapshot, alertEpoch.Add(5*time.Second))
	if len(fired) != 1 {
		t.Fatalf("second hit inside the window fired %d alerts, want 1", len(fired))
	}
	if fired[0].Kind != models.RuleCluster {
		t.Errorf("alert kind = %v, want cluster", fired[0].Kind)
	}
}

func TestEngine_ClusterPrunesBySequenceSpan(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:    models.RuleCluster,
		Enabled: true,
		Cluster: &models.ClusterRuleConfig{
			MinMultiplier:      50,
			MinCount:           2,
			WindowSequenceSpan: 2000,
			WindowSeconds:      3600,
		},
	})

	e.Check(engineEvent(1000, 120), noSnapshot, alertEpoch)
	// Sequence distance 3000 exceeds the span even though only seconds passed.
	if fired := e.Check(engineEvent(4000, 120), noSnapshot, alertEpoch.Add(2*time.Second)); len(fired) != 0 {
		t.Errorf("hit outside the sequence span fired %d alerts, want 0", len(fired))
	}
}

func TestEngine_ClusterPrunesByWallClock(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:    models.RuleCluster,
		Enabled: true,
		Cluster: &models.ClusterRuleConfig{
			MinMultiplier:      50,
			MinCount:           2,
			WindowSequenceSpan: 100000,
			WindowSeconds:      60,
		},
	})

	e.Check(engineEvent(1000, 120), noSnapshot, alertEpoch)
	if fired := e.Check(engineEvent(1100, 120), noSnapshot, alertEpoch.Add(2*time.Minute)); len(fired) != 0 {
		t.Errorf("hit outside the wall-clock window fired %d alerts, want 0", len(fired))
	}
}

func TestEngine_ClusterIgnoresSmallMultipliers(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	mustAddRule(t, e, models.AlertRule{
		Kind:    models.RuleCluster,
		Enabled: true,
		Cluster: &models.ClusterRuleConfig{
			MinMultiplier:      50,
			MinCount:           2,
			WindowSequenceSpan: 2000,
			WindowSeconds:      60,
		},
	})

	e.Check(engineEvent(1000, 120), noSnapshot, alertEpoch)
	e.Check(engineEvent(1050, 10), noSnapshot, alertEpoch.Add(time.Second))
	if fired := e.Check(engineEvent(1080, 20), noSnapshot, alertEpoch.Add(2*time.Second)); len(fired) != 0 {
		t.Errorf("sub-minimum multipliers fired %d alerts, want 0", len(fired))
	}
}

func TestEngine_DisabledRuleNeverFires(t *testing.T) {
	e := NewEngine("stream-1", time.Second)
	rule := mustAddRule(t, e, models.AlertRule{
		Kind:      models.RuleThreshold,
		Enabled:   true,
		Threshold: &models.ThresholdRuleConfig{TargetMultiplier: 100},
	})
	if err := e.SetEnabled(rule.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if fired := e.Check(engineEvent(1000, 500), noSnapshot, alertEpoch); len(fired) != 0 {
		t.Errorf("disabled rule fired %d alerts, want 0", len(fired))
	}
}

func TestEngine_RuleCRUD(t *testing.T) {
	e := NewEngine("stream-1", time.Second)

	if _, err := e.AddRule(models.AlertRule{Kind: models.RuleGap, TrackedMultiplier: 2.5}); err == nil {
		t.Error("AddRule without a gap config should fail validation")
	}

	first := mustAddRule(t, e, models.AlertRule{
		Kind:              models.RuleGap,
		TrackedMultiplier: 2.5,
		Enabled:           true,
		Gap:               &models.GapRuleConfig{UseQuantile: true},
		CreatedAt:         alertEpoch,
	})
	second := mustAddRule(t, e, models.AlertRule{
		Kind:      models.RuleThreshold,
		Enabled:   true,
		Threshold: &models.ThresholdRuleConfig{TargetMultiplier: 100},
		CreatedAt: alertEpoch.Add(time.Second),
	})

	rules := e.Rules()
	if len(rules) != 2 || rules[0].ID != first.ID || rules[1].ID != second.ID {
		t.Fatalf("Rules() order wrong: %+v", rules)
	}

	first.Gap = &models.GapRuleConfig{ZScore: 3}
	if err := e.UpdateRule(first); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	got, ok := e.Rule(first.ID)
	if !ok || got.Gap.ZScore != 3 {
		t.Errorf("updated rule = %+v, want z-score 3", got)
	}

	if err := e.RemoveRule(second.ID); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if err := e.RemoveRule(second.ID); err == nil {
		t.Error("removing a missing rule should fail")
	}
	if len(e.Rules()) != 1 {
		t.Errorf("Rules() length = %d, want 1", len(e.Rules()))
	}
}
