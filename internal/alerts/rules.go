// Package alerts evaluates declarative gap/cluster/threshold rules
// against live accumulator state, with per-rule cooldown.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/pumpsentry/internal/models"
)

// AddRule registers a rule, assigning an id when absent.
func (e *Engine) AddRule(rule models.AlertRule) (models.AlertRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	rule.TrackedMultiplier = models.Quantize(rule.TrackedMultiplier)
	if err := rule.Validate(); err != nil {
		return models.AlertRule{}, fmt.Errorf("invalid rule: %w", err)
	}
	e.rules[rule.ID] = rule
	return rule, nil
}

// UpdateRule replaces an existing rule's definition.
func (e *Engine) UpdateRule(rule models.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[rule.ID]; !ok {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}
	rule.TrackedMultiplier = models.Quantize(rule.TrackedMultiplier)
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	e.rules[rule.ID] = rule
	return nil
}

// RemoveRule drops a rule and its evaluation state.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[id]; !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	delete(e.rules, id)
	delete(e.lastFired, id)
	delete(e.clusters, id)
	return nil
}

// SetEnabled flips a rule on or off without touching its definition.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	if !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	rule.Enabled = enabled
	e.rules[id] = rule
	return nil
}

// Rule returns a rule by id.
func (e *Engine) Rule(id string) (models.AlertRule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	return rule, ok
}

// Rules lists all rules ordered by creation time.
func (e *Engine) Rules() []models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rulesLocked()
}

func (e *Engine) rulesLocked() []models.AlertRule {
	out := make([]models.AlertRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
