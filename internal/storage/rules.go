package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/models"
)

// SaveRule stores or replaces a rule definition, JSON-encoded.
func (s *Storage) SaveRule(rule models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	payload, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO alert_rules (id, stream_id, definition, created_at) VALUES (?,?,?,?)`,
		rule.ID, rule.StreamID, string(payload), rule.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule definition.
func (s *Storage) DeleteRule(id string) error {
	res, err := s.db.Exec(`DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}
	return nil
}

// ListRules loads all rule definitions for a stream, oldest first.
func (s *Storage) ListRules(streamID string) ([]models.AlertRule, error) {
	rows, err := s.db.Query(
		`SELECT definition FROM alert_rules WHERE stream_id = ? ORDER BY created_at`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	rules := []models.AlertRule{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		var rule models.AlertRule
		if err := json.Unmarshal([]byte(payload), &rule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// AddAlert appends one fired alert to the history.
func (s *Storage) AddAlert(alert models.AlertEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts (id, rule_id, stream_id, multiplier, kind, sequence, message, fired_at, acknowledged)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.RuleID, alert.StreamID, alert.Multiplier, string(alert.Kind),
		alert.Sequence, alert.Message, alert.Timestamp.UnixNano(), boolToInt(alert.Acknowledged),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns a stream's alert history, newest first.
func (s *Storage) ListAlerts(streamID string, limit int) ([]models.AlertEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, rule_id, stream_id, multiplier, kind, sequence, message, fired_at, acknowledged
		FROM alerts WHERE stream_id = ? ORDER BY fired_at DESC LIMIT ?`, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.AlertEvent{}
	for rows.Next() {
		var a models.AlertEvent
		var kind string
		var firedNano int64
		var acked int
		err := rows.Scan(&a.ID, &a.RuleID, &a.StreamID, &a.Multiplier, &kind,
			&a.Sequence, &a.Message, &firedNano, &acked)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Kind = models.RuleKind(kind)
		a.Timestamp = time.Unix(0, firedNano)
		a.Acknowledged = acked != 0
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks one alert as seen.
func (s *Storage) AcknowledgeAlert(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("alert not found: %s", id)
	}
	return nil
}

// AddPin records a pinned multiplier bucket.
func (s *Storage) AddPin(streamID, bucket string, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO pins (stream_id, bucket, created_at) VALUES (?,?,?)`,
		streamID, bucket, now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to add pin: %w", err)
	}
	return nil
}

// RemovePin drops a pinned bucket.
func (s *Storage) RemovePin(streamID, bucket string) error {
	if _, err := s.db.Exec(
		`DELETE FROM pins WHERE stream_id = ? AND bucket = ?`, streamID, bucket,
	); err != nil {
		return fmt.Errorf("failed to remove pin: %w", err)
	}
	return nil
}

// ListPins returns a stream's pinned buckets, oldest pin first.
func (s *Storage) ListPins(streamID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT bucket FROM pins WHERE stream_id = ? ORDER BY created_at`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	pins := []string{}
	for rows.Next() {
		var bucket string
		if err := rows.Scan(&bucket); err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pins = append(pins, bucket)
	}
	return pins, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
