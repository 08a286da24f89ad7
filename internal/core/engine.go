package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/stats"
)

// RuleOp names a rule management operation.
type RuleOp string

const (
	RuleOpAdd     RuleOp = "add"
	RuleOpUpdate  RuleOp = "update"
	RuleOpRemove  RuleOp = "remove"
	RuleOpEnable  RuleOp = "enable"
	RuleOpDisable RuleOp = "disable"
)

// Engine owns one isolated session per stream id. The mutex guards only
// the session map; each session serializes its own mutations.
type Engine struct {
	mu       sync.RWMutex
	cfg      Config
	sessions map[string]*Session
}

// NewEngine creates a multi-stream engine with shared session sizing.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session for a stream, creating it on first use.
func (e *Engine) Session(streamID string) (*Session, error) {
	e.mu.RLock()
	sess, ok := e.sessions[streamID]
	e.mu.RUnlock()
	if ok {
		return sess, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok := e.sessions[streamID]; ok {
		return sess, nil
	}
	sess, err := NewSession(streamID, e.cfg)
	if err != nil {
		return nil, err
	}
	e.sessions[streamID] = sess
	return sess, nil
}

// Ingest applies a batch to the stream's session.
func (e *Engine) Ingest(streamID string, events []models.OutcomeEvent, now time.Time) (IngestResult, error) {
	sess, err := e.Session(streamID)
	if err != nil {
		return IngestResult{}, err
	}
	return sess.Ingest(events, now)
}

// Pin starts tracking a multiplier bucket on a stream.
func (e *Engine) Pin(streamID string, multiplier float64) error {
	sess, err := e.Session(streamID)
	if err != nil {
		return err
	}
	return sess.Pin(multiplier)
}

// Unpin stops tracking a multiplier bucket on a stream.
func (e *Engine) Unpin(streamID string, multiplier float64) error {
	sess, err := e.Session(streamID)
	if err != nil {
		return err
	}
	sess.Unpin(multiplier)
	return nil
}

// Snapshot reads the accumulator for a pinned bucket.
func (e *Engine) Snapshot(streamID string, multiplier float64) (stats.GapSnapshot, bool, error) {
	sess, err := e.Session(streamID)
	if err != nil {
		return stats.GapSnapshot{}, false, err
	}
	snap, ok := sess.Snapshot(multiplier)
	return snap, ok, nil
}

// ManageRule applies one rule CRUD operation on a stream's engine and
// returns the resulting rule where applicable.
func (e *Engine) ManageRule(streamID string, op RuleOp, rule models.AlertRule) (models.AlertRule, error) {
	sess, err := e.Session(streamID)
	if err != nil {
		return models.AlertRule{}, err
	}
	rule.StreamID = streamID
	eng := sess.Alerts()
	switch op {
	case RuleOpAdd:
		return eng.AddRule(rule)
	case RuleOpUpdate:
		return rule, eng.UpdateRule(rule)
	case RuleOpRemove:
		return rule, eng.RemoveRule(rule.ID)
	case RuleOpEnable:
		return rule, eng.SetEnabled(rule.ID, true)
	case RuleOpDisable:
		return rule, eng.SetEnabled(rule.ID, false)
	}
	return models.AlertRule{}, fmt.Errorf("unknown rule operation: %s", op)
}

// Drop discards a stream's session and all its in-memory state.
func (e *Engine) Drop(streamID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, streamID)
}

// StreamIDs lists streams with live sessions, sorted for stable output.
func (e *Engine) StreamIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
