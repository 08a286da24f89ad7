// Package models defines the core domain entities: streams, outcome events,
// bookmarks, alert rules, and alert events.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Difficulty levels accepted on ingested outcome events.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyExpert = "expert"
)

// OutcomeEvent represents a single wager outcome observed on a stream.
// Sequence is the bet nonce, strictly increasing per stream. Immutable
// once observed.
type OutcomeEvent struct {
	ID         string    `json:"id"`
	StreamID   string    `json:"stream_id"`
	Sequence   int64     `json:"sequence"`
	Multiplier float64   `json:"multiplier"`
	Amount     float64   `json:"amount"`
	Payout     float64   `json:"payout"`
	Difficulty string    `json:"difficulty"`
	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks outcome event field constraints.
func (e *OutcomeEvent) Validate() error {
	if e.ID == "" {
		return errors.New("event ID must not be empty")
	}
	if e.Sequence < 1 {
		return errors.New("sequence must be >= 1")
	}
	if e.Multiplier < 0 {
		return errors.New("multiplier must not be negative")
	}
	if e.Amount < 0 {
		return errors.New("amount must not be negative")
	}
	if e.Payout < 0 {
		return errors.New("payout must not be negative")
	}
	switch e.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
	default:
		return errors.New("difficulty must be one of: easy, medium, hard, expert")
	}
	return nil
}

// Stream identifies a live bet stream by its seed pair.
type Stream struct {
	ID               string    `json:"id"`
	ServerSeedHashed string    `json:"server_seed_hashed"`
	ClientSeed       string    `json:"client_seed"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	Notes            string    `json:"notes,omitempty"`
}

// Validate checks stream field constraints.
func (s *Stream) Validate() error {
	if s.ID == "" {
		return errors.New("stream ID must not be empty")
	}
	if s.ServerSeedHashed == "" {
		return errors.New("server seed hash must not be empty")
	}
	if s.ClientSeed == "" {
		return errors.New("client seed must not be empty")
	}
	if s.CreatedAt.After(s.LastSeenAt) {
		return errors.New("created at must be <= last seen at")
	}
	return nil
}

// Bookmark marks one notable bet on a stream, with a free-form note.
type Bookmark struct {
	ID         int64     `json:"id"`
	StreamID   string    `json:"stream_id"`
	Sequence   int64     `json:"sequence"`
	Multiplier float64   `json:"multiplier"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks bookmark field constraints.
func (b *Bookmark) Validate() error {
	if b.StreamID == "" {
		return errors.New("bookmark stream ID must not be empty")
	}
	if b.Sequence < 1 {
		return errors.New("bookmark sequence must be >= 1")
	}
	if b.Multiplier < 0 {
		return errors.New("bookmark multiplier must not be negative")
	}
	return nil
}

// Quantize collapses a multiplier to its 2-decimal bucket so that
// floating-point noise (400.0200000003) maps to one key (400.02).
// Decimal rounding keeps the operation idempotent: Quantize(Quantize(x))
// == Quantize(x).
func Quantize(multiplier float64) float64 {
	f, _ := decimal.NewFromFloat(multiplier).Round(2).Float64()
	return f
}

// BucketKey renders a quantized multiplier as a stable string key, for
// JSON maps and database columns where float keys are not usable.
func BucketKey(multiplier float64) string {
	return decimal.NewFromFloat(multiplier).Round(2).StringFixed(2)
}
