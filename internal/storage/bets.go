package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/models"
)

// BetRecord is a stored outcome event plus its database row id, used for
// tail pagination.
type BetRecord struct {
	RowID int64 `json:"row_id"`
	models.OutcomeEvent
}

// AddBet stores one outcome event. Duplicate bet ids on the same stream
// are ignored; the bool reports whether the row was inserted.
func (s *Storage) AddBet(event *models.OutcomeEvent) (bool, error) {
	if err := event.Validate(); err != nil {
		return false, fmt.Errorf("invalid bet: %w", err)
	}
	var occurredAt any
	if !event.OccurredAt.IsZero() {
		occurredAt = event.OccurredAt.UnixNano()
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO bets
			(stream_id, bet_id, sequence, multiplier, amount, payout, difficulty, occurred_at, received_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		event.StreamID, event.ID, event.Sequence, event.Multiplier, event.Amount,
		event.Payout, event.Difficulty, occurredAt, event.ReceivedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert bet: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListBets returns a page of a stream's bets ordered by sequence, plus
// the total count.
func (s *Storage) ListBets(streamID string, limit, offset int) ([]BetRecord, int64, error) {
	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bets WHERE stream_id = ?`, streamID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bets: %w", err)
	}
	rows, err := s.db.Query(`SELECT `+betCols+` FROM bets WHERE stream_id = ?
		ORDER BY sequence LIMIT ? OFFSET ?`, streamID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()
	records, err := collectBets(rows)
	return records, total, err
}

// TailBets returns bets with row id greater than sinceID, oldest first,
// capped at limit. The bool reports whether more rows remain.
func (s *Storage) TailBets(streamID string, sinceID int64, limit int) ([]BetRecord, bool, error) {
	rows, err := s.db.Query(`SELECT `+betCols+` FROM bets WHERE stream_id = ? AND id > ?
		ORDER BY id LIMIT ?`, streamID, sinceID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query tail: %w", err)
	}
	defer rows.Close()
	records, err := collectBets(rows)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	return records, hasMore, nil
}

// TopPeaks returns the highest-multiplier bets on a stream.
func (s *Storage) TopPeaks(streamID string, limit int) ([]BetRecord, error) {
	rows, err := s.db.Query(`SELECT `+betCols+` FROM bets WHERE stream_id = ?
		ORDER BY multiplier DESC, sequence LIMIT ?`, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query peaks: %w", err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// StreamTotals summarizes a stream's stored bets for the metrics surface.
type StreamTotals struct {
	TotalBets         int64     `json:"total_bets"`
	HighestMultiplier float64   `json:"highest_multiplier"`
	FirstReceivedAt   time.Time `json:"first_received_at"`
	LastReceivedAt    time.Time `json:"last_received_at"`
}

// Totals aggregates bet counts and extremes for one stream.
func (s *Storage) Totals(streamID string) (StreamTotals, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(MAX(multiplier), 0),
		       COALESCE(MIN(received_at), 0), COALESCE(MAX(received_at), 0)
		FROM bets WHERE stream_id = ?`, streamID)

	var t StreamTotals
	var firstNano, lastNano int64
	if err := row.Scan(&t.TotalBets, &t.HighestMultiplier, &firstNano, &lastNano); err != nil {
		return StreamTotals{}, fmt.Errorf("failed to aggregate bets: %w", err)
	}
	if firstNano > 0 {
		t.FirstReceivedAt = time.Unix(0, firstNano)
	}
	if lastNano > 0 {
		t.LastReceivedAt = time.Unix(0, lastNano)
	}
	return t, nil
}

// BetsBySequence returns all of a stream's bets in ascending sequence
// order, for batch gap analysis.
func (s *Storage) BetsBySequence(streamID string) ([]models.OutcomeEvent, error) {
	rows, err := s.db.Query(`SELECT `+betCols+` FROM bets WHERE stream_id = ? ORDER BY sequence`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bets: %w", err)
	}
	defer rows.Close()
	records, err := collectBets(rows)
	if err != nil {
		return nil, err
	}
	events := make([]models.OutcomeEvent, len(records))
	for i, r := range records {
		events[i] = r.OutcomeEvent
	}
	return events, nil
}

const betCols = `id, stream_id, bet_id, sequence, multiplier, amount, payout, difficulty, occurred_at, received_at`

func collectBets(rows *sql.Rows) ([]BetRecord, error) {
	records := []BetRecord{}
	for rows.Next() {
		var r BetRecord
		var occurredAt sql.NullInt64
		var receivedNano int64
		err := rows.Scan(
			&r.RowID, &r.StreamID, &r.ID, &r.Sequence, &r.Multiplier, &r.Amount,
			&r.Payout, &r.Difficulty, &occurredAt, &receivedNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		if occurredAt.Valid {
			r.OccurredAt = time.Unix(0, occurredAt.Int64)
		}
		r.ReceivedAt = time.Unix(0, receivedNano)
		records = append(records, r)
	}
	return records, rows.Err()
}
