// Package storage provides SQLite-backed persistence for streams, bets,
// pins, bookmarks, alert rules, alert history, and accumulator
// checkpoints.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/stats"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db         *sql.DB
	maxStreams int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/pumpsentry/data.db.
func New(maxStreams int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "pumpsentry", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxStreams: maxStreams}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS streams (
			id                 TEXT PRIMARY KEY,
			server_seed_hashed TEXT NOT NULL,
			client_seed        TEXT NOT NULL,
			created_at         INTEGER NOT NULL,
			last_seen_at       INTEGER NOT NULL,
			notes              TEXT NOT NULL DEFAULT '',
			UNIQUE (server_seed_hashed, client_seed)
		)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			stream_id   TEXT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			bet_id      TEXT NOT NULL,
			sequence    INTEGER NOT NULL,
			multiplier  REAL NOT NULL,
			amount      REAL NOT NULL,
			payout      REAL NOT NULL,
			difficulty  TEXT NOT NULL,
			occurred_at INTEGER,
			received_at INTEGER NOT NULL,
			UNIQUE (stream_id, bet_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_stream_sequence ON bets(stream_id, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_stream_multiplier ON bets(stream_id, multiplier)`,
		`CREATE TABLE IF NOT EXISTS pins (
			stream_id  TEXT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			bucket     TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (stream_id, bucket)
		)`,
		`CREATE TABLE IF NOT EXISTS bookmarks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			stream_id  TEXT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			sequence   INTEGER NOT NULL,
			multiplier REAL NOT NULL,
			note       TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			UNIQUE (stream_id, sequence, multiplier)
		)`,
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id         TEXT PRIMARY KEY,
			stream_id  TEXT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			definition TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id           TEXT PRIMARY KEY,
			rule_id      TEXT NOT NULL,
			stream_id    TEXT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			multiplier   REAL NOT NULL,
			kind         TEXT NOT NULL,
			sequence     INTEGER NOT NULL,
			message      TEXT NOT NULL,
			fired_at     INTEGER NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_stream_fired ON alerts(stream_id, fired_at DESC)`,
		`CREATE TABLE IF NOT EXISTS accumulator_state (
			stream_id  TEXT NOT NULL REFERENCES streams(id) ON DELETE CASCADE,
			bucket     TEXT NOT NULL,
			state      TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (stream_id, bucket)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertStream finds the stream for a seed pair or creates it, updating
// last_seen_at either way. The bool reports whether it was created.
func (s *Storage) UpsertStream(serverSeedHashed, clientSeed string, now time.Time) (*models.Stream, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, notes FROM streams WHERE server_seed_hashed = ? AND client_seed = ?`,
		serverSeedHashed, clientSeed,
	)
	var id, notes string
	var createdAtNano int64
	err := row.Scan(&id, &createdAtNano, &notes)
	if err == sql.ErrNoRows {
		stream := &models.Stream{
			ID:               uuid.New().String(),
			ServerSeedHashed: serverSeedHashed,
			ClientSeed:       clientSeed,
			CreatedAt:        now,
			LastSeenAt:       now,
		}
		if err := stream.Validate(); err != nil {
			return nil, false, fmt.Errorf("invalid stream: %w", err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO streams (id, server_seed_hashed, client_seed, created_at, last_seen_at, notes)
			 VALUES (?,?,?,?,?,'')`,
			stream.ID, serverSeedHashed, clientSeed, now.UnixNano(), now.UnixNano(),
		); err != nil {
			return nil, false, fmt.Errorf("failed to insert stream: %w", err)
		}
		return stream, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up stream: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE streams SET last_seen_at = ? WHERE id = ?`, now.UnixNano(), id); err != nil {
		return nil, false, fmt.Errorf("failed to touch stream: %w", err)
	}
	return &models.Stream{
		ID:               id,
		ServerSeedHashed: serverSeedHashed,
		ClientSeed:       clientSeed,
		CreatedAt:        time.Unix(0, createdAtNano),
		LastSeenAt:       now,
		Notes:            notes,
	}, false, nil
}

// GetStream loads one stream by id.
func (s *Storage) GetStream(id string) (*models.Stream, error) {
	row := s.db.QueryRow(
		`SELECT id, server_seed_hashed, client_seed, created_at, last_seen_at, notes
		 FROM streams WHERE id = ?`, id)
	stream, err := scanStream(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stream not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	return stream, nil
}

// ListStreams returns all streams ordered by last activity, newest first.
func (s *Storage) ListStreams() ([]*models.Stream, error) {
	rows, err := s.db.Query(
		`SELECT id, server_seed_hashed, client_seed, created_at, last_seen_at, notes
		 FROM streams ORDER BY last_seen_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query streams: %w", err)
	}
	defer rows.Close()

	streams := []*models.Stream{}
	for rows.Next() {
		stream, err := scanStream(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		streams = append(streams, stream)
	}
	return streams, rows.Err()
}

// UpdateStreamNotes replaces a stream's notes.
func (s *Storage) UpdateStreamNotes(id, notes string) error {
	res, err := s.db.Exec(`UPDATE streams SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("failed to update notes: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("stream not found: %s", id)
	}
	return nil
}

// DeleteStream removes a stream; cascading deletes take its bets, pins,
// bookmarks, rules, alerts, and checkpoints. Returns the number of bets deleted.
func (s *Storage) DeleteStream(id string) (int64, error) {
	var betCount int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bets WHERE stream_id = ?`, id).Scan(&betCount); err != nil {
		return 0, fmt.Errorf("failed to count bets: %w", err)
	}
	res, err := s.db.Exec(`DELETE FROM streams WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stream: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, fmt.Errorf("stream not found: %s", id)
	}
	return betCount, nil
}

// RotateStreams keeps at most maxStreams newest streams by last_seen_at.
// Cascading deletes remove associated bets, pins, rules, and alerts.
func (s *Storage) RotateStreams() error {
	_, err := s.db.Exec(`
		DELETE FROM streams WHERE id NOT IN (
			SELECT id FROM streams ORDER BY last_seen_at DESC LIMIT ?
		)`, s.maxStreams)
	if err != nil {
		return fmt.Errorf("failed to rotate streams: %w", err)
	}
	return nil
}

func scanStream(scan func(...any) error) (*models.Stream, error) {
	var m models.Stream
	var createdAtNano, lastSeenNano int64
	err := scan(&m.ID, &m.ServerSeedHashed, &m.ClientSeed, &createdAtNano, &lastSeenNano, &m.Notes)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(0, createdAtNano)
	m.LastSeenAt = time.Unix(0, lastSeenNano)
	return &m, nil
}

// SaveAccumulatorState checkpoints one accumulator, JSON-encoding the
// ring and histogram buffers.
func (s *Storage) SaveAccumulatorState(streamID, bucket string, st stats.AccumulatorState, now time.Time) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal accumulator state: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO accumulator_state (stream_id, bucket, state, updated_at) VALUES (?,?,?,?)`,
		streamID, bucket, string(payload), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save accumulator state: %w", err)
	}
	return nil
}

// LoadAccumulatorStates loads all checkpointed accumulators for a stream,
// keyed by bucket.
func (s *Storage) LoadAccumulatorStates(streamID string) (map[string]stats.AccumulatorState, error) {
	rows, err := s.db.Query(`SELECT bucket, state FROM accumulator_state WHERE stream_id = ?`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accumulator states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]stats.AccumulatorState)
	for rows.Next() {
		var bucket, payload string
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan accumulator state: %w", err)
		}
		var st stats.AccumulatorState
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accumulator state: %w", err)
		}
		states[bucket] = st
	}
	return states, rows.Err()
}

// DeleteAccumulatorState drops the checkpoint for an unpinned bucket.
func (s *Storage) DeleteAccumulatorState(streamID, bucket string) error {
	if _, err := s.db.Exec(
		`DELETE FROM accumulator_state WHERE stream_id = ? AND bucket = ?`, streamID, bucket,
	); err != nil {
		return fmt.Errorf("failed to delete accumulator state: %w", err)
	}
	return nil
}
