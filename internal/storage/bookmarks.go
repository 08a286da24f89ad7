package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/models"
)

// BetBySequence loads one of a stream's bets by sequence number.
func (s *Storage) BetBySequence(streamID string, sequence int64) (*BetRecord, error) {
	rows, err := s.db.Query(`SELECT `+betCols+` FROM bets WHERE stream_id = ? AND sequence = ?`,
		streamID, sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to query bet: %w", err)
	}
	defer rows.Close()
	records, err := collectBets(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// AddBookmark stores one bookmark and fills in its id. Duplicates on the
// same bet are ignored; the bool reports whether the row was inserted.
func (s *Storage) AddBookmark(bookmark *models.Bookmark) (bool, error) {
	if err := bookmark.Validate(); err != nil {
		return false, fmt.Errorf("invalid bookmark: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO bookmarks (stream_id, sequence, multiplier, note, created_at)
		VALUES (?,?,?,?,?)`,
		bookmark.StreamID, bookmark.Sequence, bookmark.Multiplier,
		bookmark.Note, bookmark.CreatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert bookmark: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	bookmark.ID, _ = res.LastInsertId()
	return true, nil
}

// ListBookmarks returns a stream's bookmarks, newest first.
func (s *Storage) ListBookmarks(streamID string) ([]models.Bookmark, error) {
	rows, err := s.db.Query(`
		SELECT id, stream_id, sequence, multiplier, note, created_at
		FROM bookmarks WHERE stream_id = ? ORDER BY created_at DESC, id DESC`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := []models.Bookmark{}
	for rows.Next() {
		var b models.Bookmark
		var createdNano int64
		if err := rows.Scan(&b.ID, &b.StreamID, &b.Sequence, &b.Multiplier, &b.Note, &createdNano); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		b.CreatedAt = time.Unix(0, createdNano)
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}

// UpdateBookmarkNote replaces one bookmark's note and returns the
// updated bookmark.
func (s *Storage) UpdateBookmarkNote(id int64, note string) (*models.Bookmark, error) {
	res, err := s.db.Exec(`UPDATE bookmarks SET note = ? WHERE id = ?`, note, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update bookmark: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("bookmark not found: %d", id)
	}
	row := s.db.QueryRow(`
		SELECT id, stream_id, sequence, multiplier, note, created_at
		FROM bookmarks WHERE id = ?`, id)
	var b models.Bookmark
	var createdNano int64
	if err := row.Scan(&b.ID, &b.StreamID, &b.Sequence, &b.Multiplier, &b.Note, &createdNano); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("bookmark not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}
	b.CreatedAt = time.Unix(0, createdNano)
	return &b, nil
}

// DeleteBookmark removes one bookmark by id.
func (s *Storage) DeleteBookmark(id int64) error {
	res, err := s.db.Exec(`DELETE FROM bookmarks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("bookmark not found: %d", id)
	}
	return nil
}
