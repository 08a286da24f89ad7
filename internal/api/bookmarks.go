package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/models"
)

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req struct {
		Sequence   int64   `json:"sequence"`
		Multiplier float64 `json:"multiplier"`
		Note       string  `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	bet, err := s.store.BetBySequence(id, req.Sequence)
	if err != nil {
		logger.Error("Failed to look up bet for bookmark on %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to look up bet")
		return
	}
	if bet == nil || models.BucketKey(bet.Multiplier) != models.BucketKey(req.Multiplier) {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("no bet with sequence %d and multiplier %s on stream %s",
				req.Sequence, models.BucketKey(req.Multiplier), id))
		return
	}
	bookmark := models.Bookmark{
		StreamID:   id,
		Sequence:   req.Sequence,
		Multiplier: models.Quantize(req.Multiplier),
		Note:       req.Note,
		CreatedAt:  nowUTC(),
	}
	inserted, err := s.store.AddBookmark(&bookmark)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !inserted {
		writeError(w, http.StatusConflict, "bookmark already exists for this bet")
		return
	}
	writeJSON(w, http.StatusCreated, bookmark)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	bookmarks, err := s.store.ListBookmarks(id)
	if err != nil {
		logger.Error("Failed to list bookmarks for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list bookmarks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream_id": id, "bookmarks": bookmarks})
}

func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	bookmarkID, err := strconv.ParseInt(mux.Vars(r)["bookmarkID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bookmark id")
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	bookmark, err := s.store.UpdateBookmarkNote(bookmarkID, req.Note)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bookmark)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	bookmarkID, err := strconv.ParseInt(mux.Vars(r)["bookmarkID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bookmark id")
		return
	}
	if err := s.store.DeleteBookmark(bookmarkID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "bookmark_id": bookmarkID})
}

// handleExportCSV streams a stream's full bet history as a CSV download,
// ordered by sequence.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	stream, err := s.store.GetStream(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	bets, err := s.store.BetsBySequence(id)
	if err != nil {
		logger.Error("Failed to load bets for export of %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load bets")
		return
	}

	hashPrefix := stream.ServerSeedHashed
	if len(hashPrefix) > 10 {
		hashPrefix = hashPrefix[:10]
	}
	filename := fmt.Sprintf("stream_%s_%s_%d_bets.csv", hashPrefix, stream.ClientSeed, len(bets))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	record := []string{"sequence", "bet_id", "occurred_at", "received_at", "amount", "payout", "difficulty", "multiplier"}
	if err := cw.Write(record); err != nil {
		logger.Warn("Failed to write export for %s: %v", id, err)
		return
	}
	for _, bet := range bets {
		occurredAt := ""
		if !bet.OccurredAt.IsZero() {
			occurredAt = bet.OccurredAt.UTC().Format(time.RFC3339Nano)
		}
		record = []string{
			strconv.FormatInt(bet.Sequence, 10),
			bet.ID,
			occurredAt,
			bet.ReceivedAt.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(bet.Amount, 'f', -1, 64),
			strconv.FormatFloat(bet.Payout, 'f', -1, 64),
			bet.Difficulty,
			strconv.FormatFloat(bet.Multiplier, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			logger.Warn("Failed to write export for %s: %v", id, err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.Warn("Failed to flush export for %s: %v", id, err)
	}
}
