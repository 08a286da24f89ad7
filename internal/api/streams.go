package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type streamSummary struct {
	models.Stream
	TotalBets         int64   `json:"total_bets"`
	HighestMultiplier float64 `json:"highest_multiplier"`
}

type streamDetail struct {
	streamSummary
	LastSequence int64               `json:"last_sequence"`
	RecentBets   []storage.BetRecord `json:"recent_bets"`
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	streams, err := s.store.ListStreams()
	if err != nil {
		logger.Error("Failed to list streams: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list streams")
		return
	}
	summaries := make([]streamSummary, 0, len(streams))
	for _, stream := range streams {
		totals, err := s.store.Totals(stream.ID)
		if err != nil {
			logger.Error("Failed to aggregate stream %s: %v", stream.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to aggregate streams")
			return
		}
		summaries = append(summaries, streamSummary{
			Stream:            *stream,
			TotalBets:         totals.TotalBets,
			HighestMultiplier: totals.HighestMultiplier,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"streams": summaries,
		"total":   len(summaries),
	})
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	stream, err := s.store.GetStream(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	totals, err := s.store.Totals(id)
	if err != nil {
		logger.Error("Failed to aggregate stream %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to aggregate stream")
		return
	}
	recent, _, err := s.store.ListBets(id, defaultPageSize, int(max(totals.TotalBets-defaultPageSize, 0)))
	if err != nil {
		logger.Error("Failed to load recent bets for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load recent bets")
		return
	}
	sess, err := s.engine.Session(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}
	writeJSON(w, http.StatusOK, streamDetail{
		streamSummary: streamSummary{
			Stream:            *stream,
			TotalBets:         totals.TotalBets,
			HighestMultiplier: totals.HighestMultiplier,
		},
		LastSequence: sess.LastSequence(),
		RecentBets:   recent,
	})
}

func (s *Server) handleUpdateStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.store.UpdateStreamNotes(id, req.Notes); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true, "stream_id": id})
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	betsDeleted, err := s.store.DeleteStream(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.engine.Drop(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":      true,
		"stream_id":    id,
		"bets_deleted": betsDeleted,
	})
}

func (s *Server) handleListBets(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	limit := queryInt(r, "limit", defaultPageSize, maxPageSize)
	offset := queryInt(r, "offset", 0, 1<<30)
	bets, total, err := s.store.ListBets(id, limit, offset)
	if err != nil {
		logger.Error("Failed to list bets for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bets":      bets,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
		"stream_id": id,
	})
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sinceID := int64(queryInt(r, "since_id", 0, 1<<62))
	limit := queryInt(r, "limit", defaultPageSize, maxPageSize)
	bets, hasMore, err := s.store.TailBets(id, sinceID, limit)
	if err != nil {
		logger.Error("Failed to tail bets for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to tail bets")
		return
	}
	var lastID int64
	if len(bets) > 0 {
		lastID = bets[len(bets)-1].RowID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bets":     bets,
		"last_id":  lastID,
		"has_more": hasMore,
	})
}

func queryInt(r *http.Request, name string, fallback, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
