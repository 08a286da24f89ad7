package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/models"
)

func parseMultiplier(r *http.Request) (float64, bool) {
	raw := mux.Vars(r)["multiplier"]
	m, err := strconv.ParseFloat(raw, 64)
	if err != nil || m <= 0 {
		return 0, false
	}
	return m, true
}

func (s *Server) handleListPins(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	pins, err := s.store.ListPins(id)
	if err != nil {
		logger.Error("Failed to list pins for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list pins")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream_id": id, "pins": pins})
}

// handleAddPin starts tracking a multiplier bucket: the accumulator is
// created on first pin and fills from subsequent ingests.
func (s *Server) handleAddPin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Multiplier <= 0 {
		writeError(w, http.StatusBadRequest, "multiplier must be a positive number")
		return
	}
	if err := s.engine.Pin(id, req.Multiplier); err != nil {
		logger.Error("Failed to pin %.2f on %s: %v", req.Multiplier, id, err)
		writeError(w, http.StatusInternalServerError, "failed to pin multiplier")
		return
	}
	bucket := models.BucketKey(req.Multiplier)
	if err := s.store.AddPin(id, bucket, nowUTC()); err != nil {
		logger.Warn("Failed to persist pin %s on %s: %v", bucket, id, err)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"stream_id": id, "bucket": bucket})
}

func (s *Server) handleGetPin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := parseMultiplier(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "multiplier must be a positive number")
		return
	}
	snap, tracked, err := s.engine.Snapshot(id, m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}
	if !tracked {
		writeError(w, http.StatusNotFound, "multiplier is not pinned")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stream_id": id,
		"bucket":    models.BucketKey(m),
		"snapshot":  snap,
	})
}

func (s *Server) handleRemovePin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := parseMultiplier(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "multiplier must be a positive number")
		return
	}
	if err := s.engine.Unpin(id, m); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to unpin multiplier")
		return
	}
	bucket := models.BucketKey(m)
	if err := s.store.RemovePin(id, bucket); err != nil {
		logger.Warn("Failed to remove persisted pin %s on %s: %v", bucket, id, err)
	}
	if err := s.store.DeleteAccumulatorState(id, bucket); err != nil {
		logger.Warn("Failed to drop checkpoint for %s on %s: %v", bucket, id, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream_id": id, "bucket": bucket, "unpinned": true})
}
