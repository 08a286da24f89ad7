package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rewired-gh/pumpsentry/internal/core"
	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/stats"
	"github.com/rewired-gh/pumpsentry/internal/storage"
)

type metricsResponse struct {
	StreamID          string                       `json:"stream_id"`
	TotalBets         int64                        `json:"total_bets"`
	HighestMultiplier float64                      `json:"highest_multiplier"`
	HitRate           float64                      `json:"hit_rate"`
	Accumulators      map[string]stats.GapSnapshot `json:"accumulators"`
	Density           []stats.DensityBucket        `json:"density"`
	Rolling           core.RollingSnapshot         `json:"rolling"`
	TopPeaks          []storage.BetRecord          `json:"top_peaks"`
}

// handleMetrics returns the pre-aggregated analytics view: stream KPIs,
// per-pin accumulator snapshots, density buckets, rolling stats, and top
// peaks.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	totals, err := s.store.Totals(id)
	if err != nil {
		logger.Error("Failed to aggregate stream %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to aggregate stream")
		return
	}
	peaksLimit := queryInt(r, "top_peaks_limit", 10, 100)
	peaks, err := s.store.TopPeaks(id, peaksLimit)
	if err != nil {
		logger.Error("Failed to load peaks for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load peaks")
		return
	}
	sess, err := s.engine.Session(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}

	// Full-history hit rate; the rolling snapshot carries the short-horizon
	// rate alongside.
	var hitRate float64
	if totals.TotalBets > 0 && totals.LastReceivedAt.After(totals.FirstReceivedAt) {
		hitRate = float64(totals.TotalBets) * 60.0 / totals.LastReceivedAt.Sub(totals.FirstReceivedAt).Seconds()
	}

	accumulators := make(map[string]stats.GapSnapshot)
	for _, bucket := range sess.Pins() {
		if snap, ok := sess.Snapshot(bucket); ok {
			accumulators[models.BucketKey(bucket)] = snap
		}
	}

	writeJSON(w, http.StatusOK, metricsResponse{
		StreamID:          id,
		TotalBets:         totals.TotalBets,
		HighestMultiplier: totals.HighestMultiplier,
		HitRate:           hitRate,
		Accumulators:      accumulators,
		Density:           sess.Density(),
		Rolling:           sess.Rolling(),
		TopPeaks:          peaks,
	})
}

type gapEntry struct {
	Sequence   int64   `json:"sequence"`
	Multiplier float64 `json:"multiplier"`
	Gap        int64   `json:"gap"`
	Known      bool    `json:"known"`
}

// handleGaps runs a batch gap analysis over the stream's stored bets.
// mode=exact matches same-bucket hits; mode=threshold matches the most
// recent hit at least as large. An optional multiplier filters the
// output to one bucket.
func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	mode := stats.GapMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = stats.GapExact
	}
	if mode != stats.GapExact && mode != stats.GapThreshold {
		writeError(w, http.StatusBadRequest, "mode must be one of: exact, threshold")
		return
	}
	var filter float64
	if raw := r.URL.Query().Get("multiplier"); raw != "" {
		m, err := strconv.ParseFloat(raw, 64)
		if err != nil || m <= 0 {
			writeError(w, http.StatusBadRequest, "multiplier must be a positive number")
			return
		}
		filter = models.Quantize(m)
	}

	events, err := s.store.BetsBySequence(id)
	if err != nil {
		logger.Error("Failed to load bets for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load bets")
		return
	}

	computer := stats.NewGapComputer(mode)
	entries := []gapEntry{}
	for _, sample := range computer.Compute(events) {
		bucket := models.Quantize(sample.Event.Multiplier)
		if filter != 0 && bucket != filter {
			continue
		}
		entries = append(entries, gapEntry{
			Sequence:   sample.Event.Sequence,
			Multiplier: bucket,
			Gap:        sample.Gap,
			Known:      sample.Known,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stream_id": id,
		"mode":      mode,
		"gaps":      entries,
	})
}
