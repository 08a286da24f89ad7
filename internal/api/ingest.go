package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/stats"
)

// ingestBet is the flattened wire payload pushed by the bet collector.
type ingestBet struct {
	ID               string  `json:"id"`
	DateTime         string  `json:"dateTime,omitempty"`
	Nonce            int64   `json:"nonce"`
	Amount           float64 `json:"amount"`
	PayoutMultiplier float64 `json:"payoutMultiplier"`
	Payout           float64 `json:"payout"`
	Difficulty       string  `json:"difficulty"`
	ClientSeed       string  `json:"clientSeed"`
	ServerSeedHashed string  `json:"serverSeedHashed"`
}

type ingestResponse struct {
	StreamID string              `json:"streamId"`
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
	Alerts   []models.AlertEvent `json:"alerts,omitempty"`
}

type ingestBatchRequest struct {
	Bets []ingestBet `json:"bets"`
}

func (b ingestBet) toEvent(streamID string, now time.Time) (models.OutcomeEvent, error) {
	event := models.OutcomeEvent{
		ID:         b.ID,
		StreamID:   streamID,
		Sequence:   b.Nonce,
		Multiplier: b.PayoutMultiplier,
		Amount:     b.Amount,
		Payout:     b.Payout,
		Difficulty: b.Difficulty,
		ReceivedAt: now,
	}
	if b.DateTime != "" {
		at, err := time.Parse(time.RFC3339, b.DateTime)
		if err != nil {
			return models.OutcomeEvent{}, err
		}
		event.OccurredAt = at.UTC()
	}
	if err := event.Validate(); err != nil {
		return models.OutcomeEvent{}, err
	}
	return event, nil
}

// handleIngest accepts a single bet, auto-creating the stream for its
// seed pair. Duplicate bet ids are acknowledged without being re-applied.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var bet ingestBet
	if err := json.NewDecoder(r.Body).Decode(&bet); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.ingestBatch(w, []ingestBet{bet}, bet.ServerSeedHashed, bet.ClientSeed)
}

// handleIngestBatch accepts an ascending batch of bets for one seed pair.
func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Bets) == 0 {
		writeError(w, http.StatusBadRequest, "bets must not be empty")
		return
	}
	first := req.Bets[0]
	for _, b := range req.Bets {
		if b.ServerSeedHashed != first.ServerSeedHashed || b.ClientSeed != first.ClientSeed {
			writeError(w, http.StatusBadRequest, "all bets in a batch must share one seed pair")
			return
		}
	}
	s.ingestBatch(w, req.Bets, first.ServerSeedHashed, first.ClientSeed)
}

func (s *Server) ingestBatch(w http.ResponseWriter, bets []ingestBet, serverSeedHashed, clientSeed string) {
	if serverSeedHashed == "" || clientSeed == "" {
		writeError(w, http.StatusBadRequest, "serverSeedHashed and clientSeed are required")
		return
	}
	now := nowUTC()

	stream, created, err := s.store.UpsertStream(serverSeedHashed, clientSeed, now)
	if err != nil {
		logger.Error("Failed to upsert stream: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve stream")
		return
	}
	if created {
		logger.Info("Created stream %s for seed pair %s/%s", stream.ID, serverSeedHashed, clientSeed)
	}

	// Storage dedups by bet id; only freshly inserted events reach the
	// engine, which assumes a duplicate-free ascending batch.
	accepted := make([]models.OutcomeEvent, 0, len(bets))
	rejected := 0
	for _, b := range bets {
		event, err := b.toEvent(stream.ID, now)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid bet: "+err.Error())
			return
		}
		inserted, err := s.store.AddBet(&event)
		if err != nil {
			logger.Error("Failed to store bet %s: %v", event.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to store bet")
			return
		}
		if inserted {
			accepted = append(accepted, event)
		} else {
			rejected++
		}
	}

	resp := ingestResponse{StreamID: stream.ID, Accepted: len(accepted), Rejected: rejected}
	if len(accepted) > 0 {
		result, err := s.engine.Ingest(stream.ID, accepted, now)
		if err != nil {
			if errors.Is(err, stats.ErrInvariant) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			logger.Error("Failed to ingest batch on stream %s: %v", stream.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to ingest batch")
			return
		}
		resp.Alerts = result.Alerts
		s.notifyAndPersist(result.Alerts)
	}
	writeJSON(w, http.StatusOK, resp)
}
