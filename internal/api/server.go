// Package api exposes the REST surface: ingest, stream management, pins,
// bookmarks, rules, alerts, metrics, and CSV export.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rewired-gh/pumpsentry/internal/core"
	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/models"
	"github.com/rewired-gh/pumpsentry/internal/storage"
)

// Notifier delivers fired alerts to an external channel.
type Notifier interface {
	SendAlerts(alerts []models.AlertEvent) error
}

// Server wires the engine and storage behind HTTP handlers.
type Server struct {
	engine      *core.Engine
	store       *storage.Storage
	notifier    Notifier
	ingestToken string
}

// NewServer creates a server. notifier may be nil to disable notifications;
// an empty ingestToken disables ingest authentication.
func NewServer(engine *core.Engine, store *storage.Storage, notifier Notifier, ingestToken string) *Server {
	return &Server{
		engine:      engine,
		store:       store,
		notifier:    notifier,
		ingestToken: ingestToken,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	live := r.PathPrefix("/live").Subrouter()
	live.HandleFunc("/ingest", s.requireToken(s.handleIngest)).Methods(http.MethodPost)
	live.HandleFunc("/ingest/batch", s.requireToken(s.handleIngestBatch)).Methods(http.MethodPost)

	live.HandleFunc("/streams", s.handleListStreams).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}", s.handleGetStream).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}", s.handleUpdateStream).Methods(http.MethodPatch)
	live.HandleFunc("/streams/{id}", s.handleDeleteStream).Methods(http.MethodDelete)
	live.HandleFunc("/streams/{id}/bets", s.handleListBets).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}/tail", s.handleTail).Methods(http.MethodGet)

	live.HandleFunc("/streams/{id}/pins", s.handleListPins).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}/pins", s.handleAddPin).Methods(http.MethodPost)
	live.HandleFunc("/streams/{id}/pins/{multiplier}", s.handleGetPin).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}/pins/{multiplier}", s.handleRemovePin).Methods(http.MethodDelete)

	live.HandleFunc("/streams/{id}/rules", s.handleListRules).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}/rules", s.handleAddRule).Methods(http.MethodPost)
	live.HandleFunc("/streams/{id}/rules/{ruleID}", s.handleUpdateRule).Methods(http.MethodPatch)
	live.HandleFunc("/streams/{id}/rules/{ruleID}", s.handleRemoveRule).Methods(http.MethodDelete)

	live.HandleFunc("/streams/{id}/alerts", s.handleListAlerts).Methods(http.MethodGet)
	live.HandleFunc("/alerts/{id}/ack", s.handleAckAlert).Methods(http.MethodPost)

	live.HandleFunc("/streams/{id}/bookmarks", s.handleListBookmarks).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}/bookmarks", s.handleAddBookmark).Methods(http.MethodPost)
	live.HandleFunc("/bookmarks/{bookmarkID}", s.handleUpdateBookmark).Methods(http.MethodPatch)
	live.HandleFunc("/bookmarks/{bookmarkID}", s.handleDeleteBookmark).Methods(http.MethodDelete)

	live.HandleFunc("/streams/{id}/export.csv", s.handleExportCSV).Methods(http.MethodGet)

	live.HandleFunc("/streams/{id}/metrics", s.handleMetrics).Methods(http.MethodGet)
	live.HandleFunc("/streams/{id}/gaps", s.handleGaps).Methods(http.MethodGet)
	return r
}

// requireToken rejects ingest requests without the configured token.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ingestToken != "" && r.Header.Get("X-Ingest-Token") != s.ingestToken {
			writeError(w, http.StatusUnauthorized, "invalid or missing X-Ingest-Token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// notifyAndPersist records fired alerts and forwards them to the notifier.
func (s *Server) notifyAndPersist(alerts []models.AlertEvent) {
	for _, a := range alerts {
		if err := s.store.AddAlert(a); err != nil {
			logger.Warn("Failed to persist alert %s: %v", a.ID, err)
		}
	}
	if s.notifier != nil && len(alerts) > 0 {
		if err := s.notifier.SendAlerts(alerts); err != nil {
			logger.Warn("Failed to send alert notification: %v", err)
		}
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
