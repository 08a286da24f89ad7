package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rewired-gh/pumpsentry/internal/core"
	"github.com/rewired-gh/pumpsentry/internal/logger"
	"github.com/rewired-gh/pumpsentry/internal/models"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sess, err := s.engine.Session(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream_id": id, "rules": sess.Alerts().Rules()})
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var rule models.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule.ID = ""
	rule.Enabled = true
	saved, err := s.engine.ManageRule(id, core.RuleOpAdd, rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SaveRule(saved); err != nil {
		logger.Warn("Failed to persist rule %s: %v", saved.ID, err)
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleUpdateRule replaces a rule definition, or just toggles it when
// the body carries only {"enabled": ...}.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, ruleID := vars["id"], vars["ruleID"]
	sess, err := s.engine.Session(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve session")
		return
	}
	existing, ok := sess.Alerts().Rule(ruleID)
	if !ok {
		writeError(w, http.StatusNotFound, "rule not found: "+ruleID)
		return
	}

	var patch struct {
		models.AlertRule
		Enabled *bool `json:"enabled"`
	}
	patch.AlertRule = existing
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule := patch.AlertRule
	rule.ID = ruleID
	rule.StreamID = id
	if patch.Enabled != nil {
		rule.Enabled = *patch.Enabled
	}
	// A kind change must not carry the old kind's payload along.
	switch rule.Kind {
	case models.RuleGap:
		rule.Cluster, rule.Threshold = nil, nil
	case models.RuleCluster:
		rule.Gap, rule.Threshold = nil, nil
	case models.RuleThreshold:
		rule.Gap, rule.Cluster = nil, nil
	}
	if _, err := s.engine.ManageRule(id, core.RuleOpUpdate, rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SaveRule(rule); err != nil {
		logger.Warn("Failed to persist rule %s: %v", rule.ID, err)
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, ruleID := vars["id"], vars["ruleID"]
	if _, err := s.engine.ManageRule(id, core.RuleOpRemove, models.AlertRule{ID: ruleID}); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.store.DeleteRule(ruleID); err != nil {
		logger.Warn("Failed to delete persisted rule %s: %v", ruleID, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "rule_id": ruleID})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.GetStream(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	limit := queryInt(r, "limit", defaultPageSize, maxPageSize)
	alerts, err := s.store.ListAlerts(id, limit)
	if err != nil {
		logger.Error("Failed to list alerts for %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stream_id": id, "alerts": alerts})
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.AcknowledgeAlert(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "alert_id": id})
}
