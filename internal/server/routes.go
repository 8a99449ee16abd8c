package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/tether/internal/model"
)

const (
	defaultTopLimit      = 10
	defaultNeglectedDays = 30
	defaultInsightLimit  = 50
	maxBodyBytes         = 1 << 20
)

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return fmt.Errorf("%s: %w", msg, errBadRequest)
}

// decode reads a JSON body into v. An empty body is accepted when optional.
func decode(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return badRequest("invalid json")
	}
	return nil
}

// intParam parses a positive integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, badRequest(name + " must be a positive integer")
	}
	return n, nil
}

func userID(r *http.Request) string {
	return chi.URLParam(r, "userID")
}

func (s *Server) handleLogInteraction(w http.ResponseWriter, r *http.Request) {
	var in model.Interaction
	if err := decode(r, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.UserID = userID(r)
	if in.OccurredAt.IsZero() {
		s.writeError(w, r, badRequest("occurred_at required"))
		return
	}
	if err := s.engine.LogInteraction(r.Context(), &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleDeclareValue(w http.ResponseWriter, r *http.Request) {
	var v model.CoreValue
	if err := decode(r, &v, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	v.UserID = userID(r)
	if err := s.engine.DeclareValue(r.Context(), &v); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleDeclareFocusArea(w http.ResponseWriter, r *http.Request) {
	var f model.FocusArea
	if err := decode(r, &f, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	f.UserID = userID(r)
	if err := s.engine.DeclareFocusArea(r.Context(), &f); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.Summary(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	ws, err := s.engine.WeeklySummary(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleFocusProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.engine.FocusAreaProgress(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"focus_areas": progress})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.InteractionPatterns(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Streak(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	all := r.URL.Query().Get("all") == "true"
	list, err := s.engine.Alerts.List(r.Context(), userID(r), all, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list, "count": len(list)})
}

func (s *Server) handleCheckAlerts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Types []model.AlertType `json:"types"`
	}
	if err := decode(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.Alerts.RunCheck(r.Context(), userID(r), req.Types...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Alerts.Acknowledge(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.engine.Alerts.Dismiss(r.Context(), chi.URLParam(r, "alertID"), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDriftAlerts(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Drift.Alerts(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list, "count": len(list)})
}

func (s *Server) handleDriftRealTime(w http.ResponseWriter, r *http.Request) {
	rt, err := s.engine.Drift.RealTime(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleTopRelationships(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultTopLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	top, err := s.engine.Metrics.TopRelationships(r.Context(), userID(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": top})
}

func (s *Server) handleNeglectedRelationships(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", defaultNeglectedDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.engine.Metrics.NeglectedRelationships(r.Context(), userID(r), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": list, "days": days})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultInsightLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.engine.Insights(r.Context(), userID(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": list})
}
