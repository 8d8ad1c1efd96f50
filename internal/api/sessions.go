package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/expand"
	"github.com/sells-group/topic-enricher/internal/export"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/pipeline"
	"github.com/sells-group/topic-enricher/internal/store"
)

type createTopicResponse struct {
	SessionID string        `json:"session_id"`
	MainTopic string        `json:"main_topic"`
	Queries   []model.Query `json:"queries"`
}

// createTopic handles POST /api/topics.
func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var req expand.Request
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.sessions.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := map[string]any{
		"success": true,
		"data": createTopicResponse{
			SessionID: res.Session.ID,
			MainTopic: res.Session.Topic,
			Queries:   res.Session.Queries,
		},
	}
	if res.Warning != nil {
		body["warning"] = apperr.Message(res.Warning)
	}
	writeJSON(w, http.StatusOK, body)
}

type processStageRequest struct {
	Force          bool `json:"force"`
	TimeoutSeconds int  `json:"timeout_seconds,omitempty"`
}

// processStage handles POST /api/sessions/{id}/process-stage/{n}.
func (s *Server) processStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw := chi.URLParam(r, "n")
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, apperr.Validation("stage must be a number between 1 and 4, got %q", raw))
		return
	}
	var req processStageRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TimeoutSeconds < 0 {
		writeError(w, r, apperr.Validation("timeout_seconds must not be negative"))
		return
	}
	timeout := s.stageTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	out, err := s.pipeline.RunStage(r.Context(), id, n, pipeline.Options{Force: req.Force, Timeout: timeout})
	if out == nil {
		writeError(w, r, err)
		return
	}

	body := map[string]any{
		"success":  err == nil,
		"stage":    n,
		"cached":   false,
		"duration": out.Seconds(),
		"result":   out.Result,
		"partial":  out.Partial(),
		"run_id":   out.RunID,
	}
	if err == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}
	body["error"] = apperr.Message(err)
	body["fatal"] = out.Fatal
	status := http.StatusOK
	if out.Fatal {
		status = apperr.HTTPStatus(err)
	}
	writeJSON(w, status, body)
}

type sessionSummary struct {
	SessionID        string              `json:"session_id"`
	TopicDescription string              `json:"topic_description"`
	MainTopic        string              `json:"main_topic"`
	CreatedAt        time.Time           `json:"created_at"`
	SearchQuery      string              `json:"search_query"`
	Status           model.SessionStatus `json:"status"`
	LastStage        int                 `json:"last_stage"`
	QueryCount       int                 `json:"query_count"`
	TargetCount      int                 `json:"target_count"`
}

// listSessions handles GET /api/sessions.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := model.SessionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.SessionStatusCreated, model.SessionStatusProcessing, model.SessionStatusCompleted, model.SessionStatusFailed:
	default:
		writeError(w, r, apperr.Validation("unknown session status %q", status))
		return
	}

	sessions, err := s.store.ListSessions(r.Context(), store.SessionFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, r, err)
		return
	}
	data := make([]sessionSummary, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		data = append(data, sessionSummary{
			SessionID:        sess.ID,
			TopicDescription: sess.Topic,
			MainTopic:        sess.Topic,
			CreatedAt:        sess.CreatedAt,
			SearchQuery:      sess.SearchQuery(),
			Status:           sess.Status,
			LastStage:        sess.LastStage,
			QueryCount:       len(sess.Queries),
			TargetCount:      sess.TargetCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(data), "data": data})
}

// getSession handles GET /api/sessions/{id}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	counts, err := s.store.CountByStage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"data":            sess,
		"stage_counts":    counts,
		"total_companies": counts.Total(),
	})
}

// deleteSession handles DELETE /api/sessions/{id}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	zap.L().Info("api: session deleted", zap.String("session_id", id))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id})
}

// clearAll handles DELETE /api/sessions/clear-all.
func (s *Server) clearAll(w http.ResponseWriter, r *http.Request) {
	tables, err := s.store.ClearAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.gateway != nil {
		if err := s.gateway.ClearCache(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	zap.L().Warn("api: all sessions cleared", zap.Strings("tables", tables))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cleared_tables": tables})
}

// progress handles GET /api/sessions/{id}/progress.
func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	p, err := s.pipeline.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": p})
}

// apiCalls handles GET /api/sessions/{id}/api-calls.
func (s *Server) apiCalls(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	calls, err := s.store.ListAPICalls(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if calls == nil {
		calls = []model.APICall{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": len(calls), "data": calls})
}

// export handles GET /api/sessions/{id}/export.
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	companies, err := store.ListAllCompanies(r.Context(), s.store, store.CompanyFilter{SessionID: id})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, companies); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session-%s.%s"`, id, format))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Warn("api: write export", zap.String("session_id", id), zap.Error(err))
	}
}
