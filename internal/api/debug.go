package api

import (
	"net/http"
	"time"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/store"
)

// debugCompanies handles GET /api/debug/companies.
func (s *Server) debugCompanies(w http.ResponseWriter, r *http.Request) {
	filter := store.CompanyFilter{SessionID: r.URL.Query().Get("session_id")}
	if raw := r.URL.Query().Get("stage"); raw != "" {
		st, err := model.ParseStage(raw)
		if err != nil {
			writeError(w, r, apperr.Validation("unknown stage %q", raw))
			return
		}
		filter.Stage = st
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, r, err)
		return
	}

	companies, err := s.store.ListCompanies(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := s.store.CountCompanies(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if companies == nil {
		companies = []model.Company{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"count":     len(companies),
		"total":     total,
		"companies": companies,
	})
}

type apiStatsResponse struct {
	Success bool `json:"success"`
	gateway.Stats
}

// apiStats handles GET /api/debug/api-stats.
func (s *Server) apiStats(w http.ResponseWriter, _ *http.Request) {
	resp := apiStatsResponse{Success: true}
	if s.gateway != nil {
		resp.Stats = s.gateway.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// testStage1 handles POST /api/debug/test-stage1.
func (s *Server) testStage1(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	companies, err := s.prober.Probe(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if companies == nil {
		companies = []model.Company{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"query":     req.Query,
		"count":     len(companies),
		"companies": companies,
		"duration":  time.Since(start).Seconds(),
	})
}

// health handles GET /health.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
