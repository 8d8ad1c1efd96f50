// Package api serves the enrichment pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/expand"
	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/internal/metrics"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/pipeline"
	"github.com/sells-group/topic-enricher/internal/store"
)

const defaultStageTimeout = 600 * time.Second

// SessionCreator creates sessions from a topic. *expand.Expander satisfies it.
type SessionCreator interface {
	CreateSession(ctx context.Context, req expand.Request) (*expand.Result, error)
}

// StageRunner runs stages and reports progress. *pipeline.Pipeline satisfies it.
type StageRunner interface {
	RunStage(ctx context.Context, sessionID string, n int, opts pipeline.Options) (*pipeline.Outcome, error)
	Progress(ctx context.Context, sessionID string) (*pipeline.Progress, error)
}

// Prober runs a single discovery query without persisting anything.
type Prober interface {
	Probe(ctx context.Context, query string) ([]model.Company, error)
}

// GatewayStats exposes outbound call statistics and the response cache.
type GatewayStats interface {
	Stats() gateway.Stats
	ClearCache(ctx context.Context) error
}

// Deps are the collaborators of the API server.
type Deps struct {
	Store        store.Store
	Sessions     SessionCreator
	Pipeline     StageRunner
	Prober       Prober
	Gateway      GatewayStats
	Metrics      *metrics.Metrics
	CORSOrigins  []string
	StageTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	store        store.Store
	sessions     SessionCreator
	pipeline     StageRunner
	prober       Prober
	gateway      GatewayStats
	metrics      *metrics.Metrics
	origins      []string
	stageTimeout time.Duration
}

// New creates a Server.
func New(d Deps) *Server {
	if d.StageTimeout <= 0 {
		d.StageTimeout = defaultStageTimeout
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
	return &Server{
		store:        d.Store,
		sessions:     d.Sessions,
		pipeline:     d.Pipeline,
		prober:       d.Prober,
		gateway:      d.Gateway,
		metrics:      d.Metrics,
		origins:      d.CORSOrigins,
		stageTimeout: d.StageTimeout,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/topics", s.createTopic)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Delete("/clear-all", s.clearAll)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Post("/process-stage/{n}", s.processStage)
				r.Get("/progress", s.progress)
				r.Get("/api-calls", s.apiCalls)
				r.Get("/export", s.export)
			})
		})

		r.Route("/debug", func(r chi.Router) {
			r.Get("/companies", s.debugCompanies)
			r.Get("/api-stats", s.apiStats)
			r.Post("/test-stage1", s.testStage1)
		})
	})
	return r
}

// requestLogger logs one line per request once the response is written.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		if reqID != "" {
			w.Header().Set(middleware.RequestIDHeader, reqID)
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", reqID),
			zap.String("client_ip", r.RemoteAddr),
		}
		if r.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", r.URL.RawQuery))
		}
		switch {
		case status >= http.StatusInternalServerError:
			zap.L().Error("api: request", fields...)
		case strings.HasPrefix(r.URL.Path, "/health"), r.URL.Path == "/metrics":
			zap.L().Debug("api: request", fields...)
		default:
			zap.L().Info("api: request", fields...)
		}
	})
}
