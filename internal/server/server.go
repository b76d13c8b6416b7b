// Package server exposes the chat and trial search endpoints over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/trial-chat/internal/chat"
	"github.com/sells-group/trial-chat/internal/metrics"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/ranking"
	"github.com/sells-group/trial-chat/internal/registry"
)

const maxBodyBytes = 1 << 20

// TurnRunner runs one chat turn and streams its events.
type TurnRunner interface {
	RunTurn(ctx context.Context, history []model.ChatMessage, out chat.Emitter) error
}

// Config wires the server's collaborators.
type Config struct {
	Chat TurnRunner
	// Searcher serves POST /api/search-trials. Its errors reach the caller.
	Searcher    registry.Searcher
	Ranker      *ranking.Ranker
	SearchLimit int
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

// Server holds the HTTP handlers.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Ranker == nil {
		cfg.Ranker = ranking.New(ranking.DefaultMaxResults)
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{cfg: cfg}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.cfg.Metrics.Handler().ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/search-trials", s.handleSearchTrials)
	})
	return r
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			zap.L().Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
