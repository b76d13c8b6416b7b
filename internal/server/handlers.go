package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/trial-chat/internal/llm"
	"github.com/sells-group/trial-chat/internal/model"
	"github.com/sells-group/trial-chat/internal/sse"
	"github.com/sells-group/trial-chat/pkg/clinicaltrials"
)

// searchProbability is the weight given to each condition a caller names
// directly, since no model estimated it.
const searchProbability = 50

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages []model.ChatMessage `json:"messages"`
}

// SearchRequest is the body of POST /api/search-trials.
type SearchRequest struct {
	Age        *int     `json:"age,omitempty"`
	Conditions []string `json:"conditions"`
	Location   string   `json:"location,omitempty"`
}

// SearchResponse is the body of a successful POST /api/search-trials.
type SearchResponse struct {
	Trials []model.TrialSummary `json:"trials"`
}

// ErrorResponse is the JSON error body of the search endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sw := sse.NewWriter(w)
	err := s.cfg.Chat.RunTurn(r.Context(), req.Messages, sw)
	switch {
	case err == nil:
		sw.Start()
	case sw.Started():
		zap.L().Warn("server: chat stream ended early",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	case errors.Is(err, llm.ErrMissingCredential):
		http.Error(w, "LLM API key not configured", http.StatusInternalServerError)
	default:
		zap.L().Error("server: chat turn failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func validateMessages(msgs []model.ChatMessage) error {
	if len(msgs) == 0 {
		return errors.New("messages are required")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("messages[%d]: content is empty", i)
		}
	}
	return nil
}

func (s *Server) handleSearchTrials(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	conditions := make([]string, 0, len(req.Conditions))
	for _, c := range req.Conditions {
		if c = strings.TrimSpace(c); c != "" {
			conditions = append(conditions, c)
		}
	}
	if len(conditions) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "conditions are required"})
		return
	}
	if req.Age != nil && *req.Age < 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "age must be non-negative"})
		return
	}

	trials, err := s.cfg.Searcher.Search(r.Context(), clinicaltrials.SearchParams{
		Conditions: conditions,
		Age:        req.Age,
		Location:   strings.TrimSpace(req.Location),
		MaxResults: s.cfg.SearchLimit,
	})
	if err != nil {
		zap.L().Error("server: trial search failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Strings("conditions", conditions),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "trial search failed", Details: err.Error()})
		return
	}

	entities := model.ExtractedEntities{Age: req.Age, Location: req.Location, ReadyToSearch: true}
	for _, c := range conditions {
		entities.Conditions = append(entities.Conditions, model.Condition{Name: c, Probability: searchProbability})
	}
	ranked := s.cfg.Ranker.Rank(trials, entities)

	writeJSON(w, http.StatusOK, SearchResponse{Trials: model.Summaries(ranked)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}
