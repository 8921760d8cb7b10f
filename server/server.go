package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/crmpilot/agent/contract"
	orchestratorx "github.com/tanpawarit/crmpilot/agent/orchestrator"
	logx "github.com/tanpawarit/crmpilot/pkg/logger"
)

const defaultSessionID = "default"

type Config struct {
	Addr string `split_words:"true" default:":8080"`
}

// SessionFactory builds one orchestrator per conversation session.
type SessionFactory func() (*orchestratorx.Service, error)

// Server exposes the orchestrator over HTTP: a health check, a run
// endpoint, and prometheus metrics. Sessions are keyed by the optional
// session_id in the run payload; each one owns its own orchestrator and
// its own bounded history.
type Server struct {
	router  chi.Router
	factory SessionFactory

	mu       sync.Mutex
	sessions map[string]*orchestratorx.Service
}

func New(factory SessionFactory) *Server {
	s := &Server{
		factory:  factory,
		sessions: make(map[string]*orchestratorx.Service),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/run", s.handleRun)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) error {
	logger := logx.Component("http")
	logger.Info().Str("addr", addr).Msg("listening")
	return http.ListenAndServe(addr, s.router)
}

type runRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

type runResponse struct {
	Output string `json:"output"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a prompt field")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}

	session, err := s.session(req.SessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to build session orchestrator")
		writeError(w, http.StatusInternalServerError, "configuration", "the service is not configured correctly")
		return
	}

	requestID := uuid.NewString()
	log.Info().Str("request_id", requestID).Str("session_id", sessionKey(req.SessionID)).
		Msg("run request received")

	output, err := session.HandleMessage(r.Context(), req.Prompt)
	if err != nil {
		status, code, message := classifyRunError(err)
		log.Error().Str("request_id", requestID).Err(err).Msg("run request failed")
		writeError(w, status, code, message)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{Output: output})
}

func (s *Server) session(id string) (*orchestratorx.Service, error) {
	key := sessionKey(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[key]; ok {
		return existing, nil
	}
	created, err := s.factory()
	if err != nil {
		return nil, err
	}
	s.sessions[key] = created
	return created, nil
}

func sessionKey(id string) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}
	return defaultSessionID
}

func classifyRunError(err error) (int, string, string) {
	switch {
	case errors.Is(err, contractx.ErrInvalidMessage), errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest, "invalid_request", "the request could not be understood: " + err.Error()
	case errors.Is(err, contractx.ErrModelInvoke), errors.Is(err, contractx.ErrSchemaViolation):
		return http.StatusBadGateway, "model_failure", "the language model is unavailable right now, please try again"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "cancelled", "the request was cancelled before it finished"
	default:
		return http.StatusInternalServerError, "internal", "something went wrong while handling the request"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
