package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"collabd/internal/auth"
	"collabd/internal/collab"
	"collabd/internal/gateway"
	"collabd/internal/store"
	"collabd/pkg/types"
)

// Server is the HTTP surface: health, read-only session snapshots for resync,
// conflict resolution, metrics, and the websocket endpoint. No business
// logic lives here.
type Server struct {
	coord    *collab.Coordinator
	store    store.AnswerStore
	verifier *auth.Verifier
	ws       *gateway.Handler
	registry *gateway.Registry
	log      *zap.Logger
	router   chi.Router
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resolveConflictRequest struct {
	Value string `json:"value"`
}

func NewServer(coord *collab.Coordinator, st store.AnswerStore, verifier *auth.Verifier, ws *gateway.Handler, registry *gateway.Registry, log *zap.Logger) *Server {
	s := &Server{
		coord:    coord,
		store:    st,
		verifier: verifier,
		ws:       ws,
		registry: registry,
		log:      log,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", s.health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", s.ws.ServeWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/assessments/{assessmentID}/session", s.sessionSnapshot)
		r.Get("/assessments/{assessmentID}/questions/{questionID}/answer", s.getAnswer)
		r.Get("/conflicts/{conflictID}", s.getConflict)
		r.Post("/conflicts/{conflictID}/resolve", s.resolveConflict)
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	storeStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		storeStatus = err.Error()
	}

	writeJSON(w, status, map[string]any{
		"status":      http.StatusText(status),
		"timestamp":   time.Now(),
		"store":       storeStatus,
		"sessions":    s.coord.Stats(),
		"connections": s.registry.Count(),
	})
}

func (s *Server) sessionSnapshot(w http.ResponseWriter, r *http.Request) {
	assessmentID := chi.URLParam(r, "assessmentID")
	snapshot := s.coord.Snapshot(assessmentID)
	if snapshot == nil {
		s.sendError(w, http.StatusNotFound, "no active session for assessment")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) getAnswer(w http.ResponseWriter, r *http.Request) {
	answer, err := s.store.GetAnswer(r.Context(),
		chi.URLParam(r, "assessmentID"), chi.URLParam(r, "questionID"))
	if err != nil {
		if errors.Is(err, store.ErrAnswerNotFound) {
			s.sendError(w, http.StatusNotFound, "answer not found")
			return
		}
		s.log.Error("failed to load answer", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to load answer")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) getConflict(w http.ResponseWriter, r *http.Request) {
	conflict, err := s.store.GetConflict(r.Context(), chi.URLParam(r, "conflictID"))
	if err != nil {
		if errors.Is(err, store.ErrConflictNotFound) {
			s.sendError(w, http.StatusNotFound, "conflict not found")
			return
		}
		s.log.Error("failed to load conflict", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to load conflict")
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

// resolveConflict closes a detected double-write with an explicit choice.
// The resolver's identity comes from the bearer token.
func (s *Server) resolveConflict(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.bearerIdentity(r)
	if !ok {
		s.sendError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conflict, err := s.coord.ResolveConflict(r.Context(), chi.URLParam(r, "conflictID"), identity.UserID, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflictNotFound):
			s.sendError(w, http.StatusNotFound, "conflict not found")
		case errors.Is(err, store.ErrConflictResolved):
			s.sendError(w, http.StatusConflict, "conflict already resolved")
		default:
			s.log.Error("failed to resolve conflict", zap.Error(err))
			s.sendError(w, http.StatusInternalServerError, "failed to resolve conflict")
		}
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

func (s *Server) bearerIdentity(r *http.Request) (types.Identity, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return types.Identity{}, false
	}
	identity, err := s.verifier.Verify(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
	if err != nil {
		return types.Identity{}, false
	}
	return identity, true
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
