package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/missioncontrol/internal/config"
	"github.com/antoniostano/missioncontrol/internal/history"
	"github.com/antoniostano/missioncontrol/internal/observability"
	"github.com/antoniostano/missioncontrol/internal/realtime"
	"github.com/antoniostano/missioncontrol/internal/store"
	"github.com/antoniostano/missioncontrol/internal/tasks"
)

type Server struct {
	cfg      config.Config
	tasks    *tasks.Manager
	history  *history.Recorder
	hub      *realtime.Hub
	store    store.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, manager *tasks.Manager, recorder *history.Recorder, hub *realtime.Hub, st store.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		tasks:   manager,
		history: recorder,
		hub:     hub,
		store:   st,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may open the push channel unless
				// explicitly widened.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				if strings.EqualFold(u.Host, r.Host) {
					return true
				}
				for _, allowed := range cfg.CORSOrigins {
					if allowed != "*" && strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.observeRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/ws", s.handleRealtimeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Patch("/tasks/{id}", s.handleUpdateTask)
		r.Delete("/tasks/{id}", s.handleDeleteTask)

		r.Get("/history", s.handleListHistory)

		r.Get("/ideas", s.handleListIdeas)
		r.Post("/ideas", s.handleCreateIdea)
		r.Delete("/ideas/{id}", s.handleDeleteIdea)

		r.Get("/approvals", s.handleListApprovals)
		r.Post("/approvals", s.handleCreateApproval)
		r.Post("/approvals/{id}/approve", s.handleApprove)
		r.Post("/approvals/{id}/reject", s.handleReject)

		r.Get("/outputs", s.handleListOutputs)
		r.Post("/outputs", s.handleCreateOutput)

		r.Get("/perf/latency", s.handlePerfLatency)
	})

	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

// observeRequests records latency per route pattern. The websocket route is
// skipped because its duration is the lifetime of the connection.
func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		if route == "/ws" {
			return
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTPRequest(route, r.Method, status, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "store not configured")
		return
	}
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	subscribers := 0
	if s.hub != nil {
		subscribers = s.hub.Count()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"store_mode":  s.storeMode(),
		"subscribers": subscribers,
	})
}

func (s *Server) storeMode() string {
	if s.store == nil {
		return "disabled"
	}
	return s.store.Mode()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	// io.EOF means no JSON value at all; a truncated document reports
	// io.ErrUnexpectedEOF and stays a decode error.
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// respondDecodeError maps well-formed JSON with the wrong field types to 422
// and everything else to 400.
func respondDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	}
	respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
