// Package ops serves the operator endpoints: health, metrics and tick
// inspection.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"collision-hub/internal/hub"
	"collision-hub/internal/models"
	"collision-hub/internal/utils"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// HealthFunc reports the state of one dependency.
type HealthFunc func() error

// TickSource is the part of the hub the ops listener needs.
type TickSource interface {
	LastResult() *hub.TickResult
	Tick(ctx context.Context) (*hub.TickResult, error)
}

// CommandLogSource reads the command audit log.
type CommandLogSource interface {
	RecentCommandLogs(deviceID string, limit int) ([]models.CommandLog, error)
}

const (
	defaultCommandLimit = 50
	maxCommandLimit     = 500
)

type Server struct {
	server   *http.Server
	ticks    TickSource
	checks   map[string]HealthFunc
	commands CommandLogSource
}

type Option func(*Server)

// WithCommandLogs enables /debug/commands. Without it the route answers 503.
func WithCommandLogs(src CommandLogSource) Option {
	return func(s *Server) { s.commands = src }
}

// NewServer builds the ops listener. checks maps a dependency name to its
// health probe.
func NewServer(addr string, ticks TickSource, metricsHandler http.Handler, checks map[string]HealthFunc, opts ...Option) *Server {
	s := &Server{ticks: ticks, checks: checks}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.health).Methods("GET")
	router.Handle("/metrics", metricsHandler).Methods("GET")
	router.HandleFunc("/debug/tick", s.lastTick).Methods("GET")
	router.HandleFunc("/debug/tick", s.forceTick).Methods("POST")
	router.HandleFunc("/debug/commands/{device_id}", s.recentCommands).Methods("GET")

	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	utils.Logger.Infof("Ops listener on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]interface{}{
		"status":       "running",
		"dependencies": deps,
		"timestamp":    time.Now().Format(time.RFC3339),
	}
	if last := s.ticks.LastResult(); last != nil {
		body["last_tick"] = last.Tick
		body["last_tick_at"] = last.At.Format(time.RFC3339Nano)
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

func (s *Server) lastTick(w http.ResponseWriter, r *http.Request) {
	last := s.ticks.LastResult()
	if last == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "no tick has completed yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// forceTick runs one tick out of band. It is skipped like any other tick
// if the scheduled one is still running.
func (s *Server) forceTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.ticks.Tick(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, hub.ErrTickSkipped), errors.Is(err, hub.ErrFleetIncomplete):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "skipped", "message": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
	}
}

// recentCommands lists the newest audit entries of one agent, newest first.
func (s *Server) recentCommands(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "command audit log is disabled",
		})
		return
	}

	limit := defaultCommandLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"status":  "error",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}
	if limit > maxCommandLimit {
		limit = maxCommandLimit
	}

	deviceID := mux.Vars(r)["device_id"]
	logs, err := s.commands.RecentCommandLogs(deviceID, limit)
	if err != nil {
		utils.ForDevice(deviceID).WithError(err).Error("Failed to read command log")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if logs == nil {
		logs = []models.CommandLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"commands":  logs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger.WithError(err).Warn("Failed to write ops response")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		utils.Logger.WithFields(logrus.Fields{
			"method":  r.Method,
			"uri":     r.RequestURI,
			"remote":  r.RemoteAddr,
			"latency": time.Since(start).String(),
		}).Debug("Ops request")
	})
}
