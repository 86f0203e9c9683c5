// Package web provides the HTTP status server and local command API of the env-controller daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/env-controller/internal/command"
	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/metrics"
	"github.com/sweeney/env-controller/internal/status"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// Commands is the command path shared with the MQTT transport.
type Commands interface {
	Actuator(target command.Target, payload []byte) (command.Result, command.Outcome)
	Mode(payload []byte) (command.Result, command.Outcome)
}

// Server serves the status page, metrics and the local command API.
type Server struct {
	httpServer *http.Server
	state      *status.ControlState
	commands   Commands
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// New creates a Server. commands and m may be nil to disable the API and /metrics.
func New(addr string, state *status.ControlState, commands Commands, m *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{state: state, commands: commands, metrics: m, log: log}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/", s.wrap("/", http.HandlerFunc(s.handleIndex)))
	r.Method(http.MethodGet, "/index.html", s.wrap("/", http.HandlerFunc(s.handleIndex)))
	r.Method(http.MethodGet, "/index.json", s.wrap("/index.json", http.HandlerFunc(s.handleJSON)))
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.commands != nil {
		r.Route("/api", func(r chi.Router) {
			r.Method(http.MethodPost, "/mode", s.wrap("/api/mode", http.HandlerFunc(s.handleMode)))
			r.Method(http.MethodPost, "/actuators/{target}", s.wrap("/api/actuators", http.HandlerFunc(s.handleActuator)))
		})
	}
	return r
}

func (s *Server) wrap(route string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return s.metrics.WrapHandler(route, h)
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	snap := s.state.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warnw("status page render failed", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, _ *http.Request) {
	snap := s.state.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
