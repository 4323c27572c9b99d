package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 15 * time.Second

type Options struct {
	// AdminToken guards /admin. Empty leaves it open (dev only).
	AdminToken string
	// Metrics, when set, is served at /metrics on the main listener.
	Metrics http.Handler
	Timeout time.Duration
}

type Server struct{ mux *chi.Mux }

// New builds the directory router: health, the public /v1 read API and the
// /admin API and dashboard.
func New(h *Handlers, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	m := chi.NewRouter()

	// middlewares must be registered before any route
	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Timeout(opts.Timeout))
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	m.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	m.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" "+r.URL.Path)
	})

	s := &Server{mux: m}
	if opts.Metrics != nil {
		m.Handle("/metrics", opts.Metrics)
	}
	s.mountPublic(h)
	s.mountAdmin(h, opts.AdminToken)
	return s
}

func (s *Server) Mux() http.Handler { return s.mux }
