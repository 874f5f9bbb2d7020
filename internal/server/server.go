// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/howard-nolan/sgenius/internal/config"
	"github.com/howard-nolan/sgenius/internal/normalize"
	"github.com/howard-nolan/sgenius/internal/prompt"
	"github.com/howard-nolan/sgenius/internal/provider"
)

// Server holds the HTTP router and all dependencies that handlers need.
// Nothing on it is mutated after New returns, so concurrent requests
// share it freely. The quiz schema is compiled once here rather than per
// request; compiling it is far more work than validating against it.
//
// The generator is the only way out to the model. Tests swap it for a
// stub, and main decides between the REST and genai backends.
type Server struct {
	router     chi.Router
	cfg        *config.Config
	gen        provider.Generator
	log        *slog.Logger
	quizSchema *normalize.Schema
	chatFormat provider.Format
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler. Handlers reach the remote service only
// through gen.
func New(cfg *config.Config, gen provider.Generator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		gen:        gen,
		log:        logger,
		quizSchema: normalize.MustCompileSchema("quiz", prompt.QuizSchema),
		chatFormat: provider.FormatText,
	}
	if cfg.Chat.Format == config.ChatFormatJSON {
		s.chatFormat = provider.FormatJSON
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions,
// gathered in one method so the routing table is easy to scan.
func (s *Server) routes() {
	r := chi.NewRouter()

	// --- Global middleware ---
	// RequestID first so every later layer (logs, error bodies) can see it.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(recordMetrics)

	// Recoverer turns a panic in a handler into a 500 instead of
	// crashing the whole process.
	r.Use(middleware.Recoverer)

	// CORS runs before routing so preflight OPTIONS requests are answered
	// even though no route registers OPTIONS.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// --- Routes ---
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/chat", s.handleChat)
	r.Route("/api", func(r chi.Router) {
		r.Post("/feedback", s.handleFeedback)
		r.Post("/hint", s.handleHint)
		r.Post("/generate-quiz", s.handleGenerateQuiz)
	})

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface. Every incoming
// request flows through this method, and we just delegate to chi's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
