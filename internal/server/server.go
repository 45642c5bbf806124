package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mkerr/briefcast/internal/bulletin"
	"github.com/mkerr/briefcast/internal/config"
	"github.com/mkerr/briefcast/internal/mail"
	"github.com/mkerr/briefcast/internal/search"
	"github.com/mkerr/briefcast/internal/storage"
	"github.com/mkerr/briefcast/internal/validation"
)

// BulletinRunner runs one generation pass. Satisfied by *bulletin.Generator.
type BulletinRunner interface {
	Generate(ctx context.Context, sources []bulletin.SourceSpec, outputPath string) (*bulletin.Result, error)
}

// Server exposes the profile, generation, history, and delivery API.
type Server struct {
	cfg    *config.Config
	store  *storage.Store
	index  *search.Index
	runner BulletinRunner
	sender *mail.Sender
	logger *zap.Logger
	router chi.Router

	// generateMu serializes bulletin runs: concurrent requests within the
	// same second would derive the same output filename and race on it.
	generateMu   sync.Mutex
	urlValidator *validation.FeedURLValidator
}

func New(cfg *config.Config, store *storage.Store, index *search.Index, runner BulletinRunner, sender *mail.Sender, logger *zap.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		store:        store,
		index:        index,
		runner:       runner,
		sender:       sender,
		logger:       logger.Named("server"),
		urlValidator: validation.NewFeedURLValidator(),
	}
	s.routes()
	return s
}

// SetPermissiveValidation relaxes feed URL checks for development and tests.
func (s *Server) SetPermissiveValidation(permissive bool) {
	if permissive {
		s.urlValidator = validation.NewPermissiveFeedURLValidator()
	} else {
		s.urlValidator = validation.NewFeedURLValidator()
	}
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/profiles", func(r chi.Router) {
		r.Get("/", s.handleListProfiles)
		r.Post("/", s.handleCreateProfile)
		r.Delete("/{profileID}", s.handleDeleteProfile)
		r.Post("/{profileID}/switch", s.handleSwitchProfile)
		r.Put("/{profileID}/sources", s.handleUpdateSources)
		r.Post("/{profileID}/sources/custom", s.handleAddCustomSource)
		r.Delete("/{profileID}/sources/custom", s.handleRemoveCustomSource)
	})

	r.Post("/api/generate", s.handleGenerate)
	r.Get("/api/bulletins", s.handleRecentBulletins)
	r.Get("/api/bulletins/search", s.handleSearchBulletins)
	r.Get("/api/download/{filename}", s.handleDownload)
	r.Post("/api/email/{filename}", s.handleEmail)

	r.Handle("/metrics", promhttp.Handler())

	s.router = r
}

// requestLogger logs every request with method, path, status, and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
