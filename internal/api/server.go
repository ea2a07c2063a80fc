package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/course-engine/internal/assistant"
	"github.com/terra-clan/course-engine/internal/auth"
	"github.com/terra-clan/course-engine/internal/certificate"
	"github.com/terra-clan/course-engine/internal/cleanup"
	"github.com/terra-clan/course-engine/internal/config"
	"github.com/terra-clan/course-engine/internal/content"
	"github.com/terra-clan/course-engine/internal/health"
	"github.com/terra-clan/course-engine/internal/models"
	"github.com/terra-clan/course-engine/internal/progress"
	"github.com/terra-clan/course-engine/internal/storage"
	"github.com/terra-clan/course-engine/internal/theme"
	"github.com/terra-clan/course-engine/internal/workflow"
)

// CacheInvalidator drops cached catalog copies before a reload
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Deps are the collaborators the API serves
type Deps struct {
	Catalog      *content.Catalog
	Cache        CacheInvalidator
	Progress     *progress.Service
	Store        storage.Repository
	Sessions     *workflow.Registry
	Cleaner      *cleanup.Cleaner
	Certificates *certificate.Emitter
	Assistant    *assistant.Assistant
	Theme        theme.Config
	Health       *health.Registry
	Auth         *auth.Middleware
}

// Server represents the HTTP API server
type Server struct {
	config config.ServerConfig
	router *chi.Mux
	Deps
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Sessions == nil {
		deps.Sessions = workflow.NewRegistry()
	}
	if deps.Health == nil {
		deps.Health = health.NewRegistry(0)
	}
	s := &Server{
		config: cfg,
		Deps:   deps,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition", "X-Certificate-Serial"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.Auth.Identify)
		if s.Cleaner != nil {
			r.Use(s.Cleaner.Middleware)
		}

		// The websocket outlives the request timeout
		r.Get("/assistant/ws", s.handleAssistantWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/theme", s.handleGetTheme)
			r.Post("/assistant/chat", s.handleAssistantChat)

			r.Route("/courses", func(r chi.Router) {
				r.Use(s.requireCatalog)
				r.Get("/", s.handleListCourses)

				r.Route("/{courseId}", func(r chi.Router) {
					r.Get("/", s.handleGetCourse)
					r.Get("/progress", s.handleGetCourseProgress)
					r.With(s.Auth.Require).Post("/start", s.handleStartCourse)
					r.With(s.Auth.Require).Get("/certificate", s.handleGetCertificate)

					r.Route("/modules/{moduleId}/lessons/{lessonId}", func(r chi.Router) {
						r.Get("/", s.handleGetLesson)
						r.Route("/quiz", func(r chi.Router) {
							r.Use(s.Auth.Require)
							r.Post("/start", s.handleStartQuiz)
							r.Post("/submit", s.handleSubmitQuiz)
							r.Post("/retry", s.handleRetryQuiz)
							r.Post("/sync", s.handleSyncQuiz)
						})
					})
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(s.Auth.Require)
				r.With(s.requireCatalog).Get("/me/progress", s.handleMyProgress)
				r.Post("/access-codes/redeem", s.handleRedeemAccessCode)
				r.Get("/learning-paths", s.handleListLearningPaths)
				r.Delete("/learning-paths/{id}", s.handleDeleteLearningPath)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.Auth.RequireRole(models.RoleAdmin))
				r.Post("/access-codes", s.handleCreateAccessCode)
				r.Get("/access-codes", s.handleListAccessCodes)
				r.Delete("/access-codes/{code}", s.handleDeleteAccessCode)
				r.Post("/users/{userId}/roles", s.handleGrantRole)
				r.Post("/catalog/reload", s.handleReloadCatalog)
			})
		})
	})

	s.router = r
}
