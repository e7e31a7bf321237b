package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/trainhub/tms/repository"
	ws "github.com/trainhub/tms/websocket"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Server holds all server dependencies
type Server struct {
	config           *Config
	repo             *repository.GORMRepository
	fileStore        FileStore
	notifier         Notifier
	limiter          Limiter
	authService      *AuthService
	programService   *ProgramService
	enrollService    *EnrollmentService
	accountService   *AccountService
	authEndpoints    *AuthEndpoints
	programEndpoints *ProgramEndpoints
	accountEndpoints *AccountEndpoints
	wsHub            *ws.Hub
	upgrader         websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the repository backing all services.
func (s *Server) SetDatabase(repo *repository.GORMRepository) {
	s.repo = repo
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	fileStore, err := NewLocalFileStore(s.config.Uploads.Dir)
	if err != nil {
		return err
	}
	s.fileStore = fileStore
	s.notifier = LogNotifier{}

	if s.config.Redis.URL != "" {
		opts, err := redis.ParseURL(s.config.Redis.URL)
		if err != nil {
			slog.Error("Invalid redis URL, falling back to in-memory rate limiter", "error", err)
			s.limiter = NewMemoryLimiter()
		} else {
			s.limiter = NewRedisLimiter(redis.NewClient(opts))
			slog.Info("Redis rate limiter initialized")
		}
	} else {
		s.limiter = NewMemoryLimiter()
	}

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	if s.config.JWT.Secret != "" && s.repo != nil {
		s.authService = NewAuthService(s.repo, s.notifier, s.config.JWT)
		s.programService = NewProgramService(s.repo, s.fileStore, &hubPublisher{hub: s.wsHub})
		s.enrollService = NewEnrollmentService(s.repo, s.fileStore)
		s.accountService = NewAccountService(s.repo)
		s.authEndpoints = NewAuthEndpoints(s.authService, s.repo)
		s.programEndpoints = NewProgramEndpoints(s.programService, s.enrollService)
		s.accountEndpoints = NewAccountEndpoints(s.accountService)
		slog.Info("Services initialized")
	} else {
		slog.Warn("JWT secret or database missing, API routes disabled")
	}

	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// Uploaded files (program images, CVs)
	if s.config.Uploads.Dir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/",
			http.FileServer(http.Dir(s.config.Uploads.Dir))))
	}

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		if s.authEndpoints != nil {
			r.Route("/auth", func(r chi.Router) {
				// Public auth routes (no middleware)
				r.Post("/register", s.authEndpoints.RegisterHandler)
				r.With(RateLimit(s.limiter, loginRateLimit, loginRateWindow)).
					Post("/login", s.authEndpoints.LoginHandler)
				r.Post("/refresh", s.authEndpoints.RefreshHandler)

				// Protected auth routes (with middleware)
				r.Group(func(r chi.Router) {
					r.Use(s.authService.Middleware)
					r.Post("/logout", s.authEndpoints.LogoutHandler)
					r.Get("/me", s.authEndpoints.MeHandler)
				})
			})
		}

		// Program, enrollment and account routes (protected)
		if s.programEndpoints != nil && s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				s.programEndpoints.RegisterRoutes(r)
				s.accountEndpoints.RegisterRoutes(r)
				r.Get("/ws", s.websocketHandlerFunc)
			})
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	// Parse allowed origins (comma-separated list)
	allowedOrigins := strings.Split(allowedOriginsStr, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.repo != nil {
		if err := s.repo.Ping(r.Context()); err != nil {
			dbStatus = "down"
			status = "degraded"
		} else {
			dbStatus = "up"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}

// websocketHandlerFunc streams program lifecycle events to authenticated
// clients.
func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := s.wsHub.RegisterClient(conn, actor.AccountID, actor.Role.String())
	go client.ReadPump()
	go client.WritePump()
}

// hubPublisher adapts the websocket hub to the EventPublisher interface.
type hubPublisher struct {
	hub *ws.Hub
}

func (p *hubPublisher) PublishProgramEvent(event ProgramEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal program event", "error", err)
		return
	}
	p.hub.Broadcast(payload)
}
