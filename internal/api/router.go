package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/postkeep-be/internal/api/handlers"
	"github.com/isdelr/postkeep-be/internal/auth"
	"github.com/isdelr/postkeep-be/internal/services"
	"github.com/isdelr/postkeep-be/internal/websocket"
)

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins  []string
	MaxRequestBytes int64
	TokenTTL        time.Duration
	SecureCookies   bool
}

// NewRouter creates and configures a new Chi router.
func NewRouter(
	hub *websocket.Hub,
	tokens services.TokenResolver,
	userService services.UserServiceProvider,
	postService services.PostServiceProvider,
	eventService services.EventServiceProvider,
	healthHandler *handlers.HealthHandler,
	opts Options,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService, opts.TokenTTL, opts.SecureCookies)
	postHandler := handlers.NewPostHandler(postService, opts.MaxRequestBytes)
	eventHandler := handlers.NewEventHandler(eventService)
	wsHandler := handlers.NewWebSocketHandler(hub, tokens, opts.AllowedOrigins)

	r.Get("/health", healthHandler.Get)

	// API versioning
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RequestSize(opts.MaxRequestBytes))
			r.Post("/signup", userHandler.Signup)
			r.Post("/login", userHandler.Login)
		})

		// The websocket endpoint authenticates itself since browsers
		// may pass the token as a query parameter.
		r.Get("/ws", wsHandler.Serve)

		r.Group(func(r chi.Router) {
			r.Use(auth.TokenMiddleware())

			r.Get("/users/me", userHandler.GetMe)
			r.Get("/events", eventHandler.GetRecent)

			r.Route("/posts", func(r chi.Router) {
				r.Get("/", postHandler.List)
				r.Post("/", postHandler.Create)
				r.Delete("/{id}", postHandler.Delete)
			})
		})
	})

	return r
}
