package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the REST surface around the realtime core. The cable
// handler is injected so this package stays free of WebSocket concerns.
func SetupRoutes(a *API, cable http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	// Public routes
	r.Post("/register", a.Register)
	r.Post("/login", a.Login)
	r.Get("/healthz", Healthz)

	// The cable authenticates itself from the token query param.
	r.Get("/cable", cable)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(a.Auth.Middleware)
		r.Get("/online_users", a.OnlineUsers)
	})

	return r
}
