package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	AllowedOrigins []string
	// StaticDir, when set, is served at the root for the UI.
	StaticDir string
}

func (h *Handler) Routes(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(api chi.Router) {
		api.Post("/register", h.Register)
		api.Post("/login", h.Login)

		api.Group(func(protected chi.Router) {
			protected.Use(h.RequireSession)
			protected.Post("/logout", h.Logout)
			protected.Get("/session", h.GetSession)
			protected.Post("/messages", h.HandleMessage)

			protected.Get("/chats", h.GetConversations)
			protected.Delete("/chats", h.ClearConversations)
			protected.Post("/chats/new", h.NewChat)
			protected.Get("/chats/{id}", h.LoadConversation)
			protected.Delete("/chats/{id}", h.DeleteConversation)
		})
	})

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}
	return r
}
