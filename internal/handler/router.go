package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sniprx/assistant/backend/internal/handler/assistant"
	"github.com/sniprx/assistant/backend/internal/handler/chat"
	middlewarePkg "github.com/sniprx/assistant/backend/internal/middleware"
	chatService "github.com/sniprx/assistant/backend/internal/service/chat"
	"github.com/sniprx/assistant/backend/pkg/utils"
)

// Info describes the running configuration for the health endpoint.
type Info struct {
	Mode  string
	Store string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, info Info) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"mode":   info.Mode,
			"store":  info.Store,
		})
	})

	r.Route("/api", func(api chi.Router) {
		assistant.New(chatSvc).RegisterRoutes(api)
		chat.New(chatSvc).RegisterRoutes(api)
	})

	return r
}
