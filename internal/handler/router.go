package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arvolin/streamchat/internal/handler/chat"
	"github.com/arvolin/streamchat/internal/handler/session"
	"github.com/arvolin/streamchat/internal/handler/stream"
	"github.com/arvolin/streamchat/internal/handler/web"
	middlewarePkg "github.com/arvolin/streamchat/internal/middleware"
	chatService "github.com/arvolin/streamchat/internal/service/chat"
	"github.com/arvolin/streamchat/internal/service/relay"
	"github.com/arvolin/streamchat/pkg/utils"
)

// NewRouter wires HTTP routes to core services. The engine is nil when the
// runner credentials are missing; the page and REST surface stay up, and the
// streaming endpoints answer 503.
func NewRouter(chatSvc *chatService.Service, engine *relay.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	web.New().RegisterRoutes(r)
	chat.New(engine, chatSvc).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		session.New(chatSvc).RegisterRoutes(api)

		if engine != nil {
			stream.New(engine, chatSvc).RegisterRoutes(api)
		} else {
			api.Get("/stream/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "completion runner unavailable")
			})
		}
	})

	return r
}
