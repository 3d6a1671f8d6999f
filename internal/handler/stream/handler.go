package stream

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/arvolin/streamchat/internal/service/chat"
	"github.com/arvolin/streamchat/internal/service/relay"
	"github.com/arvolin/streamchat/pkg/utils"
)

// Handler exposes the relay over Server-Sent Events for clients without
// websocket support. One request runs exactly one exchange; the frames are
// the same JSON objects the websocket carries.
type Handler struct {
	engine  *relay.Engine
	chatSvc *chatservice.Service
}

// New creates the SSE stream handler.
func New(engine *relay.Engine, chatSvc *chatservice.Service) *Handler {
	return &Handler{engine: engine, chatSvc: chatSvc}
}

// RegisterRoutes mounts the streaming endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	query := r.URL.Query()

	message := query.Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	if _, err := h.chatSvc.Open(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := relay.Request{
		Message:    message,
		Model:      query.Get("model"),
		MCPServers: query["mcp"],
	}

	utils.SetupSSEHeaders(w)

	sink := &sseSink{w: w, flusher: flusher}
	if err := h.engine.RunExchange(r.Context(), sessionID, req, sink); err != nil {
		log.Printf("[stream] exchange failed session=%s: %v", sessionID, err)
	}
}

// sseSink adapts one SSE response to the relay's event sink.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(event relay.Event) error {
	utils.SendSSEChunk(s.w, s.flusher, event)
	return nil
}
