package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/arvolin/streamchat/internal/service/chat"
	"github.com/arvolin/streamchat/pkg/utils"
)

// Handler exposes read access to stored transcripts, so the page can restore
// a conversation after a reload.
type Handler struct {
	chatSvc *chatservice.Service
}

// New creates the session REST handler.
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/messages", h.handleTranscript)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	transcript, err := h.chatSvc.Transcript(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  transcript,
	})
}
