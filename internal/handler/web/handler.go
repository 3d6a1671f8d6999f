package web

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed index.html
var indexPage []byte

// Handler serves the embedded chat page. The page is a plain consumer of the
// wire protocol; everything it needs ships in one file.
type Handler struct{}

// New creates the page handler.
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes mounts the page at the site root.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}
