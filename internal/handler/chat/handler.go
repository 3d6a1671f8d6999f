package chat

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatservice "github.com/arvolin/streamchat/internal/service/chat"
	"github.com/arvolin/streamchat/internal/service/relay"
)

// Handler owns the websocket side of the relay: one long-lived connection
// per session, one exchange in flight at a time. The next inbound frame is
// not read until the previous exchange fully resolves, so ordering per
// connection is inherent. Two concurrent connections sharing a session id
// are not defended against; the store stays consistent but event
// interleaving between them is unspecified.
type Handler struct {
	engine   *relay.Engine
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
}

// New creates the websocket chat handler.
func New(engine *relay.Engine, chatSvc *chatservice.Service) *Handler {
	return &Handler{
		engine:  engine,
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	if h.engine == nil {
		http.Error(w, "completion runner unavailable", http.StatusServiceUnavailable)
		return
	}

	if _, err := h.chatSvc.Open(r.Context(), sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.pingLoop(ctx, conn)

	sink := &connSink{conn: conn}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error session=%s: %v", sessionID, err)
			}
			return
		}

		var req relay.Request
		if err := json.Unmarshal(data, &req); err != nil {
			// A frame that cannot be decoded never starts an exchange;
			// report it and keep the connection alive.
			_ = sink.Send(relay.Event{Type: relay.EventError, Message: "invalid request frame: " + err.Error()})
			continue
		}

		if err := h.engine.RunExchange(ctx, sessionID, req, sink); err != nil {
			log.Printf("[websocket] exchange failed session=%s: %v", sessionID, err)
		}
	}
}

// pingLoop keeps intermediaries from dropping idle connections. Control
// frames may be written concurrently with the relay's data frames, so this
// goroutine never touches WriteJSON.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// connSink adapts one websocket connection to the relay's event sink.
type connSink struct {
	conn *websocket.Conn
}

func (s *connSink) Send(event relay.Event) error {
	return s.conn.WriteJSON(event)
}
