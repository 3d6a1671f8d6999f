package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	model "github.com/arvolin/streamchat/internal/model/chat"
	aiservice "github.com/arvolin/streamchat/internal/service/ai"
	chatservice "github.com/arvolin/streamchat/internal/service/chat"
	"github.com/arvolin/streamchat/internal/service/relay"
)

const testModel = "openai/gpt-5.1"

type fakeStreamer struct {
	fragments []string
	lastOpts  aiservice.ChatOptions
	callErr   error
}

func (f *fakeStreamer) StreamConversation(_ context.Context, _ []model.Message, opts aiservice.ChatOptions) (*schema.StreamReader[*schema.Message], error) {
	f.lastOpts = opts
	if f.callErr != nil {
		return nil, f.callErr
	}

	messages := make([]*schema.Message, 0, len(f.fragments))
	for _, fragment := range f.fragments {
		messages = append(messages, schema.AssistantMessage(fragment, nil))
	}
	return schema.StreamReaderFromArray(messages), nil
}

func setupServer(t *testing.T, streamer relay.CompletionStreamer) (*httptest.Server, *chatservice.Service) {
	t.Helper()

	chatSvc := chatservice.NewService()
	engine := relay.NewEngine(streamer, chatSvc, testModel)
	handler := New(engine, chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, chatSvc
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) relay.Event {
	t.Helper()

	var event relay.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event err: %v", err)
	}
	return event
}

func expectSequence(t *testing.T, conn *websocket.Conn, types ...string) []relay.Event {
	t.Helper()

	events := make([]relay.Event, 0, len(types))
	for _, want := range types {
		event := readEvent(t, conn)
		if event.Type != want {
			t.Fatalf("expected %s event, got %+v", want, event)
		}
		events = append(events, event)
	}
	return events
}

func TestWebSocketRelayStreamsResponse(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"He", "llo"}}
	server, chatSvc := setupServer(t, streamer)
	conn := dial(t, server, "session_1")

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	events := expectSequence(t, conn, relay.EventStart, relay.EventChunk, relay.EventChunk, relay.EventDone)
	if events[1].Content != "He" || events[2].Content != "llo" {
		t.Fatalf("unexpected chunk contents: %+v", events)
	}

	if streamer.lastOpts.Model != testModel {
		t.Fatalf("expected fallback model %s, got %q", testModel, streamer.lastOpts.Model)
	}

	transcript, err := chatSvc.Transcript(context.Background(), "session_1")
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 2 || transcript[1].Content != "Hello" {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"ok"}}
	server, _ := setupServer(t, streamer)
	conn := dial(t, server, "session_1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("write err: %v", err)
	}

	event := readEvent(t, conn)
	if event.Type != relay.EventError {
		t.Fatalf("expected error event, got %+v", event)
	}

	// The connection survives a decode failure.
	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write after error err: %v", err)
	}
	expectSequence(t, conn, relay.EventStart, relay.EventChunk, relay.EventDone)
}

func TestWebSocketUpstreamErrorKeepsConnection(t *testing.T) {
	streamer := &fakeStreamer{callErr: errors.New("auth rejected")}
	server, chatSvc := setupServer(t, streamer)
	conn := dial(t, server, "session_1")

	if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	events := expectSequence(t, conn, relay.EventStart, relay.EventError)
	if !strings.Contains(events[1].Message, "auth rejected") {
		t.Fatalf("error event should carry the cause: %+v", events[1])
	}

	// Next exchange on the same connection succeeds.
	streamer.callErr = nil
	streamer.fragments = []string{"ok"}
	if err := conn.WriteJSON(map[string]string{"message": "again"}); err != nil {
		t.Fatalf("write after error err: %v", err)
	}
	expectSequence(t, conn, relay.EventStart, relay.EventChunk, relay.EventDone)

	transcript, _ := chatSvc.Transcript(context.Background(), "session_1")
	// Orphaned user turn from the failure, then a full pair.
	if len(transcript) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(transcript))
	}
}

func TestWebSocketBackToBackMessagesStayOrdered(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"ok"}}
	server, _ := setupServer(t, streamer)
	conn := dial(t, server, "session_1")

	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(map[string]string{"message": "hi"}); err != nil {
			t.Fatalf("write %d err: %v", i, err)
		}
	}

	// The second start must not appear before the first exchange resolved.
	expectSequence(t, conn,
		relay.EventStart, relay.EventChunk, relay.EventDone,
		relay.EventStart, relay.EventChunk, relay.EventDone)
}

func TestWebSocketReconnectReusesHistory(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"ok"}}
	server, chatSvc := setupServer(t, streamer)

	conn := dial(t, server, "session_1")
	if err := conn.WriteJSON(map[string]string{"message": "first"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	expectSequence(t, conn, relay.EventStart, relay.EventChunk, relay.EventDone)
	conn.Close()

	conn = dial(t, server, "session_1")
	if err := conn.WriteJSON(map[string]string{"message": "second"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	expectSequence(t, conn, relay.EventStart, relay.EventChunk, relay.EventDone)

	transcript, err := chatSvc.Transcript(context.Background(), "session_1")
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(transcript) != 4 {
		t.Fatalf("expected history to span connections, got %d entries", len(transcript))
	}
	if transcript[0].Content != "first" || transcript[2].Content != "second" {
		t.Fatalf("unexpected transcript order: %+v", transcript)
	}
}

func TestWebSocketForwardsModelAndServers(t *testing.T) {
	streamer := &fakeStreamer{fragments: []string{"ok"}}
	server, _ := setupServer(t, streamer)
	conn := dial(t, server, "session_1")

	payload := map[string]any{
		"message":     "hi",
		"model":       "google/gemini-3-pro-preview",
		"mcp_servers": []string{"search"},
	}
	if err := conn.WriteJSON(payload); err != nil {
		t.Fatalf("write err: %v", err)
	}
	expectSequence(t, conn, relay.EventStart, relay.EventChunk, relay.EventDone)

	if streamer.lastOpts.Model != "google/gemini-3-pro-preview" {
		t.Fatalf("model not forwarded: %q", streamer.lastOpts.Model)
	}
	if len(streamer.lastOpts.MCPServers) != 1 || streamer.lastOpts.MCPServers[0] != "search" {
		t.Fatalf("tool-server references not forwarded: %v", streamer.lastOpts.MCPServers)
	}
}
