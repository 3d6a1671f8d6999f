package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/cloudwego/eino/schema"

	"github.com/arvolin/streamchat/internal/model/chat"
	aiservice "github.com/arvolin/streamchat/internal/service/ai"
	chatservice "github.com/arvolin/streamchat/internal/service/chat"
)

// Outbound event discriminators.
const (
	EventStart = "start"
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// Event is one outbound protocol frame.
type Event struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// Request is one decoded inbound frame. Model and MCPServers are optional;
// an empty model falls back to the engine's configured default.
type Request struct {
	Message    string   `json:"message"`
	Model      string   `json:"model"`
	MCPServers []string `json:"mcp_servers"`
}

// Sink delivers outbound events to one client connection.
type Sink interface {
	Send(event Event) error
}

// CompletionStreamer is the slice of the ai service the engine depends on.
type CompletionStreamer interface {
	StreamConversation(ctx context.Context, history []chat.Message, opts aiservice.ChatOptions) (*schema.StreamReader[*schema.Message], error)
}

// Engine runs one exchange at a time: user turn in, streamed assistant turn
// out, history updated in between. Both the websocket and SSE handlers drive
// the same engine.
type Engine struct {
	streamer     CompletionStreamer
	chatSvc      *chatservice.Service
	defaultModel string
}

// NewEngine wires the engine to the store and the runner.
func NewEngine(streamer CompletionStreamer, chatSvc *chatservice.Service, defaultModel string) *Engine {
	return &Engine{
		streamer:     streamer,
		chatSvc:      chatSvc,
		defaultModel: defaultModel,
	}
}

// RunExchange drives one request through to its done or error event. A
// failure after the user turn was appended leaves that turn in place; the
// history is never rolled back.
func (e *Engine) RunExchange(ctx context.Context, sessionID string, req Request, sink Sink) error {
	e.emit(sink, Event{Type: EventStart})

	if _, err := e.chatSvc.Append(ctx, sessionID, chat.RoleUser, req.Message); err != nil {
		return e.fail(sink, fmt.Errorf("save user message failed: %w", err))
	}

	history, err := e.chatSvc.Transcript(ctx, sessionID)
	if err != nil {
		return e.fail(sink, fmt.Errorf("load conversation failed: %w", err))
	}

	opts := aiservice.ChatOptions{Model: req.Model, MCPServers: req.MCPServers}
	if opts.Model == "" {
		opts.Model = e.defaultModel
	}

	stream, err := e.streamer.StreamConversation(ctx, history, opts)
	if err != nil {
		return e.fail(sink, err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return e.fail(sink, fmt.Errorf("runner stream recv failed: %w", recvErr))
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			e.emit(sink, Event{Type: EventChunk, Content: chunk.Content})
		}
	}

	content := ""
	if len(chunks) > 0 {
		merged, concatErr := schema.ConcatMessages(chunks)
		if concatErr != nil {
			return e.fail(sink, fmt.Errorf("concat runner chunks failed: %w", concatErr))
		}
		content = merged.Content
	}

	if _, err := e.chatSvc.Append(ctx, sessionID, chat.RoleAssistant, content); err != nil {
		return e.fail(sink, fmt.Errorf("save assistant message failed: %w", err))
	}

	e.emit(sink, Event{Type: EventDone})
	return nil
}

// emit pushes an event to the client. A failed send means the client is
// likely gone; the exchange still runs to completion so the history stays
// consistent.
func (e *Engine) emit(sink Sink, event Event) {
	if err := sink.Send(event); err != nil {
		log.Printf("[relay] send %s event failed: %v", event.Type, err)
	}
}

func (e *Engine) fail(sink Sink, err error) error {
	e.emit(sink, Event{Type: EventError, Message: err.Error()})
	return err
}
