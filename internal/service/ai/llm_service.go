package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/arvolin/streamchat/internal/config"
	"github.com/arvolin/streamchat/internal/model/chat"
)

// ChatOptions carries the per-request knobs decoded from an inbound frame.
// MCPServers holds opaque tool-server references (slugs or URLs) that the
// hosted runner resolves itself; this process never inspects them.
type ChatOptions struct {
	Model      string
	MCPServers []string
}

// Service wraps the hosted completion runner behind eino's ChatModel.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AIConfig
}

// NewService builds the runner client from configuration.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return &Service{chatModel: chatModel, cfg: cfg}, nil
}

// StreamConversation sends the full conversation to the runner and returns
// its token stream. The stream is lazy, finite, and cannot be restarted.
func (s *Service) StreamConversation(ctx context.Context, history []chat.Message, opts ChatOptions) (*schema.StreamReader[*schema.Message], error) {
	messages := buildChatMessages(history)
	if len(messages) == 0 {
		return nil, fmt.Errorf("conversation is empty")
	}

	stream, err := s.chatModel.Stream(ctx, messages, buildCallOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("failed to stream runner output: %w", err)
	}

	return stream, nil
}

func buildChatMessages(history []chat.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return messages
}

func buildCallOptions(opts ChatOptions) []model.Option {
	var callOpts []model.Option
	if opts.Model != "" {
		callOpts = append(callOpts, model.WithModel(opts.Model))
	}
	if len(opts.MCPServers) > 0 {
		callOpts = append(callOpts, model.WithTools(toolBindings(opts.MCPServers)))
	}
	return callOpts
}

// toolBindings turns tool-server references into request-scoped tool
// bindings. The runner owns resolution; the names pass through untouched.
func toolBindings(refs []string) []*schema.ToolInfo {
	tools := make([]*schema.ToolInfo, 0, len(refs))
	for _, ref := range refs {
		tools = append(tools, &schema.ToolInfo{
			Name: ref,
			Desc: "hosted tool server reference",
		})
	}
	return tools
}
