package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/gustavo-go/internal/history"
	"github.com/comigor/gustavo-go/pkg/tools"
)

// Client is minimal subset of openai.Client used by the OpenAI provider; it is easy to mock in tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ReplyKind tells what the model produced.
type ReplyKind int

const (
	ReplyText ReplyKind = iota
	ReplyToolCall
)

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Reply is a model turn, classified once at the provider boundary.
// When the model requests several calls only the first one is kept.
type Reply struct {
	Kind     ReplyKind
	Text     string
	ToolCall *ToolCall
}

// TextReply builds a text reply.
func TextReply(text string) Reply { return Reply{Kind: ReplyText, Text: text} }

// ToolCallReply builds a tool-call reply.
func ToolCallReply(tc ToolCall) Reply {
	if tc.Args == nil {
		tc.Args = map[string]any{}
	}
	return Reply{Kind: ReplyToolCall, ToolCall: &tc}
}

// GenerateRequest is a single-shot generation. Tools may be empty.
type GenerateRequest struct {
	Prompt string
	Tools  []tools.Declaration
}

// Provider is an LLM backend.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (Reply, error)
	StartChat(ctx context.Context, hist []history.Message, decls []tools.Declaration) (Chat, error)
	Name() string
}

// Chat is a stateful multi-turn session. It is not safe for concurrent use.
type Chat interface {
	Send(ctx context.Context, parts ...history.Part) (Reply, error)
}
