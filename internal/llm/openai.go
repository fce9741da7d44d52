package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/history"
	"github.com/comigor/gustavo-go/pkg/tools"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client      Client
	model       string
	temperature float32
}

// NewOpenAIProvider wraps client.
func NewOpenAIProvider(client Client, cfg config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: cfg.Model, temperature: cfg.Temperature}
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (Reply, error) {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: req.Prompt}}
	msg, err := p.complete(ctx, msgs, toOpenAITools(req.Tools))
	if err != nil {
		return Reply{}, err
	}
	return parseOpenAIMessage(msg)
}

func (p *OpenAIProvider) StartChat(_ context.Context, hist []history.Message, decls []tools.Declaration) (Chat, error) {
	c := &openAIChat{provider: p, tools: toOpenAITools(decls), pending: map[string][]string{}}
	for _, m := range hist {
		c.appendMessage(m.Role, m.Parts)
	}
	return c, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, ts []openai.Tool) (openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		Temperature: p.temperature,
	}
	if len(ts) > 0 {
		req.Tools = ts
	}
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		// no choices reads as an empty assistant turn
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}, nil
	}
	return resp.Choices[0].Message, nil
}

// openAIChat keeps the conversation client-side since the completions API is stateless.
type openAIChat struct {
	provider *OpenAIProvider
	tools    []openai.Tool
	messages []openai.ChatCompletionMessage
	// pending holds unanswered tool call ids by function name, oldest first
	pending map[string][]string
	seq     int
}

func (c *openAIChat) Send(ctx context.Context, parts ...history.Part) (Reply, error) {
	role := history.RoleUser
	for _, p := range parts {
		if _, ok := p.(history.FunctionResponsePart); ok {
			role = history.RoleFunction
			break
		}
	}

	before := len(c.messages)
	c.appendMessage(role, parts)

	msg, err := c.provider.complete(ctx, c.messages, c.tools)
	if err != nil {
		c.messages = c.messages[:before]
		return Reply{}, err
	}
	reply, err := parseOpenAIMessage(msg)
	if err != nil {
		c.messages = c.messages[:before]
		return Reply{}, err
	}

	if len(msg.ToolCalls) > 0 {
		// only the first call is answered, so the transcript keeps only that one
		msg.ToolCalls = msg.ToolCalls[:1]
		if msg.ToolCalls[0].ID == "" {
			msg.ToolCalls[0].ID = c.nextID()
		}
		name := msg.ToolCalls[0].Function.Name
		c.pending[name] = append(c.pending[name], msg.ToolCalls[0].ID)
		reply.ToolCall.ID = msg.ToolCalls[0].ID
	}
	c.messages = append(c.messages, msg)
	return reply, nil
}

func (c *openAIChat) nextID() string {
	c.seq++
	return fmt.Sprintf("call_%d", c.seq)
}

func (c *openAIChat) takeID(name string) string {
	ids := c.pending[name]
	if len(ids) == 0 {
		return c.nextID()
	}
	c.pending[name] = ids[1:]
	return ids[0]
}

// appendMessage maps one turn onto chat messages: model function calls become assistant
// tool_calls and function responses become tool messages answering them.
func (c *openAIChat) appendMessage(role history.Role, parts []history.Part) {
	switch role {
	case history.RoleModel:
		msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
		for _, p := range parts {
			switch v := p.(type) {
			case history.TextPart:
				msg.Content += v.Text
			case history.FunctionCallPart:
				id := c.nextID()
				c.pending[v.Name] = append(c.pending[v.Name], id)
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       id,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: v.Name, Arguments: mustJSON(v.Args)},
				})
			}
		}
		c.messages = append(c.messages, msg)
	case history.RoleFunction:
		for _, p := range parts {
			if v, ok := p.(history.FunctionResponsePart); ok {
				c.messages = append(c.messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Name:       v.Name,
					ToolCallID: c.takeID(v.Name),
					Content:    mustJSON(v.Response),
				})
			}
		}
	default:
		msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
		for _, p := range parts {
			if v, ok := p.(history.TextPart); ok {
				msg.Content += v.Text
			}
		}
		c.messages = append(c.messages, msg)
	}
}

func parseOpenAIMessage(msg openai.ChatCompletionMessage) (Reply, error) {
	if len(msg.ToolCalls) == 0 {
		return TextReply(msg.Content), nil
	}
	tc := msg.ToolCalls[0]
	args := map[string]any{}
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return Reply{}, fmt.Errorf("failed to unmarshal tool arguments for %s: %w", tc.Function.Name, err)
		}
	}
	return ToolCallReply(ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args}), nil
}

func toOpenAITools(decls []tools.Declaration) []openai.Tool {
	if len(decls) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(decls))
	for _, d := range decls {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.JSONSchema(),
			},
		})
	}
	return out
}

func mustJSON(v map[string]any) string {
	b, err := json.Marshal(orEmpty(v))
	if err != nil {
		return "{}"
	}
	return string(b)
}
