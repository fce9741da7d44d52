package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"google.golang.org/genai"

	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/history"
	"github.com/comigor/gustavo-go/pkg/tools"
)

// GeminiProvider talks to the Gemini API.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiProvider creates a Gemini client from cfg.
func NewGeminiProvider(ctx context.Context, cfg config.LLMConfig) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Generate sends a single user prompt.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (Reply, error) {
	content := genai.NewContentFromText(req.Prompt, genai.RoleUser)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, []*genai.Content{content}, p.generateConfig(req.Tools))
	if err != nil {
		return Reply{}, fmt.Errorf("gemini generate: %w", err)
	}
	return parseGeminiResponse(resp), nil
}

// StartChat opens a chat seeded with hist.
func (p *GeminiProvider) StartChat(ctx context.Context, hist []history.Message, decls []tools.Declaration) (Chat, error) {
	chat, err := p.client.Chats.Create(ctx, p.model, p.generateConfig(decls), toGeminiContents(hist))
	if err != nil {
		return nil, fmt.Errorf("gemini start chat: %w", err)
	}
	return &geminiChat{chat: chat}, nil
}

func (p *GeminiProvider) generateConfig(decls []tools.Declaration) *genai.GenerateContentConfig {
	temperature := p.temperature
	return &genai.GenerateContentConfig{
		Temperature: &temperature,
		Tools:       toGeminiTools(decls),
	}
}

type geminiChat struct {
	chat *genai.Chat
}

func (c *geminiChat) Send(ctx context.Context, parts ...history.Part) (Reply, error) {
	gparts := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if gp := toGeminiPart(p); gp != nil {
			gparts = append(gparts, gp)
		}
	}
	resp, err := c.chat.Send(ctx, gparts...)
	if err != nil {
		return Reply{}, fmt.Errorf("gemini send: %w", err)
	}
	return parseGeminiResponse(resp), nil
}

func toGeminiPart(p history.Part) *genai.Part {
	switch v := p.(type) {
	case history.TextPart:
		return genai.NewPartFromText(v.Text)
	case history.FunctionCallPart:
		return genai.NewPartFromFunctionCall(v.Name, orEmpty(v.Args))
	case history.FunctionResponsePart:
		return genai.NewPartFromFunctionResponse(v.Name, orEmpty(v.Response))
	}
	return nil
}

// Function responses travel with the user role in the Gemini API.
func geminiRole(r history.Role) genai.Role {
	if r == history.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func toGeminiContents(msgs []history.Message) []*genai.Content {
	return lo.Map(msgs, func(m history.Message, _ int) *genai.Content {
		parts := lo.FilterMap(m.Parts, func(p history.Part, _ int) (*genai.Part, bool) {
			gp := toGeminiPart(p)
			return gp, gp != nil
		})
		return genai.NewContentFromParts(parts, geminiRole(m.Role))
	})
}

// toGeminiTools converts declarations to Gemini's function format.
func toGeminiTools(decls []tools.Declaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}

	functionDeclarations := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		properties := make(map[string]*genai.Schema, len(d.Parameters))
		required := make([]string, 0)

		for _, param := range d.Parameters {
			properties[param.Name] = &genai.Schema{
				Type:        geminiType(param.Type),
				Description: param.Description,
			}
			if param.Required {
				required = append(required, param.Name)
			}
		}

		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if len(properties) > 0 {
			fd.Parameters = &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			}
		}
		functionDeclarations = append(functionDeclarations, fd)
	}

	// a single Tool carries all function declarations
	return []*genai.Tool{{FunctionDeclarations: functionDeclarations}}
}

func geminiType(t tools.ParamType) genai.Type {
	switch t {
	case tools.ParamTypeNumber:
		return genai.TypeNumber
	case tools.ParamTypeInteger:
		return genai.TypeInteger
	case tools.ParamTypeBoolean:
		return genai.TypeBoolean
	case tools.ParamTypeArray:
		return genai.TypeArray
	case tools.ParamTypeObject:
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// parseGeminiResponse reads the first candidate. A response without candidates is an empty text reply.
func parseGeminiResponse(resp *genai.GenerateContentResponse) Reply {
	if resp == nil || len(resp.Candidates) == 0 {
		return TextReply("")
	}

	if calls := resp.FunctionCalls(); len(calls) > 0 {
		fc := calls[0]
		return ToolCallReply(ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}

	var sb strings.Builder
	if c := resp.Candidates[0].Content; c != nil {
		for _, part := range c.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return TextReply(sb.String())
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
