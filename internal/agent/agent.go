package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/history"
	"github.com/comigor/gustavo-go/internal/llm"
	"github.com/comigor/gustavo-go/internal/logger"
	"github.com/comigor/gustavo-go/internal/persona"
	"github.com/comigor/gustavo-go/pkg/metrics"
	"github.com/comigor/gustavo-go/pkg/tools"
)

// FSM States
type FSMState stateless.State

var (
	StateReceived           FSMState = "Received"
	StateNoHistory          FSMState = "NoHistory"
	StateChatWithHistory    FSMState = "ChatWithHistory"
	StateAwaitingToolResult FSMState = "AwaitingToolResult"
	StateFallback           FSMState = "FallbackSimpleGeneration"
	StateDone               FSMState = "Done"   // Terminal: reply text available
	StateFailed             FSMState = "Failed" // Terminal: provider failed with no way left to recover
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var (
	TriggerNoHistory         FSMTrigger = "NoHistory"
	TriggerHasHistory        FSMTrigger = "HasHistory"
	TriggerToolCallRequested FSMTrigger = "ToolCallRequested"
	TriggerTextReady         FSMTrigger = "TextReady"
	TriggerProviderFailed    FSMTrigger = "ProviderFailed"
)

// ErrMissingMessage is returned when the user message is absent or blank.
var ErrMissingMessage = errors.New("missing message")

const (
	placeholderInitial = "Sem resposta textual inicial."
	placeholderChat    = "Sem resposta textual."
)

// Request is one chat turn as received from the client.
// A nil History means the client sent none; an empty one means an explicitly fresh conversation.
type Request struct {
	Message   string
	History   []any
	SessionID string
	UserID    string
}

// ToolInvocation records a tool call made while answering.
type ToolInvocation struct {
	Name   string
	Args   map[string]any
	Result map[string]any
}

// Outcome is what a successful orchestration produced.
type Outcome struct {
	Text        string
	Invocations []ToolInvocation
	Fallback    bool
}

// Agent drives a single chat turn through the provider and the tools.
type Agent struct {
	provider llm.Provider
	tools    *tools.ToolManager
	persona  *persona.Resolver
	store    history.Store
	timeout  time.Duration
	now      func() time.Time
}

// New creates a new agent. store may be nil, in which case sessions are neither loaded nor saved.
func New(provider llm.Provider, toolManager *tools.ToolManager, resolver *persona.Resolver, store history.Store, cfg config.LLMConfig) *Agent {
	return &Agent{
		provider: provider,
		tools:    toolManager,
		persona:  resolver,
		store:    store,
		timeout:  cfg.Timeout,
		now:      time.Now,
	}
}

// BuildPrompt frames the user message with the effective instruction.
func BuildPrompt(instruction, message string) string {
	return fmt.Sprintf("%s\n\nMensagem do usuário: \"%s\"", instruction, message)
}

// run is the per-request state shared by the FSM actions.
type run struct {
	message     string
	prompt      string
	history     []history.Message
	decls       []tools.Declaration
	chat        llm.Chat
	reply       llm.Reply
	invocations []ToolInvocation
	text        string
	fallback    bool
	path        string
	lastError   error
	next        FSMTrigger
}

// Process answers req. It fails only on a blank message or when the fallback generation fails too.
func (a *Agent) Process(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrMissingMessage
	}
	log := logger.From(ctx)

	r := &run{
		message: req.Message,
		prompt:  BuildPrompt(a.persona.Resolve(ctx, req.UserID), req.Message),
		history: a.loadHistory(ctx, req),
		decls:   a.tools.Declarations(),
	}

	fsm := a.newMachine(r)
	r.next = TriggerNoHistory
	if len(r.history) > 0 {
		r.next = TriggerHasHistory
	}

	// actions record the next trigger instead of firing from inside OnEntry
	for r.next != nil {
		trigger := r.next
		r.next = nil
		if err := fsm.FireCtx(ctx, trigger); err != nil {
			return nil, fmt.Errorf("orchestration: %w", err)
		}
	}

	switch fsm.MustState() {
	case StateDone:
		metrics.RecordOutcome(r.path)
		out := &Outcome{Text: r.text, Invocations: r.invocations, Fallback: r.fallback}
		if req.SessionID != "" {
			a.persist(ctx, req.SessionID, r.message, out)
		}
		log.Info("chat turn answered", "path", r.path, "tools", len(out.Invocations), "history", len(r.history))
		return out, nil
	case StateFailed:
		metrics.RecordOutcome("failed")
		if r.lastError == nil {
			r.lastError = errors.New("FSM: reached failed state without a specific error")
		}
		return nil, r.lastError
	default:
		return nil, fmt.Errorf("FSM ended in an unexpected state: %v", fsm.MustState())
	}
}

func (a *Agent) newMachine(r *run) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateReceived)

	fsm.Configure(StateReceived).
		Permit(TriggerNoHistory, StateNoHistory).
		Permit(TriggerHasHistory, StateChatWithHistory)

	// State: NoHistory
	// Single-shot generation with tools. Failure here is final: the fallback would be the same call.
	fsm.Configure(StateNoHistory).
		OnEntry(func(ctx context.Context, _ ...any) error {
			reply, err := a.generate(ctx, llm.GenerateRequest{Prompt: r.prompt, Tools: r.decls})
			if err != nil {
				logger.From(ctx).Error("single-shot generation failed", "error", err)
				r.lastError = err
				r.next = TriggerProviderFailed
				return nil
			}
			r.reply = reply
			if reply.Kind == llm.ReplyToolCall {
				r.next = TriggerToolCallRequested
				return nil
			}
			r.text = orPlaceholder(reply.Text, placeholderInitial)
			r.path = "direct"
			r.next = TriggerTextReady
			return nil
		}).
		Permit(TriggerToolCallRequested, StateAwaitingToolResult).
		Permit(TriggerTextReady, StateDone).
		Permit(TriggerProviderFailed, StateFailed)

	// State: ChatWithHistory
	fsm.Configure(StateChatWithHistory).
		OnEntry(func(ctx context.Context, _ ...any) error {
			chat, err := a.provider.StartChat(ctx, r.history, r.decls)
			if err != nil {
				logger.From(ctx).Warn("start chat failed", "error", err)
				r.lastError = err
				r.next = TriggerProviderFailed
				return nil
			}
			r.chat = chat

			reply, err := a.send(ctx, chat, "chat", history.TextPart{Text: r.prompt})
			if err != nil {
				logger.From(ctx).Warn("chat send failed", "error", err)
				r.lastError = err
				r.next = TriggerProviderFailed
				return nil
			}
			r.reply = reply
			if reply.Kind == llm.ReplyToolCall {
				r.next = TriggerToolCallRequested
				return nil
			}
			r.text = orPlaceholder(reply.Text, placeholderChat)
			r.path = "direct"
			r.next = TriggerTextReady
			return nil
		}).
		Permit(TriggerToolCallRequested, StateAwaitingToolResult).
		Permit(TriggerTextReady, StateDone).
		Permit(TriggerProviderFailed, StateFallback)

	// State: AwaitingToolResult
	// Runs the first requested tool and hands its result back to the same chat.
	fsm.Configure(StateAwaitingToolResult).
		OnEntry(func(ctx context.Context, _ ...any) error {
			log := logger.From(ctx)
			call := r.reply.ToolCall

			result, err := a.tools.Invoke(ctx, call.Name, call.Args)
			if errors.Is(err, tools.ErrToolNotFound) {
				log.Warn("model requested unknown tool", "tool", call.Name)
				metrics.RecordTool(metrics.UnknownTool, "not_found")
				r.text = fmt.Sprintf("Função %s não encontrada.", call.Name)
				r.path = "unknown_tool"
				r.next = TriggerTextReady
				return nil
			}
			if _, failed := result["error"]; failed {
				metrics.RecordTool(call.Name, "error")
			} else {
				metrics.RecordTool(call.Name, "ok")
			}
			log.Info("tool invoked", "tool", call.Name, "args", call.Args, "result", result)
			r.invocations = append(r.invocations, ToolInvocation{Name: call.Name, Args: call.Args, Result: result})

			if r.chat == nil {
				// NoHistory path: seed a chat with the turn that produced the call
				seed := []history.Message{
					history.NewText(history.RoleUser, r.prompt, time.Time{}),
					{Role: history.RoleModel, Parts: []history.Part{history.FunctionCallPart{Name: call.Name, Args: call.Args}}},
				}
				chat, err := a.provider.StartChat(ctx, seed, r.decls)
				if err != nil {
					log.Warn("start chat for tool result failed", "error", err)
					r.lastError = err
					r.next = TriggerProviderFailed
					return nil
				}
				r.chat = chat
			}

			reply, err := a.send(ctx, r.chat, "tool_result", history.FunctionResponsePart{Name: call.Name, Response: result})
			if err != nil {
				log.Warn("sending tool result failed", "tool", call.Name, "error", err)
				r.lastError = err
				r.next = TriggerProviderFailed
				return nil
			}

			r.text = reply.Text
			if reply.Kind == llm.ReplyToolCall || strings.TrimSpace(reply.Text) == "" {
				r.text = toolResultText(call.Name, result)
			}
			r.path = "tool"
			r.next = TriggerTextReady
			return nil
		}).
		Permit(TriggerTextReady, StateDone).
		Permit(TriggerProviderFailed, StateFallback)

	// State: FallbackSimpleGeneration
	// One plain generation without chat context or tools. No further retries.
	fsm.Configure(StateFallback).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.From(ctx).Warn("falling back to simple generation", "cause", r.lastError)
			r.chat = nil
			r.invocations = nil
			r.fallback = true

			reply, err := a.generate(ctx, llm.GenerateRequest{Prompt: r.prompt})
			if err != nil {
				logger.From(ctx).Error("fallback generation failed", "error", err)
				r.lastError = fmt.Errorf("fallback generation: %w", err)
				r.next = TriggerProviderFailed
				return nil
			}
			r.text = orPlaceholder(reply.Text, placeholderInitial)
			r.path = "fallback"
			r.next = TriggerTextReady
			return nil
		}).
		Permit(TriggerTextReady, StateDone).
		Permit(TriggerProviderFailed, StateFailed)

	fsm.Configure(StateDone)
	fsm.Configure(StateFailed)

	return fsm
}

func (a *Agent) generate(ctx context.Context, req llm.GenerateRequest) (llm.Reply, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	reply, err := a.provider.Generate(ctx, req)
	metrics.RecordProviderCall(a.provider.Name(), "generate", err, time.Since(start).Seconds())
	return reply, err
}

func (a *Agent) send(ctx context.Context, chat llm.Chat, op string, parts ...history.Part) (llm.Reply, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	reply, err := chat.Send(ctx, parts...)
	metrics.RecordProviderCall(a.provider.Name(), op, err, time.Since(start).Seconds())
	return reply, err
}

func (a *Agent) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// loadHistory prefers the history sent by the client and falls back to the stored session.
func (a *Agent) loadHistory(ctx context.Context, req Request) []history.Message {
	if req.History != nil {
		return history.Normalize(req.History)
	}
	if req.SessionID == "" || a.store == nil {
		return nil
	}
	sess, err := a.store.Get(ctx, req.SessionID)
	if err != nil {
		if !errors.Is(err, history.ErrSessionNotFound) {
			logger.From(ctx).Warn("failed to load session history", "session", req.SessionID, "error", err)
		}
		return nil
	}
	return history.Clean(sess.Messages)
}

// persist appends the whole turn at once so a stored functionCall always has its response.
func (a *Agent) persist(ctx context.Context, sessionID, message string, out *Outcome) {
	if a.store == nil {
		return
	}
	now := a.now()
	msgs := make([]history.Message, 0, 2+2*len(out.Invocations))
	msgs = append(msgs, history.NewText(history.RoleUser, message, now))
	for _, inv := range out.Invocations {
		msgs = append(msgs,
			history.Message{Role: history.RoleModel, Parts: []history.Part{history.FunctionCallPart{Name: inv.Name, Args: inv.Args}}, Timestamp: now},
			history.Message{Role: history.RoleFunction, Parts: []history.Part{history.FunctionResponsePart{Name: inv.Name, Response: inv.Result}}, Timestamp: now},
		)
	}
	msgs = append(msgs, history.NewText(history.RoleModel, out.Text, now))

	if err := a.store.Append(ctx, sessionID, msgs); err != nil {
		logger.From(ctx).Error("failed to persist chat turn", "session", sessionID, "error", err)
	}
}

func toolResultText(name string, result map[string]any) string {
	b, err := json.Marshal(result)
	if err != nil {
		b = []byte("{}")
	}
	return fmt.Sprintf("Resultado de %s: %s", name, b)
}

func orPlaceholder(text, placeholder string) string {
	if strings.TrimSpace(text) == "" {
		return placeholder
	}
	return text
}
