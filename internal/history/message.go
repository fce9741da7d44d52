package history

import (
	"encoding/json"
	"errors"
	"time"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser     Role = "user"
	RoleModel    Role = "model"
	RoleFunction Role = "function"
)

// Valid reports whether r is one of the roles the provider accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleFunction:
		return true
	}
	return false
}

// Part is one content item of a message. The set of implementations is closed.
type Part interface{ isPart() }

// TextPart is plain text.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// FunctionCallPart is a tool invocation requested by the model.
type FunctionCallPart struct {
	Name string
	Args map[string]any
}

func (FunctionCallPart) isPart() {}

// FunctionResponsePart carries a tool result back to the model.
type FunctionResponsePart struct {
	Name     string
	Response map[string]any
}

func (FunctionResponsePart) isPart() {}

// Message is a single conversation turn.
type Message struct {
	Role      Role
	Parts     []Part
	Timestamp time.Time
}

// Text returns the concatenated text parts of m.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// NewText builds a single-part text message.
func NewText(role Role, text string, at time.Time) Message {
	return Message{Role: role, Parts: []Part{TextPart{Text: text}}, Timestamp: at}
}

// Session is a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// DefaultTitle is used until a conversation has a user message to name it after.
const DefaultTitle = "Conversa Sem Título"

var ErrInvalidMessage = errors.New("invalid message")

type wireCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type wireResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wirePart struct {
	Text             string        `json:"text,omitempty"`
	FunctionCall     *wireCall     `json:"functionCall,omitempty"`
	FunctionResponse *wireResponse `json:"functionResponse,omitempty"`
}

type wireMessage struct {
	Role      Role       `json:"role"`
	Parts     []wirePart `json:"parts"`
	Timestamp int64      `json:"timestamp,omitempty"`
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func toWireParts(parts []Part) []wirePart {
	out := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case TextPart:
			out = append(out, wirePart{Text: v.Text})
		case FunctionCallPart:
			out = append(out, wirePart{FunctionCall: &wireCall{Name: v.Name, Args: orEmpty(v.Args)}})
		case FunctionResponsePart:
			out = append(out, wirePart{FunctionResponse: &wireResponse{Name: v.Name, Response: orEmpty(v.Response)}})
		}
	}
	return out
}

// MarshalJSON renders m in the client's wire shape.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Role: m.Role, Parts: toWireParts(m.Parts)}
	if !m.Timestamp.IsZero() {
		w.Timestamp = m.Timestamp.UnixMilli()
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the same loose shapes Normalize does.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	msg, ok := normalizeRecord(raw)
	if !ok {
		return ErrInvalidMessage
	}
	*m = msg
	return nil
}

// EncodeParts serializes parts for storage.
func EncodeParts(parts []Part) ([]byte, error) {
	return json.Marshal(toWireParts(parts))
}

// DecodeParts is the inverse of EncodeParts. Unrecognized items are dropped.
func DecodeParts(data []byte) ([]Part, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return normalizeParts(raw), nil
}
