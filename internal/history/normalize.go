package history

import (
	"time"

	"github.com/samber/lo"
)

// Normalize converts client-supplied history (decoded JSON) into well-formed messages.
//
// Records without a valid role or any recognizable part are dropped, a single part object is
// treated as a one-element list, and leading turns not authored by the user are removed.
// Normalizing its own JSON output is a no-op.
func Normalize(raw []any) []Message {
	out := make([]Message, 0, len(raw))
	for _, rec := range raw {
		if msg, ok := normalizeRecord(rec); ok {
			out = append(out, msg)
		}
	}
	return dropLeadingNonUser(out)
}

// Clean applies the normalization rules to typed messages, e.g. a transcript read back from the store.
func Clean(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Role.Valid() {
			continue
		}
		parts := lo.Filter(m.Parts, func(p Part, _ int) bool { return validPart(p) })
		if len(parts) == 0 {
			continue
		}
		out = append(out, Message{Role: m.Role, Parts: parts, Timestamp: m.Timestamp})
	}
	return dropLeadingNonUser(out)
}

func dropLeadingNonUser(msgs []Message) []Message {
	return lo.DropWhile(msgs, func(m Message) bool { return m.Role != RoleUser })
}

func validPart(p Part) bool {
	switch v := p.(type) {
	case TextPart:
		return v.Text != ""
	case FunctionCallPart:
		return v.Name != ""
	case FunctionResponsePart:
		return v.Name != ""
	}
	return false
}

func normalizeRecord(rec any) (Message, bool) {
	obj, ok := rec.(map[string]any)
	if !ok {
		return Message{}, false
	}
	roleStr, ok := obj["role"].(string)
	if !ok || !Role(roleStr).Valid() {
		return Message{}, false
	}
	rawParts, ok := obj["parts"]
	if !ok || rawParts == nil {
		return Message{}, false
	}
	parts := normalizeParts(rawParts)
	if len(parts) == 0 {
		return Message{}, false
	}

	msg := Message{Role: Role(roleStr), Parts: parts}
	if ts, ok := obj["timestamp"].(float64); ok && ts > 0 {
		msg.Timestamp = time.UnixMilli(int64(ts))
	}
	return msg, true
}

func normalizeParts(raw any) []Part {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil
	}

	parts := make([]Part, 0, len(items))
	for _, item := range items {
		if p, ok := normalizePart(item); ok {
			parts = append(parts, p)
		}
	}
	return parts
}

func normalizePart(item any) (Part, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	if text, ok := obj["text"].(string); ok && text != "" {
		return TextPart{Text: text}, true
	}
	if fc, ok := obj["functionCall"].(map[string]any); ok {
		if name, ok := fc["name"].(string); ok && name != "" {
			args, _ := fc["args"].(map[string]any)
			return FunctionCallPart{Name: name, Args: orEmpty(args)}, true
		}
	}
	if fr, ok := obj["functionResponse"].(map[string]any); ok {
		if name, ok := fr["name"].(string); ok && name != "" {
			resp, _ := fr["response"].(map[string]any)
			return FunctionResponsePart{Name: name, Response: orEmpty(resp)}, true
		}
	}
	return nil, false
}
