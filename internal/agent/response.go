package agent

// FunctionCall is one tool invocation as reported to the client.
type FunctionCall struct {
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
	Response map[string]any `json:"response"`
}

// Response is the body of a successful POST /chat.
type Response struct {
	Response      string         `json:"response"`
	FunctionCalls []FunctionCall `json:"functionCalls,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
}

// FormatResponse builds the client payload. functionCalls is left out when no tool ran.
func FormatResponse(text string, invocations []ToolInvocation) Response {
	resp := Response{Response: text}
	for _, inv := range invocations {
		resp.FunctionCalls = append(resp.FunctionCalls, FunctionCall{
			Name:     inv.Name,
			Args:     orEmpty(inv.Args),
			Response: orEmpty(inv.Result),
		})
	}
	return resp
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
