package history

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) []any {
	t.Helper()
	var raw []any
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestNormalize_DropsMalformedRecords(t *testing.T) {
	raw := decode(t, `[
		{"role": "user", "parts": [{"text": "oi"}]},
		{"role": "user"},
		{"parts": [{"text": "sem role"}]},
		{"role": "system", "parts": [{"text": "nope"}]},
		"not an object",
		{"role": "model", "parts": [{"text": "olá!"}]}
	]`)

	out := Normalize(raw)
	require.Len(t, out, 2)
	require.Equal(t, RoleUser, out[0].Role)
	require.Equal(t, "oi", out[0].Text())
	require.Equal(t, RoleModel, out[1].Role)
}

func TestNormalize_CoercesSinglePartObject(t *testing.T) {
	out := Normalize(decode(t, `[{"role": "user", "parts": {"text": "uma parte"}}]`))
	require.Len(t, out, 1)
	require.Equal(t, []Part{TextPart{Text: "uma parte"}}, out[0].Parts)
}

func TestNormalize_RecognizesEachPartKind(t *testing.T) {
	out := Normalize(decode(t, `[
		{"role": "user", "parts": [{"text": "que horas são?"}]},
		{"role": "model", "parts": [{"text": "", "functionCall": {"name": "getCurrentTime"}}]},
		{"role": "function", "parts": [{"functionResponse": {"name": "getCurrentTime", "response": {"currentTime": "agora"}}}]},
		{"role": "model", "parts": [{"unknown": true}, {"functionCall": {"args": {}}}]}
	]`))

	require.Len(t, out, 3)
	require.Equal(t, FunctionCallPart{Name: "getCurrentTime", Args: map[string]any{}}, out[1].Parts[0])
	require.Equal(t, FunctionResponsePart{
		Name:     "getCurrentTime",
		Response: map[string]any{"currentTime": "agora"},
	}, out[2].Parts[0])
}

func TestNormalize_DropsLeadingNonUserTurns(t *testing.T) {
	out := Normalize(decode(t, `[
		{"role": "model", "parts": [{"text": "bem-vindo"}]},
		{"role": "function", "parts": [{"functionResponse": {"name": "x", "response": {}}}]},
		{"role": "user", "parts": [{"text": "oi"}]},
		{"role": "model", "parts": [{"text": "olá"}]}
	]`))

	require.Len(t, out, 2)
	require.Equal(t, RoleUser, out[0].Role)
}

func TestNormalize_KeepsTimestamp(t *testing.T) {
	out := Normalize(decode(t, `[{"role": "user", "parts": [{"text": "oi"}], "timestamp": 1700000000123}]`))
	require.Len(t, out, 1)
	require.Equal(t, time.UnixMilli(1700000000123), out[0].Timestamp)
}

func TestNormalize_Idempotent(t *testing.T) {
	first := Normalize(decode(t, `[
		{"role": "model", "parts": [{"text": "cabeçalho"}]},
		{"role": "user", "parts": {"text": "tempo em Curitiba?"}, "timestamp": 1700000000000},
		{"role": "model", "parts": [{"functionCall": {"name": "getWeather", "args": {"location": "Curitiba, BR"}}}]},
		{"role": "function", "parts": [{"functionResponse": {"name": "getWeather", "response": {"temperature": 18.5}}}]},
		{"role": "model", "parts": [{"text": "Faz 18 graus."}, {"bogus": 1}]}
	]`))

	encoded, err := json.Marshal(first)
	require.NoError(t, err)

	second := Normalize(decode(t, string(encoded)))
	require.Equal(t, first, second)
}

func TestNormalize_Empty(t *testing.T) {
	require.Empty(t, Normalize(nil))
	require.Empty(t, Normalize(decode(t, `[{"role": "user", "parts": []}]`)))
}

func TestClean(t *testing.T) {
	in := []Message{
		NewText(RoleModel, "antes", time.Time{}),
		{Role: RoleUser, Parts: []Part{TextPart{}, TextPart{Text: "oi"}}},
		{Role: "bot", Parts: []Part{TextPart{Text: "x"}}},
		{Role: RoleModel, Parts: []Part{FunctionCallPart{}}},
	}

	out := Clean(in)
	require.Len(t, out, 1)
	require.Equal(t, []Part{TextPart{Text: "oi"}}, out[0].Parts)
}

func TestMessage_MarshalJSON(t *testing.T) {
	msg := Message{
		Role:  RoleModel,
		Parts: []Part{FunctionCallPart{Name: "getCurrentTime"}},
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"model","parts":[{"functionCall":{"name":"getCurrentTime","args":{}}}]}`, string(b))

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, FunctionCallPart{Name: "getCurrentTime", Args: map[string]any{}}, back.Parts[0])

	require.ErrorIs(t, json.Unmarshal([]byte(`{"role":"user","parts":[]}`), &back), ErrInvalidMessage)
}
