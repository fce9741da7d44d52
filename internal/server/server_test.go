package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comigor/gustavo-go/internal/agent"
	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/persona"
)

type fakeProcessor struct {
	out  *agent.Outcome
	err  error
	reqs []agent.Request
}

func (f *fakeProcessor) Process(_ context.Context, req agent.Request) (*agent.Outcome, error) {
	f.reqs = append(f.reqs, req)
	if req.Message == "" {
		return nil, agent.ErrMissingMessage
	}
	return f.out, f.err
}

func newTestServer(t *testing.T, p Processor, cfg config.Config) (http.Handler, *persona.Resolver) {
	t.Helper()
	resolver := persona.NewResolver(persona.NewMemoryStore(), persona.DefaultGlobalKey)
	return NewRouter(NewHandler(p, resolver), cfg), resolver
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChat_Success(t *testing.T) {
	p := &fakeProcessor{out: &agent.Outcome{Text: "Olá, construtor!"}}
	h, _ := newTestServer(t, p, config.Config{})

	rec := do(h, http.MethodPost, "/chat", `{"message":"oi","sessionId":"s1"}`, map[string]string{"x-user-id": "u1"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Olá, construtor!", body["response"])
	assert.Equal(t, "s1", body["sessionId"])
	assert.NotContains(t, body, "functionCalls")
	assert.NotEmpty(t, rec.Header().Get(correlationHeader))

	require.Len(t, p.reqs, 1)
	assert.Equal(t, "oi", p.reqs[0].Message)
	assert.Equal(t, "u1", p.reqs[0].UserID)
	assert.Equal(t, "s1", p.reqs[0].SessionID)
	assert.Nil(t, p.reqs[0].History)
}

func TestChat_FunctionCallsReported(t *testing.T) {
	p := &fakeProcessor{out: &agent.Outcome{
		Text: "São 10:00.",
		Invocations: []agent.ToolInvocation{{
			Name:   "getCurrentTime",
			Args:   map[string]any{},
			Result: map[string]any{"currentTime": "01/01/2024, 10:00:00"},
		}},
	}}
	h, _ := newTestServer(t, p, config.Config{})

	rec := do(h, http.MethodPost, "/chat", `{"message":"que horas são?"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.FunctionCalls, 1)
	assert.Equal(t, "getCurrentTime", resp.FunctionCalls[0].Name)
	assert.Equal(t, "01/01/2024, 10:00:00", resp.FunctionCalls[0].Response["currentTime"])
	assert.NotContains(t, rec.Body.String(), "sessionId")
}

func TestChat_HistoryShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []any
	}{
		{"array", `{"message":"oi","history":[{"role":"user","parts":[{"text":"a"}]}]}`, []any{map[string]any{"role": "user", "parts": []any{map[string]any{"text": "a"}}}}},
		{"empty array", `{"message":"oi","history":[]}`, []any{}},
		{"null", `{"message":"oi","history":null}`, nil},
		{"not an array", `{"message":"oi","history":"lixo"}`, []any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcessor{out: &agent.Outcome{Text: "ok"}}
			h, _ := newTestServer(t, p, config.Config{})

			rec := do(h, http.MethodPost, "/chat", tc.body, nil)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, p.reqs, 1)
			assert.Equal(t, tc.want, p.reqs[0].History)
		})
	}
}

func TestChat_MissingMessage(t *testing.T) {
	for _, body := range []string{`{}`, `{"message":""}`, `{"message":"   "}`, `not json`} {
		p := &fakeProcessor{}
		h, _ := newTestServer(t, p, config.Config{})

		rec := do(h, http.MethodPost, "/chat", body, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msgMissingMessage, decode(t, rec)["error"])
		assert.Empty(t, p.reqs)
	}
}

func TestChat_ProcessingError(t *testing.T) {
	p := &fakeProcessor{err: errors.New("provider unavailable")}
	h, _ := newTestServer(t, p, config.Config{})

	rec := do(h, http.MethodPost, "/chat", `{"message":"oi"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Erro interno no chat: provider unavailable", decode(t, rec)["error"])
}

func TestChat_RateLimited(t *testing.T) {
	p := &fakeProcessor{out: &agent.Outcome{Text: "ok"}}
	h, _ := newTestServer(t, p, config.Config{RateLimit: config.RateLimitConfig{Requests: 2, Window: time.Minute}})

	for i := 0; i < 2; i++ {
		rec := do(h, http.MethodPost, "/chat", `{"message":"oi"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(h, http.MethodPost, "/chat", `{"message":"oi"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, decode(t, rec), "error")
	assert.Len(t, p.reqs, 2)
}

func TestAdmin_SystemInstruction(t *testing.T) {
	cfg := config.Config{Admin: config.AdminConfig{Secret: "s3cret"}}
	h, resolver := newTestServer(t, &fakeProcessor{}, cfg)

	rec := do(h, http.MethodPost, "/api/admin/system-instruction", `{"systemInstruction":"Seja breve."}`, map[string]string{"x-admin-secret": "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	text, err := resolver.Global(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Seja breve.", text)

	rec = do(h, http.MethodGet, "/api/admin/system-instruction", "", map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Seja breve.", decode(t, rec)["systemInstruction"])
}

func TestAdmin_Unauthorized(t *testing.T) {
	cfg := config.Config{Admin: config.AdminConfig{Secret: "s3cret"}}
	h, _ := newTestServer(t, &fakeProcessor{}, cfg)

	rec := do(h, http.MethodGet, "/api/admin/system-instruction", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/admin/system-instruction", `{"systemInstruction":"x"}`, map[string]string{"x-admin-secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_DisabledWithoutSecret(t *testing.T) {
	h, _ := newTestServer(t, &fakeProcessor{}, config.Config{})

	rec := do(h, http.MethodGet, "/api/admin/system-instruction", "", map[string]string{"x-admin-secret": ""})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPreferences(t *testing.T) {
	h, resolver := newTestServer(t, &fakeProcessor{}, config.Config{})
	headers := map[string]string{"x-user-id": "steve"}

	rec := do(h, http.MethodGet, "/api/user/preferences", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode(t, rec)["customSystemInstruction"])

	rec = do(h, http.MethodPut, "/api/user/preferences", `{"customSystemInstruction":"Fale como pirata."}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Fale como pirata.", resolver.Resolve(context.Background(), "steve"))

	rec = do(h, http.MethodGet, "/api/user/preferences", "", headers)
	assert.Equal(t, "Fale como pirata.", decode(t, rec)["customSystemInstruction"])
}

func TestPreferences_MissingUser(t *testing.T) {
	h, _ := newTestServer(t, &fakeProcessor{}, config.Config{})

	rec := do(h, http.MethodGet, "/api/user/preferences", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPut, "/api/user/preferences", `{"customSystemInstruction":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t, &fakeProcessor{}, config.Config{})

	rec := do(h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gustavo_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestServer(t, &fakeProcessor{}, config.Config{})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-user-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
