package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/infra/ai/prompt"
)

type fakeEndpoint struct {
	hits    atomic.Int32
	status  int
	body    string
	lastReq map[string]any
	lastKey string
}

func (f *fakeEndpoint) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		f.lastKey = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &f.lastReq)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4.1-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func newTestClient(srv *httptest.Server, key string) *Client {
	return NewClient(Options{
		BaseURL:    srv.URL + "/v1",
		Credential: func() string { return key },
	})
}

func TestCompleteMissingCredentialMakesNoCall(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusOK, body: completion("{}")}
	srv := f.server(t)

	_, err := newTestClient(srv, "").Complete(context.Background(), prompt.Library{}.Build(analysis.ShapeStructured, "data:image/png;base64,AA"))

	require.ErrorIs(t, err, ai.ErrMissingCredential)
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestCompleteSendsImageAndSchema(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusOK, body: completion(`{"description":"d"}`)}
	srv := f.server(t)

	out, err := newTestClient(srv, "sk-test").Complete(context.Background(), prompt.Library{}.Build(analysis.ShapeStructured, "data:image/png;base64,AA"))
	require.NoError(t, err)
	assert.Equal(t, `{"description":"d"}`, out)
	assert.Equal(t, int32(1), f.hits.Load())
	assert.Equal(t, "Bearer sk-test", f.lastKey)

	assert.Equal(t, "gpt-4.1-mini", f.lastReq["model"])
	assert.EqualValues(t, 1000, f.lastReq["max_tokens"])

	format, ok := f.lastReq["response_format"].(map[string]any)
	require.True(t, ok, "response_format missing")
	assert.Equal(t, "json_schema", format["type"])

	messages := f.lastReq["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,AA", img["url"])
	assert.Equal(t, "auto", img["detail"])
}

func TestCompleteFreeTextHasNoResponseFormat(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusOK, body: completion("plain")}
	srv := f.server(t)

	out, err := newTestClient(srv, "sk-test").Complete(context.Background(), prompt.Library{}.Build(analysis.ShapeFreeText, "data:image/png;base64,AA"))
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
	_, has := f.lastReq["response_format"]
	assert.False(t, has)
}

func TestCompleteReasoningModelUsesCompletionTokens(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusOK, body: completion("x")}
	srv := f.server(t)

	c := NewClient(Options{BaseURL: srv.URL + "/v1", Model: "o4-mini", Credential: func() string { return "k" }})
	_, err := c.Complete(context.Background(), prompt.Library{}.Build(analysis.ShapeFreeText, "u"))
	require.NoError(t, err)
	assert.EqualValues(t, 1000, f.lastReq["max_completion_tokens"])
	_, has := f.lastReq["max_tokens"]
	assert.False(t, has)
}

func TestCompleteNon2xxCarriesStatusAndBody(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusBadGateway, body: "upstream exploded"}
	srv := f.server(t)

	_, err := newTestClient(srv, "sk-test").Complete(context.Background(), prompt.Library{}.Build(analysis.ShapeStructured, "u"))

	var up *ai.UpstreamError
	require.True(t, errors.As(err, &up), "got %T %v", err, err)
	assert.Equal(t, http.StatusBadGateway, up.StatusCode)
	assert.Equal(t, "Bad Gateway", up.Status)
	assert.Contains(t, up.Body, "upstream exploded")
	assert.Equal(t, int32(1), f.hits.Load(), "no retries")
}

func TestCompleteQuotaExceeded(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusTooManyRequests, body: `{"error":{"message":"quota","type":"insufficient_quota","code":"rate_limit_exceeded"}}`}
	srv := f.server(t)

	_, err := newTestClient(srv, "sk-test").Complete(context.Background(), prompt.Library{}.Build(analysis.ShapeStructured, "u"))

	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
	var up *ai.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "quota [type: insufficient_quota] [code: rate_limit_exceeded]", up.Body)
	assert.Equal(t, int32(1), f.hits.Load())
}

func TestCompleteEmptyChoices(t *testing.T) {
	f := &fakeEndpoint{status: http.StatusOK, body: `{"id":"x","object":"chat.completion","choices":[]}`}
	srv := f.server(t)

	_, err := newTestClient(srv, "sk-test").Complete(context.Background(), prompt.Library{}.Build(analysis.ShapeStructured, "u"))
	var up *ai.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Zero(t, up.StatusCode)
}

func TestFromEnvReadsPerCall(t *testing.T) {
	t.Setenv("TEST_MODEL_KEY", "")
	cred := FromEnv("TEST_MODEL_KEY")
	assert.Empty(t, cred())

	t.Setenv("TEST_MODEL_KEY", " sk-late ")
	assert.Equal(t, "sk-late", cred())
}
