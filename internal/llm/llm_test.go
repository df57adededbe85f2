package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/reqengine/internal/prompt"
)

func testPrompt() prompt.Prompt {
	return prompt.Prompt{Kind: prompt.KindExtract, System: "sys", User: "usr", Prime: "["}
}

func TestLocal_Complete(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"generated_text": "{\"title\": \"x\"}]"}`))
	}))
	defer srv.Close()

	l := NewLocal(Config{BaseURL: srv.URL, MaxRetries: 1}, prompt.Llama3{})
	out, err := l.Complete(context.Background(), testPrompt(), Options{MaxTokens: 400, Temperature: 0.3, TopP: 0.85, RepetitionPenalty: 1.1})
	require.NoError(t, err)

	assert.Equal(t, `{"title": "x"}]`, out)
	assert.True(t, strings.HasSuffix(got.Inputs, "<|end_header_id|>\n\n["))
	assert.Equal(t, 400, got.Parameters.MaxNewTokens)
	assert.InDelta(t, 0.85, got.Parameters.TopP, 1e-9)
	assert.True(t, got.Parameters.DoSample)
	assert.False(t, got.Parameters.ReturnFullText)
}

func TestLocal_ListResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"generated_text": "hello"}]`))
	}))
	defer srv.Close()

	out, err := NewLocal(Config{BaseURL: srv.URL}, prompt.Plain{}).Complete(context.Background(), testPrompt(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestLocal_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"generated_text": "ok"}`))
	}))
	defer srv.Close()

	out, err := NewLocal(Config{BaseURL: srv.URL, MaxRetries: 2}, prompt.Llama3{}).Complete(context.Background(), testPrompt(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLocal_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "input too long"}`))
	}))
	defer srv.Close()

	_, err := NewLocal(Config{BaseURL: srv.URL, MaxRetries: 3}, prompt.Llama3{}).Complete(context.Background(), testPrompt(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input too long")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocal_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"generated_text": "   "}`))
	}))
	defer srv.Close()

	_, err := NewLocal(Config{BaseURL: srv.URL}, prompt.Llama3{}).Complete(context.Background(), testPrompt(), Options{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestLocal_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := NewLocal(Config{BaseURL: srv.URL, MaxRetries: 3}, prompt.Llama3{}).Complete(ctx, testPrompt(), Options{})
	require.Error(t, err)
}

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	reply    string
	errs     []error
	calls    int
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

type passwordScrubber struct{}

func (passwordScrubber) Scrub(s string) string { return strings.ReplaceAll(s, "hunter2", "[REDACTED]") }

func TestHostedChat_Complete(t *testing.T) {
	model := &fakeModel{reply: "answer"}
	h := NewHostedChatWithModel(model, Config{Backend: KindHosted}, passwordScrubber{})

	p := prompt.Prompt{System: "sys", User: "password hunter2"}
	out, err := h.Complete(context.Background(), p, Options{MaxTokens: 300, Temperature: 0.3, TopP: 0.85})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "password [REDACTED]"}, model.messages[1].Parts[0])
	assert.Equal(t, 300, model.opts.MaxTokens)
	assert.InDelta(t, 0.85, model.opts.TopP, 1e-9)
}

func TestChatRole(t *testing.T) {
	tests := []struct {
		role prompt.Role
		want schema.ChatMessageType
	}{
		{prompt.RoleSystem, schema.ChatMessageTypeSystem},
		{prompt.RoleUser, schema.ChatMessageTypeHuman},
		{prompt.RoleAssistant, schema.ChatMessageTypeAI},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, chatRole(tt.role))
		})
	}
}

func TestHostedChat_PermanentError(t *testing.T) {
	model := &fakeModel{errs: []error{errors.New("invalid api key")}}
	h := NewHostedChatWithModel(model, Config{Backend: KindHosted, MaxRetries: 3}, nil)

	_, err := h.Complete(context.Background(), testPrompt(), Options{})
	require.Error(t, err)
	assert.Equal(t, 1, model.calls)
}

func TestHostedChat_EmptyReply(t *testing.T) {
	h := NewHostedChatWithModel(&fakeModel{reply: ""}, Config{Backend: KindHosted}, nil)
	_, err := h.Complete(context.Background(), testPrompt(), Options{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNew(t *testing.T) {
	b, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, b.Name())

	_, err = New(Config{Backend: KindHosted}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Backend: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Dialect: "klingon"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClassifyHostedError(t *testing.T) {
	assert.True(t, isRetryableError(classifyHostedError(errors.New("API returned unexpected status code: 429"))))
	assert.True(t, isRetryableError(classifyHostedError(context.DeadlineExceeded)))
	assert.False(t, isRetryableError(classifyHostedError(errors.New("invalid request"))))
}

func TestScripted(t *testing.T) {
	s := NewScripted(Reply{Text: "one"}, Reply{Err: errors.New("boom")})

	out, err := s.Complete(context.Background(), testPrompt(), Options{MaxTokens: 1})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	_, err = s.Complete(context.Background(), testPrompt(), Options{})
	assert.EqualError(t, err, "boom")

	_, err = s.Complete(context.Background(), testPrompt(), Options{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	assert.Len(t, s.Calls(), 3)
	assert.Equal(t, 1, s.CallOptions()[0].MaxTokens)
}
