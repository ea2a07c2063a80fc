package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/course-engine/internal/models"
)

type stubCompleter struct {
	reply string
	err   error
	last  Request
}

func (s *stubCompleter) Complete(ctx context.Context, req Request) (string, error) {
	s.last = req
	return s.reply, s.err
}

var course = &models.Course{ID: "c1", Title: "ChatGPT Prompting", Description: "Bessere Prompts schreiben"}

func TestReplyBuildsPrompt(t *testing.T) {
	stub := &stubCompleter{reply: "Hallo!"}
	a := New(stub, Options{})

	history := []Message{{Role: "user", Content: "Hi"}, {Role: "assistant", Content: "Hallo"}}
	reply := a.Reply(context.Background(), Context{Course: course, Lesson: &models.Lesson{Title: "Rollen"}}, history, "Was ist ein Prompt?")

	assert.Equal(t, "Hallo!", reply)
	require.Len(t, stub.last.Messages, 4)
	assert.Equal(t, "system", stub.last.Messages[0].Role)
	assert.Contains(t, stub.last.Messages[0].Content, "ChatGPT Prompting")
	assert.Contains(t, stub.last.Messages[0].Content, "Bessere Prompts schreiben")
	assert.Contains(t, stub.last.Messages[0].Content, "Rollen")
	assert.Equal(t, Message{Role: "user", Content: "Was ist ein Prompt?"}, stub.last.Messages[3])
	assert.Equal(t, 0.7, stub.last.Temperature)
	assert.Equal(t, 500, stub.last.MaxTokens)
}

func TestReplyFallbacks(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Apology, New(&stubCompleter{err: errors.New("boom")}, Options{}).Reply(ctx, Context{}, nil, "q"))
	assert.Equal(t, Apology, New(&stubCompleter{reply: "  "}, Options{}).Reply(ctx, Context{}, nil, "q"))
	assert.Equal(t, Unavailable, New(nil, Options{}).Reply(ctx, Context{}, nil, "q"))
}

func TestTrimHistory(t *testing.T) {
	history := make([]Message, 30)
	for i := range history {
		history[i] = Message{Role: "user", Content: string(rune('a' + i%26))}
	}
	trimmed := TrimHistory(history, 20)
	require.Len(t, trimmed, 20)
	assert.Equal(t, history[10], trimmed[0])
	assert.Len(t, TrimHistory(history[:5], 20), 5)
}

func TestClientComplete(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, chatCompletionsPath, r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var body chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body.Model)
		assert.Equal(t, 500, body.MaxTokens)
		require.Len(t, body.Messages, 1)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Antwort "}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithHTTPClient(ClientConfig{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "gpt-test",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
	}, srv.Client())
	c.backoff.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	reply, err := c.Complete(context.Background(), Request{
		Messages:  []Message{{Role: "user", Content: "Frage"}},
		MaxTokens: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Antwort", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithHTTPClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL, MaxAttempts: 2}, srv.Client())
	var slept []time.Duration
	c.backoff.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	reply, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "Frage"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, []time.Duration{3 * time.Second}, slept)
}

func TestClientNonRetryable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClientWithHTTPClient(ClientConfig{APIKey: "bad", BaseURL: srv.URL, MaxAttempts: 3}, srv.Client())
	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = NewClientWithHTTPClient(ClientConfig{BaseURL: srv.URL}, srv.Client()).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
