package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnquangdev/meeting-minutes/errors"
	"github.com/johnquangdev/meeting-minutes/pkg/config"
)

func TestLLMComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("invalid payload: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.MaxTokens != 4096 {
			t.Fatalf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"SPEAKER_00\":\"Alice\"}"}}]}`))
	}))
	defer ts.Close()

	c := NewLLMClient(&config.LLMConfig{BaseURL: ts.URL, APIKey: "k", Model: "m", MaxTokens: 4096, Temperature: 0.3, RequestTimeout: time.Second})
	out, err := c.Complete(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"SPEAKER_00":"Alice"}`, out)
}

func TestLLMCompleteErrors(t *testing.T) {
	respond := func(status int, body string) *LLMClient {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(body))
		}))
		t.Cleanup(ts.Close)
		return NewLLMClient(&config.LLMConfig{BaseURL: ts.URL, APIKey: "k", Model: "m"})
	}

	_, err := respond(http.StatusInternalServerError, `{"error":{"message":"overloaded"}}`).Complete(context.Background(), "", "p")
	assert.True(t, apperrors.IsRetryable(err))

	_, err = respond(http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`).Complete(context.Background(), "", "p")
	var sub *apperrors.SubmissionError
	require.True(t, errors.As(err, &sub))
	assert.Equal(t, "invalid api key", sub.Message)

	_, err = respond(http.StatusOK, `{"choices":[]}`).Complete(context.Background(), "", "p")
	var failure *apperrors.FailureError
	assert.True(t, errors.As(err, &failure))
}
