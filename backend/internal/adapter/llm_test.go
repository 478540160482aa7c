package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "circlenet/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completion(message map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{{"index": 0, "message": message, "finish_reason": "stop"}},
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *LLMAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	a := NewLLMAdapter(server.URL+"/", "", "test-model")
	a.backoff = time.Millisecond
	return a
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGenerate_ContentAndToolCalls(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Len(t, req["tools"], 1)

		writeJSON(w, http.StatusOK, completion(map[string]interface{}{
			"role":    "assistant",
			"content": "draft",
			"tool_calls": []map[string]interface{}{{
				"id":       "call-1",
				"type":     "function",
				"function": map[string]interface{}{"name": publishTool, "arguments": `{"body":"Hello all"}`},
			}},
		}))
	})

	resp, err := a.Generate(context.Background(), "system", "user", announcementTools)
	require.NoError(t, err)
	assert.Equal(t, "draft", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "Hello all", resp.ToolCalls[0].Arguments["body"])
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": map[string]interface{}{"message": "upstream", "type": "server_error"}})
			return
		}
		writeJSON(w, http.StatusOK, completion(map[string]interface{}{"role": "assistant", "content": "ok"}))
	})

	resp, err := a.Generate(context.Background(), "s", "u", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerate_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": map[string]interface{}{"message": "bad model", "type": "invalid_request_error"}})
	})

	_, err := a.Generate(context.Background(), "s", "u", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeAgent))
	assert.False(t, apperrors.IsRetryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerate_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{"error": map[string]interface{}{"message": "slow down"}})
	})

	_, err := a.Generate(context.Background(), "s", "u", nil)
	var llmErr *apperrors.ErrAgentLLMFailed
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, 3, llmErr.Attempts)
	assert.True(t, llmErr.Retryable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSetModel(t *testing.T) {
	a := NewLLMAdapter("http://localhost:4000", "", "first")
	a.SetModel("")
	assert.Equal(t, "first", a.GetModel())
	a.SetModel("second")
	assert.Equal(t, "second", a.GetModel())
}

func TestParseJSONArguments(t *testing.T) {
	args, err := parseJSONArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = parseJSONArguments("{not json")
	assert.Error(t, err)
}
