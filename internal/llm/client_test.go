package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	resp := map[string]any{
		"id":    "chatcmpl-1",
		"model": "test-model",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 40, "total_tokens": 160},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestCompleteSendsAuthAndParses(t *testing.T) {
	var gotAuth string
	var gotReq ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"decision":"HOLD"}`)))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Endpoint: server.URL, APIKey: "sk-test", Model: "test-model"})

	resp, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, `{"decision":"HOLD"}`, resp.Choices[0].Message.Content)

	usage := c.Usage()
	assert.Equal(t, 1, usage.Requests)
	assert.Equal(t, int64(120), usage.PromptTokens)
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Endpoint: server.URL})

	_, err := c.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestCompleteWithRetryRecovers(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Endpoint: server.URL, Timeout: 5 * time.Second})

	resp, err := c.CompleteWithRetry(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
}

func TestCompleteWithSystem(t *testing.T) {
	var gotReq ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(completionBody("answer")))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{Endpoint: server.URL})

	out, err := c.CompleteWithSystem(context.Background(), "be brief", "question")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
}

type testDecision struct {
	Decision   string `json:"decision"`
	Symbol     string `json:"symbol"`
	Confidence int    `json:"confidence"`
}

func TestExtractJSONPlainObject(t *testing.T) {
	var d testDecision
	err := ExtractJSON(`{"decision":"BUY","symbol":"AAPL","confidence":75}`, &d)
	require.NoError(t, err)
	assert.Equal(t, "BUY", d.Decision)
	assert.Equal(t, 75, d.Confidence)
}

func TestExtractJSONFromMarkdownFence(t *testing.T) {
	content := "Here is my analysis:\n```json\n{\"decision\":\"SELL\",\"symbol\":\"TSLA\",\"confidence\":68}\n```\nGood luck."
	var d testDecision
	require.NoError(t, ExtractJSON(content, &d))
	assert.Equal(t, "SELL", d.Decision)
}

func TestExtractJSONFromSurroundingProse(t *testing.T) {
	content := `After weighing the indicators I conclude the following. {"decision":"BUY","symbol":"NVDA","confidence":82} That is my final answer.`
	var d testDecision
	require.NoError(t, ExtractJSON(content, &d))
	assert.Equal(t, "NVDA", d.Symbol)
}

func TestExtractJSONNestedBracesAndStrings(t *testing.T) {
	content := `{"decision":"HOLD","symbol":"","confidence":50,"reasoning":"resistance at {120} held, \"wait\" for now"}`
	var out map[string]any
	require.NoError(t, ExtractJSON(content, &out))
	assert.Equal(t, "HOLD", out["decision"])
}

func TestExtractJSONNoObject(t *testing.T) {
	var d testDecision
	err := ExtractJSON("I cannot decide right now.", &d)
	assert.ErrorIs(t, err, ErrNoValidJSON)
}

func TestExtractJSONUnbalanced(t *testing.T) {
	var d testDecision
	err := ExtractJSON(`{"decision":"BUY","symbol":"AAPL"`, &d)
	assert.ErrorIs(t, err, ErrNoValidJSON)
}
