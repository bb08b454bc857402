package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NotARoomba/canvas/internal/platform/logger"
)

var explanationSchema = &Schema{
	Name: "explanation_test",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"explanation": map[string]any{"type": "string"},
		},
		"required":             []string{"explanation"},
		"additionalProperties": false,
	},
}

func chatServer(t *testing.T, status int, content string, seen func(body map[string]any)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header: %q", got)
		}
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			_ = json.Unmarshal(raw, &body)
			seen(body)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "boom", "type": "server_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srvURL string, retries int) Client {
	return NewClient(logger.Nop(), Config{APIKey: "test-key", BaseURL: srvURL + "/v1", MaxRetries: retries}, nil)
}

func TestCompleteJSONStripsFencesAndDecodes(t *testing.T) {
	var body map[string]any
	srv, _ := chatServer(t, http.StatusOK, "```json\n{\"explanation\":\"La **luz** entra\"}\n```", func(b map[string]any) { body = b })

	var out struct {
		Explanation string `json:"explanation"`
	}
	err := newTestClient(srv.URL, 0).CompleteJSON(context.Background(), Request{
		Model:  "google/gemini-2.5-flash-preview",
		Prompt: "Explica",
		Schema: explanationSchema,
	}, &out)
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if out.Explanation != "La **luz** entra" {
		t.Fatalf("explanation: %q", out.Explanation)
	}

	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Fatalf("response_format: %v", body["response_format"])
	}
	js, _ := rf["json_schema"].(map[string]any)
	if js["name"] != "explanation_test" || js["strict"] != true {
		t.Fatalf("json_schema: %v", js)
	}
}

func TestCompleteJSONSchemaMismatchIsInvalidResponse(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, `{"texto":"x"}`, nil)
	var out map[string]any
	err := newTestClient(srv.URL, 0).CompleteJSON(context.Background(), Request{Model: "m", Prompt: "p", Schema: explanationSchema}, &out)
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidResponse, got %T %v", err, err)
	}
}

func TestCompleteJSONMalformedIsInvalidResponse(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, "not json at all", nil)
	var out map[string]any
	err := newTestClient(srv.URL, 0).CompleteJSON(context.Background(), Request{Model: "m", Prompt: "p", Schema: explanationSchema}, &out)
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidResponse, got %T %v", err, err)
	}
}

func TestCompleteJSONMissingKey(t *testing.T) {
	c := NewClient(logger.Nop(), Config{BaseURL: "http://127.0.0.1:1/v1"}, nil)
	err := c.CompleteJSON(context.Background(), Request{Model: "m", Prompt: "p"}, nil)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	srv, calls := chatServer(t, http.StatusInternalServerError, "", nil)
	err := newTestClient(srv.URL, 1).CompleteJSON(context.Background(), Request{Model: "m", Prompt: "p"}, nil)
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got %T %v", err, err)
	}
	if got := atomic.LoadInt32(calls); got != 2 {
		t.Fatalf("calls: got %d want 2", got)
	}
}

func TestCompleteJSONRateLimit(t *testing.T) {
	srv, _ := chatServer(t, http.StatusTooManyRequests, "", nil)
	err := newTestClient(srv.URL, 0).CompleteJSON(context.Background(), Request{Model: "m", Prompt: "p"}, nil)
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %T %v", err, err)
	}
}

func TestCompleteJSONRateLimitKeepsRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "slow down", "type": "rate_limit"},
		})
	}))
	t.Cleanup(srv.Close)

	err := newTestClient(srv.URL, 0).CompleteJSON(context.Background(), Request{Model: "m", Prompt: "p"}, nil)
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %T %v", err, err)
	}
	if rl.RetryAfter != 3*time.Second {
		t.Fatalf("retry after: got %s want 3s", rl.RetryAfter)
	}
}

func TestUserMessageWithImages(t *testing.T) {
	msg := userMessage(Request{Prompt: "describe", Images: []string{"data:image/png;base64,AAAA", " "}})
	if msg.Content != "" || len(msg.MultiContent) != 2 {
		t.Fatalf("multi content: %+v", msg)
	}
	if msg.MultiContent[1].ImageURL == nil || !strings.HasPrefix(msg.MultiContent[1].ImageURL.URL, "data:image/png") {
		t.Fatalf("image part: %+v", msg.MultiContent[1])
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Fatalf("StripFences(%q) = %q want %q", in, got, want)
		}
	}
}
