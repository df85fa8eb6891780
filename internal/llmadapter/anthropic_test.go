package llmadapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cocommand/cocommand/internal/session"
)

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Fatal("expected an error when APIKey is empty")
	}
}

func TestNewAnthropicProviderAppliesDefaults(t *testing.T) {
	p, err := NewAnthropicProvider(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.cfg.MaxRetries <= 0 || p.cfg.RetryDelay <= 0 || p.cfg.DefaultModel == "" || p.cfg.DefaultMaxTokens <= 0 {
		t.Fatalf("expected defaults to be filled in, got %+v", p.cfg)
	}
}

func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected http.Flusher")
		}
		for _, line := range events {
			fmt.Fprintln(w, line)
		}
		flusher.Flush()
	}))
}

func TestStreamTextOnlyResponse(t *testing.T) {
	server := sseServer(t, []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":10,"output_tokens":0}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: message_delta`,
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":1}}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	p, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := p.Stream(ctx, nil, nil, session.LlmOptions{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var seen []session.ProviderEventType
	var text string
	for ev := range events {
		seen = append(seen, ev.Type)
		if ev.Type == session.ProviderTextDelta {
			text += ev.Delta
		}
	}

	want := []session.ProviderEventType{session.ProviderTextStart, session.ProviderTextDelta, session.ProviderTextEnd, session.ProviderFinish}
	if len(seen) != len(want) {
		t.Fatalf("event sequence = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event sequence = %v, want %v", seen, want)
		}
	}
	if text != "hello" {
		t.Fatalf("accumulated text = %q, want %q", text, "hello")
	}
}

func TestStreamToolCallResponse(t *testing.T) {
	server := sseServer(t, []string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":10,"output_tokens":0}}}`,
		``,
		`event: content_block_start`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"call_1","name":"weather_get","input":{}}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"London\"}"}}`,
		``,
		`event: content_block_stop`,
		`data: {"type":"content_block_stop","index":0}`,
		``,
		`event: message_stop`,
		`data: {"type":"message_stop"}`,
		``,
	})
	defer server.Close()

	p, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := p.Stream(ctx, nil, []session.ToolDescriptor{{Name: "weather_get"}}, session.LlmOptions{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var call *session.ProviderEvent
	for ev := range events {
		if ev.Type == session.ProviderToolCall {
			e := ev
			call = &e
		}
	}
	if call == nil {
		t.Fatal("expected a ProviderToolCall event")
	}
	if call.ToolCallID != "call_1" || call.ToolName != "weather_get" {
		t.Fatalf("unexpected tool call: %+v", call)
	}
	if string(call.ToolInput) != `{"city":"London"}` {
		t.Fatalf("tool input = %s, want %s", call.ToolInput, `{"city":"London"}`)
	}
}

func TestStreamServerErrorIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"rate limited"}}`)
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL + "/", MaxRetries: 1, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = p.Stream(ctx, nil, nil, session.LlmOptions{})
	if err == nil {
		t.Fatal("expected an error for a repeatedly rate-limited connection")
	}
	pe, ok := asProviderError(err)
	if !ok {
		t.Fatalf("expected a *ProviderError, got %T: %v", err, err)
	}
	if pe.Reason != FailoverRateLimit {
		t.Fatalf("expected FailoverRateLimit, got %s", pe.Reason)
	}
}
