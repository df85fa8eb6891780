// Package llmadapter adapts a concrete LLM vendor SDK to the
// session.Provider contract the session runtime consumes.
package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	backoffpkg "github.com/cocommand/cocommand/internal/backoff"
	"github.com/cocommand/cocommand/internal/session"
)

// Config configures an AnthropicProvider.
type Config struct {
	// APIKey authenticates against the Anthropic API (required).
	APIKey string

	// BaseURL overrides the default API base URL (optional, for proxies
	// and test doubles).
	BaseURL string

	// MaxRetries bounds how many times Stream re-attempts opening the
	// connection after a retryable error. Default 3.
	MaxRetries int

	// RetryDelay is the base delay of the exponential backoff between
	// connection attempts. Default 1s.
	RetryDelay time.Duration

	// DefaultModel is used when a call doesn't name one. Default
	// "claude-sonnet-4-20250514".
	DefaultModel string

	// DefaultMaxTokens bounds generated output when a call doesn't
	// specify one. Default 4096.
	DefaultMaxTokens int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "claude-sonnet-4-20250514"
	}
	if c.DefaultMaxTokens <= 0 {
		c.DefaultMaxTokens = 4096
	}
	return c
}

// AnthropicProvider implements session.Provider over Anthropic's Claude
// API, streaming incremental text/reasoning/tool-call events back to
// the session actor.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropicProvider builds a ready-to-use provider. model/maxTokens
// passed through LlmOptions on a given Stream call override the
// configured defaults.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llmadapter: anthropic API key is required")
	}
	cfg = cfg.withDefaults()

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

// Stream converts history/tools/opts into an Anthropic streaming
// request, opening the connection with a bounded exponential-backoff
// retry for transient failures, then hands the live SSE stream off to
// a goroutine that translates it into session.ProviderEvents.
func (p *AnthropicProvider) Stream(ctx context.Context, history []session.ProviderMessage, tools []session.ToolDescriptor, opts session.LlmOptions) (<-chan session.ProviderEvent, error) {
	anthMsgs, err := toAnthropicMessages(history)
	if err != nil {
		return nil, fmt.Errorf("llmadapter: convert history: %w", err)
	}
	anthTools, err := toAnthropicTools(tools)
	if err != nil {
		return nil, fmt.Errorf("llmadapter: convert tools: %w", err)
	}

	model := p.cfg.DefaultModel
	maxTokens := p.cfg.DefaultMaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  anthMsgs,
		MaxTokens: int64(maxTokens),
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: opts.SystemPrompt}}
	}
	if len(anthTools) > 0 {
		params.Tools = anthTools
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	stream, first, err := p.openStream(ctx, params)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	out := make(chan session.ProviderEvent, 16)
	go processAnthropicStream(stream, first, out, model, p.wrapError)
	return out, nil
}

// openStream opens the SSE connection with a bounded exponential
// backoff over genuinely transient failures. The SDK's stream is lazy
// — NewStreaming itself cannot fail — so the connection is only
// actually made (and any error surfaced) on the first Next(); that
// first event is returned alongside the stream so the caller doesn't
// lose it.
func (p *AnthropicProvider) openStream(ctx context.Context, params anthropic.MessageNewParams) (*ssestream.Stream[anthropic.MessageStreamEventUnion], *anthropic.MessageStreamEventUnion, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		stream := p.client.Messages.NewStreaming(ctx, params)
		if stream.Next() {
			first := stream.Current()
			return stream, &first, nil
		}
		if err := stream.Err(); err != nil {
			lastErr = err
		} else {
			return stream, nil, nil // empty stream, no error and no events
		}

		wrapped := p.wrapError(lastErr, string(params.Model))
		if !IsRetryable(wrapped) || attempt >= p.cfg.MaxRetries {
			return nil, nil, wrapped
		}
		policy := backoffpkg.BackoffPolicy{
			InitialMs: float64(p.cfg.RetryDelay.Milliseconds()),
			MaxMs:     30000,
			Factor:    2,
			Jitter:    0.1,
		}
		if err := backoffpkg.SleepWithBackoff(ctx, policy, attempt+1); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, lastErr
}

// wrapError classifies a raw SDK/network error into a *ProviderError
// carrying enough detail (status, code, message) for the session
// actor's LlmFailed handling and any future retry policy.
func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	pe := &ProviderError{Model: model, Cause: err, Reason: classifyError(err)}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe.Status = apiErr.StatusCode
		pe.Reason = classifyStatusCode(apiErr.StatusCode)
		pe.RequestID = apiErr.RequestID
		if raw := apiErr.RawJSON(); raw != "" {
			var payload struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.Unmarshal([]byte(raw), &payload) == nil {
				pe.Code = payload.Error.Type
				pe.Message = payload.Error.Message
			}
		}
	}
	if pe.Message == "" {
		pe.Message = err.Error()
	}
	return pe
}
