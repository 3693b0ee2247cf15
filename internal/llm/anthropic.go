package llm

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
	"github.com/cenkalti/backoff/v4"

	"github.com/flowline-ai/orchestrator/pkg/types"
)

// Retry tuning for the Anthropic adapter (grounded on the teacher's session
// loop constants: MaxRetries, RetryInitialInterval, RetryMaxInterval,
// RetryMaxElapsedTime).
const (
	maxRetries           = 3
	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
	retryMaxElapsedTime  = 2 * time.Minute
	defaultMaxTokens     = 4096
)

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = retryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

// AnthropicConfig configures an AnthropicModel.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string // default "claude-sonnet-4-20250514"
}

// AnthropicModel is the concrete Model adapter backing the orchestrator in
// production: it opens a streaming Anthropic Messages request and translates
// SSE events into Frames.
type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicModel builds an AnthropicModel from config.
func NewAnthropicModel(cfg AnthropicConfig) (*AnthropicModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicModel{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Complete opens a streaming completion, retrying transient upstream
// failures with jittered exponential backoff before the first byte of the
// stream is returned. Once streaming has started, a mid-stream failure is
// surfaced as a Recv error rather than retried, since partial output cannot
// be safely replayed into the frame sequence.
func (m *AnthropicModel) Complete(ctx context.Context, systemPrompt string, history []types.Message, tools []ToolSchema) (Stream, error) {
	params, err := m.buildParams(systemPrompt, history, tools)
	if err != nil {
		return nil, err
	}

	retry := newRetryBackoff(ctx)
	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	for {
		s := m.client.Messages.NewStreaming(ctx, params)
		if !s.Next() {
			if err := s.Err(); err != nil {
				if !isRetryable(err) {
					return nil, fmt.Errorf("llm: anthropic request failed: %w", err)
				}
				wait := retry.NextBackOff()
				if wait == backoff.Stop {
					return nil, fmt.Errorf("llm: anthropic request failed after retries: %w", err)
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
					continue
				}
			}
		}
		stream = s
		break
	}

	return &anthropicStream{stream: stream, first: true}, nil
}

func (m *AnthropicModel) buildParams(systemPrompt string, history []types.Message, tools []ToolSchema) (anthropic.MessageNewParams, error) {
	messages, err := convertHistory(history)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		Messages:  messages,
		MaxTokens: m.maxTokens,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
	}
	if len(tools) > 0 {
		converted, err := convertTools(tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = converted
	}
	return params, nil
}

func convertHistory(history []types.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		if msg.Role == types.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.Role == types.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
		}

		var param anthropic.MessageParam
		switch msg.Role {
		case types.RoleAssistant:
			param = anthropic.NewAssistantMessage(content...)
		default:
			param = anthropic.NewUserMessage(content...)
		}
		result = append(result, param)
	}
	return result, nil
}

func convertTools(tools []ToolSchema) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("llm: marshal schema for tool %s: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("llm: invalid schema for tool %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("llm: tool %s produced no tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		result = append(result, param)
	}
	return result, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 408, 409, 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := err.Error()
	for _, needle := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "no such host"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// anthropicStream adapts an Anthropic SSE stream to the Stream port,
// accumulating tool_use input JSON across content_block_delta events the
// way the Anthropic streaming protocol requires.
type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	first  bool

	pendingToolID   string
	pendingToolName string
	pendingInput    strings.Builder
}

func (s *anthropicStream) Recv(ctx context.Context) (Frame, error) {
	for {
		if !s.first {
			if !s.stream.Next() {
				if err := s.stream.Err(); err != nil {
					return Frame{}, fmt.Errorf("llm: anthropic stream error: %w", err)
				}
				return Frame{Type: FrameDone, FinishReason: "stop"}, nil
			}
		}
		s.first = false

		event := s.stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				s.pendingToolID = toolUse.ID
				s.pendingToolName = toolUse.Name
				s.pendingInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					return Frame{Type: FrameToken, Token: delta.Text}, nil
				}
			case "input_json_delta":
				s.pendingInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if s.pendingToolID != "" {
				var args map[string]any
				raw := s.pendingInput.String()
				if raw != "" {
					if err := json.Unmarshal([]byte(raw), &args); err != nil {
						return Frame{}, fmt.Errorf("llm: invalid tool_use input JSON: %w", err)
					}
				}
				frame := Frame{
					Type: FrameToolCall,
					ToolCall: types.ToolCall{
						ID:        s.pendingToolID,
						Name:      s.pendingToolName,
						Arguments: args,
					},
				}
				s.pendingToolID = ""
				s.pendingToolName = ""
				return frame, nil
			}

		case "message_delta":
			if reason := event.AsMessageDelta().Delta.StopReason; reason != "" {
				return Frame{Type: FrameDone, FinishReason: mapStopReason(string(reason))}, nil
			}

		case "message_stop":
			return Frame{Type: FrameDone, FinishReason: "stop"}, nil
		}
	}
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "tool_use":
		return "tool_use"
	case "max_tokens":
		return "max_tokens"
	default:
		return "stop"
	}
}

func (s *anthropicStream) Close() error {
	return s.stream.Close()
}
