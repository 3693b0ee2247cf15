// Package llm provides the LanguageModelStream port (§2 item 6): given a
// message history and a tool schema, yields an ordered stream of token,
// tool_call and done frames. The port hides the concrete model provider
// from MessageProcessor; this package ships one real adapter
// (internal/llm/anthropic.go) and one scripted fake for tests
// (internal/llm/fake.go).
package llm

import (
	"context"

	"github.com/flowline-ai/orchestrator/pkg/types"
)

// FrameType discriminates a Frame emitted by a Stream.
type FrameType string

const (
	FrameToken      FrameType = "token"
	FrameToolCall   FrameType = "tool_call"
	FrameSwitchMode FrameType = "switch_agent"
	FrameDone       FrameType = "done"
)

// Frame is one record yielded by a Stream (§9: "Frame — a typed record in
// the inbound stream produced by a LanguageModelStream").
type Frame struct {
	Type FrameType

	// FrameToken
	Token string

	// FrameToolCall
	ToolCall types.ToolCall

	// FrameSwitchMode: a model-internal request to change the active agent,
	// distinct from a tool_call the transport must execute.
	TargetAgent types.AgentType
	Reason      string
	Confidence  *float64

	// FrameDone
	FinishReason string // "stop" | "tool_use" | "max_tokens" | "error"
}

// ToolSchema describes one tool the model may call.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// Stream is the external port a concrete model adapter implements. Recv
// normally ends a stream with a FrameDone frame; it may instead return
// io.EOF once no frames remain (the scripted fake does), which consumers
// treat as a normal end. Any other error return means the stream failed
// mid-flight (UpstreamFailure).
type Stream interface {
	Recv(ctx context.Context) (Frame, error)
	Close() error
}

// Model is the external collaborator MessageProcessor calls to open a
// Stream for one inference pass over history.
type Model interface {
	Complete(ctx context.Context, systemPrompt string, history []types.Message, tools []ToolSchema) (Stream, error)
}
