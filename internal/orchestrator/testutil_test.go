package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/flowline-ai/orchestrator/internal/agentrt"
	"github.com/flowline-ai/orchestrator/internal/approval"
	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/conversation"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/llm"
	"github.com/flowline-ai/orchestrator/internal/storage"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

type harness struct {
	orch   *Orchestrator
	conv   *conversation.Service
	agents *agentrt.Service
	model  *llm.ScriptedModel
	clock  *clock.FakeClock
}

func newHarness(t *testing.T, scripts [][]llm.Frame) *harness {
	t.Helper()

	store := storage.New(t.TempDir())
	bus := event.NewBus()
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	convSvc := conversation.NewService(conversation.NewFileStore(store), fc, bus)
	agentSvc := agentrt.NewService(agentrt.NewFileStore(store), fc, bus)

	policy := approval.DefaultPolicy()
	approvalSvc := approval.NewService(approval.NewFileStore(store), policy, fc, bus)

	model := &llm.ScriptedModel{Scripts: scripts}

	orch := New(convSvc, agentSvc, approvalSvc, model, bus, fc, 100)

	return &harness{orch: orch, conv: convSvc, agents: agentSvc, model: model, clock: fc}
}

// drain reads every chunk from ch until it closes, failing the test if that
// takes longer than the given timeout.
func drain(t *testing.T, ch <-chan types.Chunk, timeout time.Duration) []types.Chunk {
	t.Helper()
	var out []types.Chunk
	deadline := time.After(timeout)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-deadline:
			t.Fatalf("timed out waiting for stream, got %d chunks so far", len(out))
		}
	}
}

func tokenFrames(text string) []llm.Frame {
	return []llm.Frame{
		{Type: llm.FrameToken, Token: text},
		{Type: llm.FrameDone, FinishReason: "stop"},
	}
}

func toolCallFrame(id, name string, args map[string]any) []llm.Frame {
	return []llm.Frame{
		{Type: llm.FrameToolCall, ToolCall: types.ToolCall{ID: id, Name: name, Arguments: args}},
	}
}

func switchFrame(target types.AgentType, reason string) []llm.Frame {
	return []llm.Frame{
		{Type: llm.FrameSwitchMode, TargetAgent: target, Reason: reason},
	}
}

// switchToolCallFrame models a model that issues switch_mode as an ordinary
// tool call rather than a dedicated FrameSwitchMode frame, exercising the
// drainStream branch that recognizes the tool by name.
func switchToolCallFrame(id string, target types.AgentType, reason string) []llm.Frame {
	return []llm.Frame{
		{Type: llm.FrameToolCall, ToolCall: types.ToolCall{
			ID:   id,
			Name: switchModeTool,
			Arguments: map[string]any{
				"target": string(target),
				"reason": reason,
			},
		}},
	}
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
