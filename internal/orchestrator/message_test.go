package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/orchestrator/internal/llm"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

func TestProcessMessage_PlainReply(t *testing.T) {
	h := newHarness(t, [][]llm.Frame{tokenFrames("hi there")})
	ctx := ctxTimeout(t)

	chunks := drain(t, h.orch.ProcessMessage(ctx, "s1", "hello", nil), 2*time.Second)
	require.NotEmpty(t, chunks)

	last := chunks[len(chunks)-1]
	assert.Equal(t, types.ChunkDone, last.Type)
	assert.True(t, last.IsFinal)

	assistant := chunks[0]
	assert.Equal(t, types.ChunkAssistantMessage, assistant.Type)
	assert.Equal(t, "hi there", assistant.Token)

	conv, err := h.conv.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, types.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, types.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "hi there", conv.Messages[1].Content)
}

func TestProcessMessage_ToolCallRequiringApproval(t *testing.T) {
	h := newHarness(t, [][]llm.Frame{toolCallFrame("call-1", "write_file", map[string]any{"path": "a.txt"})})
	ctx := ctxTimeout(t)

	chunks := drain(t, h.orch.ProcessMessage(ctx, "s1", "write a file", nil), 2*time.Second)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, types.ChunkToolCall, c.Type)
	assert.True(t, c.RequiresApproval)
	assert.Equal(t, "write_file", c.ToolName)
	assert.Equal(t, "call-1", c.CallID)
	assert.True(t, c.IsFinal)
}

func TestProcessMessage_ReadOnlyToolAutoApproved(t *testing.T) {
	h := newHarness(t, [][]llm.Frame{toolCallFrame("call-1", "read_file", map[string]any{"path": "a.txt"})})
	ctx := ctxTimeout(t)

	chunks := drain(t, h.orch.ProcessMessage(ctx, "s1", "read a file", nil), 2*time.Second)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, types.ChunkToolCall, c.Type)
	assert.False(t, c.RequiresApproval)
	assert.Equal(t, "read_file", c.ToolName)
}

func TestProcessMessage_RequestedAgentTypeSwitchesBeforeReply(t *testing.T) {
	h := newHarness(t, [][]llm.Frame{tokenFrames("done")})
	ctx := ctxTimeout(t)

	coder := types.AgentCoder
	chunks := drain(t, h.orch.ProcessMessage(ctx, "s1", "switch please", &coder), 2*time.Second)

	var sawSwitch bool
	for _, c := range chunks {
		if c.Type == types.ChunkAgentSwitched {
			sawSwitch = true
			assert.Equal(t, "orchestrator", c.Metadata["fromAgent"])
			assert.Equal(t, "coder", c.Metadata["toAgent"])
		}
	}
	assert.True(t, sawSwitch)

	agent, err := h.agents.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentCoder, agent.CurrentType)
}

func TestProcessMessage_EmptyUserTextDoesNotAppendUserMessage(t *testing.T) {
	h := newHarness(t, [][]llm.Frame{tokenFrames("ok")})
	ctx := ctxTimeout(t)

	drain(t, h.orch.ProcessMessage(ctx, "s1", "", nil), 2*time.Second)

	conv, err := h.conv.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, types.RoleAssistant, conv.Messages[0].Role)
}
