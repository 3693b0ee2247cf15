package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/orchestrator/pkg/types"
)

func TestConvertHistory_SkipsSystemAndMapsToolRole(t *testing.T) {
	history := []types.Message{
		{Role: types.RoleSystem, Content: "be terse"},
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "t1", Name: "read_file", Arguments: map[string]any{"path": "a.go"}}}},
		{Role: types.RoleTool, ToolCallID: "t1", Content: "file contents"},
	}

	params, err := convertHistory(history)
	require.NoError(t, err)
	require.Len(t, params, 3, "system message must be dropped, handled via params.System instead")
}

func TestConvertTools_BuildsToolDefinition(t *testing.T) {
	tools := []ToolSchema{
		{
			Name:        "read_file",
			Description: "Reads a file",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
			},
		},
	}

	converted, err := convertTools(tools)
	require.NoError(t, err)
	require.Len(t, converted, 1)
	require.NotNil(t, converted[0].OfTool)
	assert.Equal(t, "read_file", converted[0].OfTool.Name)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.True(t, isRetryable(errors.New("connection reset by peer")))
	assert.True(t, isRetryable(errors.New("context deadline exceeded")))
	assert.False(t, isRetryable(errors.New("invalid api key")))
}

func TestMapStopReason(t *testing.T) {
	assert.Equal(t, "stop", mapStopReason("end_turn"))
	assert.Equal(t, "tool_use", mapStopReason("tool_use"))
	assert.Equal(t, "max_tokens", mapStopReason("max_tokens"))
	assert.Equal(t, "stop", mapStopReason("unknown_future_reason"))
}
