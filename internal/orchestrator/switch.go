package orchestrator

import (
	"context"
	"fmt"

	"github.com/flowline-ai/orchestrator/internal/conversation"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// findUnresolvedSwitchCall scans messages in reverse for the most recent
// assistant switch_mode tool call that has no later tool-role message
// resolving its toolCallId.
func findUnresolvedSwitchCall(messages []types.Message) (types.ToolCall, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != types.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.Name != switchModeTool {
				continue
			}
			if isResolved(messages[i+1:], tc.ID) {
				continue
			}
			return tc, true
		}
	}
	return types.ToolCall{}, false
}

func isResolved(tail []types.Message, callID string) bool {
	for _, m := range tail {
		if m.Role == types.RoleTool && m.ToolCallID == callID {
			return true
		}
	}
	return false
}

// performSwitch implements AgentSwitchCoordinator (§4.5): resolve any
// dangling switch_mode tool call, drop tool-bearing history, record the
// transition as a system message, preserve the last plain assistant reply
// across the cleanup, apply the agent transition, and emit agent_switched.
func (o *Orchestrator) performSwitch(ctx context.Context, sessionID string, from, to types.AgentType, reason string, confidence *float64, chunks chan<- types.Chunk) error {
	conv, err := o.conv.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	messages := conv.Messages

	if call, found := findUnresolvedSwitchCall(messages); found {
		updated, err := o.conv.AppendMessage(ctx, sessionID, types.Message{
			Role:       types.RoleTool,
			Content:    fmt.Sprintf("Switched to %s agent", to),
			ToolCallID: call.ID,
		})
		if err != nil {
			return err
		}
		messages = updated.Messages
	}

	preserved, havePreserved := conversation.LastPlainAssistantContent(messages)
	survivors, _ := conversation.RemoveToolMessages(messages)

	survivors = append(survivors, types.Message{
		Role:    types.RoleSystem,
		Content: fmt.Sprintf("Agent switched: %s → %s\n%s", from, to, reason),
	})

	if havePreserved && preserved != "" && !conversation.ContainsAssistantContent(survivors, preserved) {
		survivors = append(survivors, types.Message{Role: types.RoleAssistant, Content: preserved})
	}

	if _, err := o.conv.ReplaceMessages(ctx, sessionID, survivors); err != nil {
		return err
	}

	if _, err := o.agents.Switch(ctx, sessionID, to, reason, confidence); err != nil {
		return err
	}

	var confVal any
	if confidence != nil {
		confVal = *confidence
	}
	chunks <- types.Chunk{
		Type:    types.ChunkAgentSwitched,
		Content: fmt.Sprintf("Switched from %s to %s", from, to),
		Metadata: map[string]any{
			"fromAgent":  string(from),
			"toAgent":    string(to),
			"reason":     reason,
			"confidence": confVal,
		},
	}
	return nil
}
