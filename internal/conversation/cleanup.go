package conversation

import "github.com/flowline-ai/orchestrator/pkg/types"

// RemoveToolMessages implements the selective tool-message cleanup shared by
// AgentSwitchCoordinator (§4.5 step 2) and snapshot creation (§4.6): it
// drops every assistant message carrying tool calls and every tool-role
// message, preserving user, system and plain assistant messages in order.
// It returns the surviving messages and the count removed.
func RemoveToolMessages(messages []types.Message) ([]types.Message, int) {
	kept := make([]types.Message, 0, len(messages))
	removed := 0
	for _, m := range messages {
		if m.HasToolCalls() || m.Role == types.RoleTool {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	return kept, removed
}

// LastPlainAssistantContent returns the content of the most recent
// role=assistant message without tool calls, and whether one was found.
// Used to preserve conversational thread across a cleanup (§4.5 step 3).
func LastPlainAssistantContent(messages []types.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == types.RoleAssistant && !m.HasToolCalls() {
			return m.Content, true
		}
	}
	return "", false
}

// ContainsAssistantContent reports whether any message in messages is a
// plain assistant message with the given content.
func ContainsAssistantContent(messages []types.Message, content string) bool {
	for _, m := range messages {
		if m.Role == types.RoleAssistant && !m.HasToolCalls() && m.Content == content {
			return true
		}
	}
	return false
}
