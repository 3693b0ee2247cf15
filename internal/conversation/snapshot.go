package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

const snapshotVersion = "1.0"

// CreateSubtaskContext snapshots the current conversation state, clears
// tool-related messages (§4.5 step 2 logic, reused here), and appends a
// system message summarizing dependencyResults so a subtask can run in
// isolation from the parent conversation's tool history (§4.6).
func (s *Service) CreateSubtaskContext(ctx context.Context, conversationID, subtaskID string, dependencyResults map[string]string) (string, error) {
	c, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return "", err
	}

	snapshotID := fmt.Sprintf("%s_snapshot_%s", conversationID, subtaskID)
	snap := &types.Snapshot{
		ID:             snapshotID,
		ConversationID: conversationID,
		Messages:       append([]types.Message(nil), c.Messages...),
		Metadata:       copyMetadata(c.Metadata),
		Title:          c.Title,
		Description:    c.Description,
		CreatedAt:      s.clock.Now(),
		MessageCount:   len(c.Messages),
		Version:        snapshotVersion,
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return "", err
	}

	kept, removed := RemoveToolMessages(c.Messages)
	c.Messages = kept

	summary := summarizeDependencies(dependencyResults)
	sysMsg := types.Message{
		ID:        generateID(),
		Role:      types.RoleSystem,
		Content:   summary,
		CreatedAt: s.clock.Now(),
	}
	c.Messages = append(c.Messages, sysMsg)
	c.LastActivity = s.clock.Now()

	if err := s.store.Put(ctx, c); err != nil {
		return "", err
	}

	if removed > 0 {
		s.bus.Publish(event.Event{
			Type: event.ToolMessagesCleared,
			Data: event.ToolMessagesClearedData{ConversationID: conversationID, RemovedCount: removed},
		})
	}
	return snapshotID, nil
}

func summarizeDependencies(results map[string]string) string {
	if len(results) == 0 {
		return "Subtask context: no dependency results."
	}
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Subtask context — dependency results:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, results[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// RestoreFromSnapshot overwrites the conversation's messages and metadata
// with the Snapshot contents, optionally preserving and re-appending the
// last plain assistant message, then deletes the Snapshot.
func (s *Service) RestoreFromSnapshot(ctx context.Context, conversationID, snapshotID string, preserveLastResult bool) error {
	snap, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}
	if snap.ConversationID != conversationID {
		return orcerr.Conflict("conversation", conversationID, "snapshot belongs to a different conversation")
	}

	c, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}

	var preservedContent string
	var havePreserved bool
	if preserveLastResult {
		preservedContent, havePreserved = LastPlainAssistantContent(c.Messages)
	}

	c.Messages = append([]types.Message(nil), snap.Messages...)
	c.Metadata = copyMetadata(snap.Metadata)
	c.Title = snap.Title
	c.Description = snap.Description
	c.LastActivity = s.clock.Now()

	if havePreserved && !ContainsAssistantContent(c.Messages, preservedContent) {
		c.Messages = append(c.Messages, types.Message{
			ID:        generateID(),
			Role:      types.RoleAssistant,
			Content:   preservedContent,
			CreatedAt: s.clock.Now(),
		})
	}

	if err := s.store.Put(ctx, c); err != nil {
		return err
	}
	return s.store.DeleteSnapshot(ctx, snapshotID)
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
