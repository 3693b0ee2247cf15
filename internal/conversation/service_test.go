package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/internal/storage"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	dir := t.TempDir()
	store := NewFileStore(storage.New(dir))
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	return NewService(store, fc, bus), fc
}

func TestService_Create_DuplicateConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 0)
	require.NoError(t, err)

	_, err = svc.Create(ctx, "conv-1", 0)
	assert.True(t, orcerr.IsConflict(err))
}

func TestService_Create_InvalidID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "bad id with spaces", 0)
	assert.True(t, orcerr.IsValidation(err))
}

func TestService_AppendMessage_SetsTitleFromFirstUserMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 0)
	require.NoError(t, err)

	c, err := svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "Write a function to reverse a string"})
	require.NoError(t, err)
	assert.Equal(t, "Write a function to reverse a string", c.Title)

	c, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "second message"})
	require.NoError(t, err)
	assert.Equal(t, "Write a function to reverse a string", c.Title, "title must not change once set")
}

func TestService_AppendMessage_RejectsWhenInactive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "conv-1", "test"))

	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "hi"})
	assert.True(t, orcerr.IsConflict(err))
}

func TestService_AppendMessage_EnforcesMaxMessages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 2)
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "one"})
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "two"})
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "three"})
	assert.True(t, orcerr.IsValidation(err), "exceeding maxMessages must fail with ValidationError")
}

func TestService_AppendMessage_RejectsDuplicateToolCallID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 0)
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleTool, Content: "result", ToolCallID: "c1"})
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleTool, Content: "other", ToolCallID: "c1"})
	assert.True(t, orcerr.IsConflict(err), "toolCallId values must be pairwise distinct")
}

func TestService_AppendMessage_RejectsInvalidMessageShape(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 0)
	require.NoError(t, err)

	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: ""})
	assert.True(t, orcerr.IsValidation(err))
}

func TestService_CleanupOldConversations(t *testing.T) {
	svc, fc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "old", 0)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "fresh", 0)
	require.NoError(t, err)

	fc.Advance(48 * time.Hour)
	_, err = svc.AppendMessage(ctx, "fresh", types.Message{Role: types.RoleUser, Content: "keep me active"})
	require.NoError(t, err)

	n, err := svc.CleanupOldConversations(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, err := svc.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.NotNil(t, old.DeletedAt)

	fresh, err := svc.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, fresh.IsActive)

	// running cleanup again is a no-op after the first call.
	n, err = svc.CleanupOldConversations(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestService_SnapshotRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 0)
	require.NoError(t, err)
	_, err = svc.AppendMessage(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "hello"})
	require.NoError(t, err)

	before, err := svc.Get(ctx, "conv-1")
	require.NoError(t, err)
	beforeMessages := append([]types.Message(nil), before.Messages...)

	snapID, err := svc.CreateSubtaskContext(ctx, "conv-1", "sub-1", map[string]string{"dep1": "done"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1_snapshot_sub-1", snapID)

	err = svc.RestoreFromSnapshot(ctx, "conv-1", snapID, false)
	require.NoError(t, err)

	after, err := svc.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, beforeMessages, after.Messages, "restore(preserveLastResult=false) after snapshot must reproduce the pre-snapshot message list")

	_, err = svc.store.GetSnapshot(ctx, snapID)
	assert.True(t, orcerr.IsNotFound(err), "snapshot must be deleted after restore")
}

func TestService_RestoreFromSnapshot_WrongConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "conv-1", 0)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "conv-2", 0)
	require.NoError(t, err)

	snapID, err := svc.CreateSubtaskContext(ctx, "conv-1", "sub-1", nil)
	require.NoError(t, err)

	err = svc.RestoreFromSnapshot(ctx, "conv-2", snapID, false)
	assert.True(t, orcerr.IsConflict(err), "a Snapshot must never be restored onto a different conversation")
}

func TestRemoveToolMessages(t *testing.T) {
	msgs := []types.Message{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "c1", Name: "read_file"}}},
		{Role: types.RoleTool, Content: "result", ToolCallID: "c1"},
		{Role: types.RoleAssistant, Content: "plain reply"},
		{Role: types.RoleSystem, Content: "note"},
	}

	kept, removed := RemoveToolMessages(msgs)
	assert.Equal(t, 2, removed)
	require.Len(t, kept, 3)
	assert.Equal(t, types.RoleUser, kept[0].Role)
	assert.Equal(t, types.RoleAssistant, kept[1].Role)
	assert.Equal(t, "plain reply", kept[1].Content)
	assert.Equal(t, types.RoleSystem, kept[2].Role)
}
