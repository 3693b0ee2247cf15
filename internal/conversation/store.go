// Package conversation implements ConversationService (§4.2, §4.6): the
// durable conversation timeline, its snapshot/restore machinery, and the
// selective tool-message cleanup shared with the agent-switch coordinator.
package conversation

import (
	"context"

	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/internal/storage"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// Store is the durable repository of conversations and their snapshots.
// Implementations are responsible for their own concurrency control; the
// service never holds a store-level transaction across a suspension point.
type Store interface {
	Get(ctx context.Context, id string) (*types.Conversation, error)
	Put(ctx context.Context, c *types.Conversation) error
	Delete(ctx context.Context, id string) error
	ListIDs(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, id string) bool

	SaveSnapshot(ctx context.Context, s *types.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*types.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// FileStore is the reference Store implementation backed by the engine's
// file-based JSON storage.
type FileStore struct {
	s *storage.Storage
}

// NewFileStore creates a FileStore rooted at the given storage instance.
func NewFileStore(s *storage.Storage) *FileStore {
	return &FileStore{s: s}
}

func conversationPath(id string) []string { return []string{"conversation", id} }
func snapshotPath(id string) []string     { return []string{"snapshot", id} }

// Get loads a conversation by id.
func (f *FileStore) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var c types.Conversation
	if err := f.s.Get(ctx, conversationPath(id), &c); err != nil {
		if err == storage.ErrNotFound {
			return nil, orcerr.NotFound("conversation", id)
		}
		return nil, orcerr.Store("conversation", err)
	}
	return &c, nil
}

// Put persists a conversation, overwriting any existing value.
func (f *FileStore) Put(ctx context.Context, c *types.Conversation) error {
	if err := f.s.Put(ctx, conversationPath(c.ID), c); err != nil {
		return orcerr.Store("conversation", err)
	}
	return nil
}

// Delete hard-deletes a conversation record.
func (f *FileStore) Delete(ctx context.Context, id string) error {
	if err := f.s.Delete(ctx, conversationPath(id)); err != nil {
		return orcerr.Store("conversation", err)
	}
	return nil
}

// ListIDs returns every stored conversation id.
func (f *FileStore) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := f.s.List(ctx, []string{"conversation"})
	if err != nil {
		return nil, orcerr.Store("conversation", err)
	}
	return ids, nil
}

// Exists reports whether a conversation with the given id is stored.
func (f *FileStore) Exists(ctx context.Context, id string) bool {
	return f.s.Exists(ctx, conversationPath(id))
}

// SaveSnapshot persists a Snapshot keyed by its own id.
func (f *FileStore) SaveSnapshot(ctx context.Context, snap *types.Snapshot) error {
	if err := f.s.Put(ctx, snapshotPath(snap.ID), snap); err != nil {
		return orcerr.Store("conversation", err)
	}
	return nil
}

// GetSnapshot loads a Snapshot by id.
func (f *FileStore) GetSnapshot(ctx context.Context, id string) (*types.Snapshot, error) {
	var s types.Snapshot
	if err := f.s.Get(ctx, snapshotPath(id), &s); err != nil {
		if err == storage.ErrNotFound {
			return nil, orcerr.NotFound("snapshot", id)
		}
		return nil, orcerr.Store("conversation", err)
	}
	return &s, nil
}

// DeleteSnapshot removes a Snapshot; called after a successful restore.
func (f *FileStore) DeleteSnapshot(ctx context.Context, id string) error {
	if err := f.s.Delete(ctx, snapshotPath(id)); err != nil {
		return orcerr.Store("conversation", err)
	}
	return nil
}
