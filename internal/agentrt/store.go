// Package agentrt implements AgentService (§3 Agent, §4.5 call-through): the
// per-session agent assignment, its switch history, and the switch-limit
// validation that AgentSwitchCoordinator delegates to on every switch.
package agentrt

import (
	"context"

	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/internal/storage"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// Store is the durable repository of per-session agent assignment.
type Store interface {
	Get(ctx context.Context, sessionID string) (*types.Agent, error)
	Put(ctx context.Context, a *types.Agent) error
	Exists(ctx context.Context, sessionID string) bool
}

// FileStore is the reference Store implementation backed by file-based JSON
// storage, exactly one record per session.
type FileStore struct {
	s *storage.Storage
}

// NewFileStore creates a FileStore rooted at the given storage instance.
func NewFileStore(s *storage.Storage) *FileStore {
	return &FileStore{s: s}
}

func agentPath(sessionID string) []string { return []string{"agent", sessionID} }

// Get loads the Agent assigned to sessionID.
func (f *FileStore) Get(ctx context.Context, sessionID string) (*types.Agent, error) {
	var a types.Agent
	if err := f.s.Get(ctx, agentPath(sessionID), &a); err != nil {
		if err == storage.ErrNotFound {
			return nil, orcerr.NotFound("agent", sessionID)
		}
		return nil, orcerr.Store("agent", err)
	}
	return &a, nil
}

// Put persists the Agent record for its session.
func (f *FileStore) Put(ctx context.Context, a *types.Agent) error {
	if err := f.s.Put(ctx, agentPath(a.SessionID), a); err != nil {
		return orcerr.Store("agent", err)
	}
	return nil
}

// Exists reports whether a session already has an Agent record.
func (f *FileStore) Exists(ctx context.Context, sessionID string) bool {
	return f.s.Exists(ctx, agentPath(sessionID))
}
