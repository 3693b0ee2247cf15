// Package approval implements ApprovalService and ApprovalPolicy (§4.7,
// §4.8): the pending-approval state machine, its durable store, and the
// priority-ordered rule engine that decides auto-approve / auto-reject /
// ask-user per tool invocation.
package approval

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/internal/storage"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// Store is the durable repository of ApprovalRequests keyed by id.
type Store interface {
	Get(ctx context.Context, id string) (*types.ApprovalRequest, error)
	Put(ctx context.Context, r *types.ApprovalRequest) error
	Exists(ctx context.Context, id string) bool
	ListPendingBySession(ctx context.Context, sessionID string) ([]*types.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]*types.ApprovalRequest, error)
}

// FileStore is the reference Store implementation backed by file-based JSON
// storage, one record per approval id.
type FileStore struct {
	s *storage.Storage
}

// NewFileStore creates a FileStore rooted at the given storage instance.
func NewFileStore(s *storage.Storage) *FileStore {
	return &FileStore{s: s}
}

func approvalPath(id string) []string { return []string{"approval", id} }

// Get loads an ApprovalRequest by id.
func (f *FileStore) Get(ctx context.Context, id string) (*types.ApprovalRequest, error) {
	var r types.ApprovalRequest
	if err := f.s.Get(ctx, approvalPath(id), &r); err != nil {
		if err == storage.ErrNotFound {
			return nil, orcerr.NotFound("approval", id)
		}
		return nil, orcerr.Store("approval", err)
	}
	return &r, nil
}

// Put persists an ApprovalRequest.
func (f *FileStore) Put(ctx context.Context, r *types.ApprovalRequest) error {
	if err := f.s.Put(ctx, approvalPath(r.ID), r); err != nil {
		return orcerr.Store("approval", err)
	}
	return nil
}

// Exists reports whether an approval with the given id is stored.
func (f *FileStore) Exists(ctx context.Context, id string) bool {
	return f.s.Exists(ctx, approvalPath(id))
}

// ListPendingBySession enumerates pending approvals for a session, ordered
// by createdAt ascending (used to rebuild the approval UI after reconnect).
func (f *FileStore) ListPendingBySession(ctx context.Context, sessionID string) ([]*types.ApprovalRequest, error) {
	all, err := f.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.ApprovalRequest
	for _, r := range all {
		if r.SessionID == sessionID && r.Status == types.ApprovalPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPending enumerates every pending approval across all sessions.
func (f *FileStore) ListPending(ctx context.Context) ([]*types.ApprovalRequest, error) {
	all, err := f.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.ApprovalRequest
	for _, r := range all {
		if r.Status == types.ApprovalPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// scanAll reads every stored ApprovalRequest in one directory pass via
// Storage.Scan, instead of listing ids and then issuing a Get per id.
func (f *FileStore) scanAll(ctx context.Context) ([]*types.ApprovalRequest, error) {
	var out []*types.ApprovalRequest
	err := f.s.Scan(ctx, []string{"approval"}, func(_ string, data json.RawMessage) error {
		var r types.ApprovalRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil // skip malformed records rather than failing the whole sweep
		}
		out = append(out, &r)
		return nil
	})
	if err != nil {
		return nil, orcerr.Store("approval", err)
	}
	return out, nil
}
