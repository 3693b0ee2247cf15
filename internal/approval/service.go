package approval

import (
	"context"
	"time"

	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// Service implements the ApprovalService role (§2 item 11, §4.8): the
// lifecycle of an ApprovalRequest against Store and Policy.
type Service struct {
	store  Store
	policy *Policy
	clock  clock.Clock
	bus    *event.Bus
}

// NewService builds a Service over the given Store, Policy, Clock and
// EventBus.
func NewService(store Store, policy *Policy, c clock.Clock, bus *event.Bus) *Service {
	return &Service{store: store, policy: policy, clock: c, bus: bus}
}

// Evaluate runs the policy against a prospective tool call without creating
// a persisted ApprovalRequest; used by MessageProcessor (§4.2 step 4) before
// deciding whether to call Request.
func (s *Service) Evaluate(approvalType types.ApprovalType, subject string, requestData map[string]any) types.PolicyAction {
	action := s.policy.Evaluate(approvalType, subject, requestData)
	return action
}

// Request creates a new pending ApprovalRequest. Fails with Conflict if id
// is already in use (§4.8: "Rejects creating a duplicate by id").
func (s *Service) Request(ctx context.Context, id string, approvalType types.ApprovalType, sessionID, subject string, requestData map[string]any, reason string, timeoutSeconds int) (*types.ApprovalRequest, error) {
	if s.store.Exists(ctx, id) {
		return nil, orcerr.Conflict("approval", id, "approval request already exists")
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = types.DefaultTimeoutSeconds
	}

	r := &types.ApprovalRequest{
		ID:             id,
		ApprovalType:   approvalType,
		Status:         types.ApprovalPending,
		SessionID:      sessionID,
		Subject:        subject,
		RequestData:    requestData,
		Reason:         reason,
		TimeoutSeconds: timeoutSeconds,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.store.Put(ctx, r); err != nil {
		return nil, err
	}

	s.bus.Publish(event.Event{
		Type: event.ApprovalRequested,
		Data: event.ApprovalRequestedData{ApprovalID: id, SessionID: sessionID, ApprovalType: string(approvalType), Subject: subject},
	})
	s.bus.Publish(event.Event{
		Type: event.UserDecisionRequired,
		Data: event.UserDecisionRequiredData{ApprovalID: id, SessionID: sessionID, Subject: subject},
	})
	return r, nil
}

func (s *Service) transition(ctx context.Context, id string, to types.ApprovalStatus, decision, reason string) (*types.ApprovalRequest, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status.IsTerminal() {
		return nil, orcerr.Conflict("approval", id, "approval request already decided")
	}

	now := s.clock.Now()
	r.Status = to
	r.Decision = decision
	r.Reason = reason
	r.DecidedAt = &now

	if err := s.store.Put(ctx, r); err != nil {
		return nil, err
	}

	var evtType event.Type
	switch to {
	case types.ApprovalApproved:
		evtType = event.ApprovalGranted
	case types.ApprovalRejected:
		evtType = event.ApprovalRejected
	case types.ApprovalExpired:
		evtType = event.ApprovalExpired
	}
	s.bus.Publish(event.Event{
		Type: evtType,
		Data: event.ApprovalDecidedData{ApprovalID: id, SessionID: r.SessionID, Status: string(to), Reason: reason},
	})
	return r, nil
}

// Grant transitions a pending request to approved.
func (s *Service) Grant(ctx context.Context, id, decision string) (*types.ApprovalRequest, error) {
	return s.transition(ctx, id, types.ApprovalApproved, decision, "")
}

// Reject transitions a pending request to rejected.
func (s *Service) Reject(ctx context.Context, id, reason string) (*types.ApprovalRequest, error) {
	return s.transition(ctx, id, types.ApprovalRejected, "reject", reason)
}

// Expire transitions a pending, timed-out request to expired. It is a
// no-op (returns nil, nil) if the request is not pending or not yet
// timed out, so CleanupScheduler's sweep can call it unconditionally.
func (s *Service) Expire(ctx context.Context, id string) (*types.ApprovalRequest, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsExpired(s.clock.Now()) {
		return nil, nil
	}
	return s.transition(ctx, id, types.ApprovalExpired, "", "timeout exceeded")
}

// FindPendingBySession enumerates pending approvals for a session, oldest
// first (§4.8).
func (s *Service) FindPendingBySession(ctx context.Context, sessionID string) ([]*types.ApprovalRequest, error) {
	return s.store.ListPendingBySession(ctx, sessionID)
}

// ProcessExpired transitions every pending approval whose timeout has
// elapsed to expired (§4.8, §4.10 job 2). If sessionID is non-empty, only
// that session's approvals are considered.
func (s *Service) ProcessExpired(ctx context.Context, sessionID string) (int, error) {
	var pending []*types.ApprovalRequest
	var err error
	if sessionID != "" {
		pending, err = s.store.ListPendingBySession(ctx, sessionID)
	} else {
		pending, err = s.store.ListPending(ctx)
	}
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	expired := 0
	for _, r := range pending {
		if !r.IsExpired(now) {
			continue
		}
		if _, err := s.transition(ctx, r.ID, types.ApprovalExpired, "", "timeout exceeded"); err != nil {
			continue
		}
		expired++
	}
	return expired, nil
}

// Get loads an ApprovalRequest by id.
func (s *Service) Get(ctx context.Context, id string) (*types.ApprovalRequest, error) {
	return s.store.Get(ctx, id)
}

// sweepInterval is the default ProcessExpired cadence (§4.10:
// "approvalSweepIntervalSeconds, default 30"). CleanupScheduler does not
// read it; it uses its own defaultApprovalSweep of the same value.
const sweepInterval = 30 * time.Second
