package agentrt

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

func generateID() string { return ulid.Make().String() }

// Service implements the AgentService role (§2 item 9): get-or-create,
// assign, switch (validated against a per-type switch limit), and query.
type Service struct {
	store Store
	clock clock.Clock
	bus   *event.Bus
}

// NewService builds a Service over the given Store, Clock and EventBus.
func NewService(store Store, c clock.Clock, bus *event.Bus) *Service {
	return &Service{store: store, clock: c, bus: bus}
}

// GetOrCreate returns the Agent assigned to sessionID, creating it with the
// default type `orchestrator` on first request for the session (§3
// lifecycle).
func (s *Service) GetOrCreate(ctx context.Context, sessionID string) (*types.Agent, error) {
	a, err := s.store.Get(ctx, sessionID)
	if orcerr.IsNotFound(err) {
		return s.create(ctx, sessionID, types.AgentOrchestrator)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) create(ctx context.Context, sessionID string, t types.AgentType) (*types.Agent, error) {
	a := &types.Agent{
		ID:           generateID(),
		SessionID:    sessionID,
		CurrentType:  t,
		Capabilities: types.DefaultCapabilities(t),
	}
	if err := s.store.Put(ctx, a); err != nil {
		return nil, err
	}
	s.bus.Publish(event.Event{
		Type: event.AgentAssigned,
		Data: event.AgentAssignedData{SessionID: sessionID, AgentType: string(t)},
	})
	return a, nil
}

// Get loads the Agent for sessionID without creating one.
func (s *Service) Get(ctx context.Context, sessionID string) (*types.Agent, error) {
	return s.store.Get(ctx, sessionID)
}

// Switch performs the agent-type transition validated by AgentSwitchCoordinator
// (§4.5 step 6): `to != from`, `switchCount < maxSwitches`. On
// success it appends a SwitchRecord, bumps switchCount and updates
// capabilities for the new type, and emits AgentSwitched (or
// AgentSwitchLimitReached on violation, still returning the Conflict error).
func (s *Service) Switch(ctx context.Context, sessionID string, to types.AgentType, reason string, confidence *float64) (*types.Agent, error) {
	if !types.IsValidAgentType(to) {
		return nil, orcerr.Validation("agent", "unknown agent type")
	}

	a, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if to == a.CurrentType {
		return nil, orcerr.Conflict("agent", sessionID, "cannot switch to the same agent type")
	}

	if a.SwitchCount >= a.Capabilities.MaxSwitches {
		s.bus.Publish(event.Event{
			Type: event.AgentSwitchLimitReached,
			Data: event.AgentSwitchLimitReachedData{SessionID: sessionID, AgentType: string(a.CurrentType), MaxSwitches: a.Capabilities.MaxSwitches},
		})
		return nil, orcerr.Conflict("agent", sessionID, "switch limit exceeded")
	}

	from := a.CurrentType
	now := s.clock.Now()

	record := types.SwitchRecord{
		FromType:   &from,
		ToType:     to,
		Reason:     reason,
		At:         now,
		Confidence: confidence,
	}
	a.SwitchHistory = append(a.SwitchHistory, record)
	a.SwitchCount = len(a.SwitchHistory)
	a.CurrentType = to
	a.Capabilities = types.DefaultCapabilities(to)
	a.LastSwitchAt = &now

	if err := s.store.Put(ctx, a); err != nil {
		return nil, err
	}

	var confVal float64
	if confidence != nil {
		confVal = *confidence
	}
	s.bus.Publish(event.Event{
		Type: event.AgentSwitched,
		Data: event.AgentSwitchedData{SessionID: sessionID, FromType: string(from), ToType: string(to), Reason: reason, Confidence: confVal},
	})
	return a, nil
}

// Reset forces the session's agent back to `orchestrator` and clears the
// switch history, used by Orchestrator.resetSession. Starting the switch
// budget over (rather than consuming one more slot of it) keeps the
// switch-count-vs-limit check meaningful after a hard reset.
func (s *Service) Reset(ctx context.Context, sessionID string) (*types.Agent, error) {
	a, err := s.store.Get(ctx, sessionID)
	if orcerr.IsNotFound(err) {
		return s.create(ctx, sessionID, types.AgentOrchestrator)
	}
	if err != nil {
		return nil, err
	}

	from := a.CurrentType
	if from == types.AgentOrchestrator && a.SwitchCount == 0 {
		return a, nil
	}

	a.SwitchHistory = nil
	a.SwitchCount = 0
	a.CurrentType = types.AgentOrchestrator
	a.Capabilities = types.DefaultCapabilities(types.AgentOrchestrator)
	a.LastSwitchAt = nil

	if err := s.store.Put(ctx, a); err != nil {
		return nil, err
	}
	s.bus.Publish(event.Event{
		Type: event.AgentSwitched,
		Data: event.AgentSwitchedData{SessionID: sessionID, FromType: string(from), ToType: string(types.AgentOrchestrator), Reason: "session_reset"},
	})
	return a, nil
}
