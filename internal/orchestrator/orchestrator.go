// Package orchestrator wires ConversationService, AgentService,
// ApprovalService and the LanguageModelStream port together into the
// request-lifecycle and model loop described by §4: MessageProcessor,
// ToolResultHandler, ApprovalDecisionHandler, AgentSwitchCoordinator and the
// CleanupScheduler.
package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/flowline-ai/orchestrator/internal/agentrt"
	"github.com/flowline-ai/orchestrator/internal/approval"
	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/conversation"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/llm"
	"github.com/flowline-ai/orchestrator/internal/logging"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// Orchestrator is the top-level entry point (§4.1): it owns session
// serialization and translates each request into a Chunk stream by
// delegating to the message loop and switch coordinator.
type Orchestrator struct {
	conv      *conversation.Service
	agents    *agentrt.Service
	approvals *approval.Service
	model     llm.Model
	locks     *SessionLockRegistry
	clock     clock.Clock
	bus       *event.Bus

	maxMessages int
}

// New builds an Orchestrator over its collaborators. maxMessages is the
// conversation message cap passed to GetOrCreate (0 means
// types.DefaultMaxMessages).
func New(conv *conversation.Service, agents *agentrt.Service, approvals *approval.Service, model llm.Model, bus *event.Bus, c clock.Clock, maxMessages int) *Orchestrator {
	return &Orchestrator{
		conv:        conv,
		agents:      agents,
		approvals:   approvals,
		model:       model,
		locks:       NewSessionLockRegistry(),
		clock:       c,
		bus:         bus,
		maxMessages: maxMessages,
	}
}

func newCorrelationID() string { return uuid.NewString() }

// run implements §4.1 steps 1-5: acquire the session's lock, publish
// ProcessingStarted/ProcessingCompleted around the handler, and translate a
// returned error into a terminal error Chunk rather than letting it escape
// as a closed, silent channel.
func (o *Orchestrator) run(ctx context.Context, sessionID string, fn func(ctx context.Context, correlationID string, chunks chan<- types.Chunk) error) <-chan types.Chunk {
	out := make(chan types.Chunk, 16)

	go func() {
		defer close(out)

		correlationID := newCorrelationID()
		log := logging.With().Str("sessionId", sessionID).Str("correlationId", correlationID).Logger()

		release, err := o.locks.Lock(ctx, sessionID)
		if err != nil {
			out <- types.Chunk{Type: types.ChunkError, Error: err.Error(), Metadata: map[string]any{"correlationId": correlationID}}.Final()
			return
		}
		defer release()

		o.bus.Publish(event.Event{
			Type: event.ProcessingStarted,
			Data: event.ProcessingStartedData{SessionID: sessionID, CorrelationID: correlationID},
		})

		runErr := fn(ctx, correlationID, out)

		completed := event.ProcessingCompletedData{SessionID: sessionID, CorrelationID: correlationID}
		if runErr != nil {
			completed.Err = runErr.Error()
			log.Error().Err(runErr).Msg("processing failed")
			out <- types.Chunk{Type: types.ChunkError, Error: runErr.Error(), Metadata: map[string]any{"correlationId": correlationID}}.Final()
		}
		o.bus.Publish(event.Event{Type: event.ProcessingCompleted, Data: completed})
	}()

	return out
}

// ProcessMessage implements MessageProcessor (§4.2): append the user's
// message, then drive the agent loop until the request ends in a tool call,
// an approval gate, or done.
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID, userText string, requestedAgentType *types.AgentType) <-chan types.Chunk {
	return o.run(ctx, sessionID, func(ctx context.Context, correlationID string, chunks chan<- types.Chunk) error {
		return o.runMessage(ctx, sessionID, userText, requestedAgentType, chunks)
	})
}

// ProcessToolResult implements ToolResultHandler (§4.3): resolve a pending
// tool call with its result and continue the model loop.
func (o *Orchestrator) ProcessToolResult(ctx context.Context, sessionID, callID string, result any, resultErr string) <-chan types.Chunk {
	return o.run(ctx, sessionID, func(ctx context.Context, correlationID string, chunks chan<- types.Chunk) error {
		return o.runToolResult(ctx, sessionID, callID, result, resultErr, chunks)
	})
}

// ProcessApprovalDecision implements ApprovalDecisionHandler (§4.4): apply
// the user's decision on a pending approval and continue the model loop.
func (o *Orchestrator) ProcessApprovalDecision(ctx context.Context, sessionID, callID string, decision types.Decision, modifiedArguments map[string]any, feedback string) <-chan types.Chunk {
	return o.run(ctx, sessionID, func(ctx context.Context, correlationID string, chunks chan<- types.Chunk) error {
		return o.runApprovalDecision(ctx, sessionID, callID, decision, modifiedArguments, feedback, chunks)
	})
}

// ExplicitSwitchAgent lets a caller force a switch outside of a model-issued
// switch_mode tool call (§3: agent switches may also be externally driven).
func (o *Orchestrator) ExplicitSwitchAgent(ctx context.Context, sessionID string, target types.AgentType, reason string) <-chan types.Chunk {
	return o.run(ctx, sessionID, func(ctx context.Context, correlationID string, chunks chan<- types.Chunk) error {
		a, err := o.agents.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := o.performSwitch(ctx, sessionID, a.CurrentType, target, reason, nil, chunks); err != nil {
			return err
		}
		chunks <- types.Chunk{Type: types.ChunkDone}.Final()
		return nil
	})
}

// ResetSession implements §4.1's resetSession(sessionId) -> (): it acquires
// the session lock (to avoid racing an in-flight request) and resets the
// agent assignment back to the default type, without producing a Chunk
// stream.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID string) error {
	release, err := o.locks.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	_, err = o.agents.Reset(ctx, sessionID)
	return err
}
