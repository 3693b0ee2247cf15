/*
Package event provides a type-safe, in-process pub/sub event bus used to
decouple the conversation, agent, approval and orchestration layers: any
component can publish a domain event and any other component can react to
it without a direct dependency.

# Architecture

The package is built on top of watermill's gochannel for transport plumbing
while keeping direct-call dispatch semantics, so subscribers receive typed
Event values (no serialize/deserialize round trip). It supports both
asynchronous (Publish) and synchronous, join-on-completion (PublishSync)
delivery, plus per-subscription priority ordering.

# Event Catalogue

Conversation events:
  - ConversationStarted: a new conversation was created
  - MessageAdded: a message was appended to a conversation
  - ConversationDeactivated: a conversation was marked inactive
  - ToolMessagesCleared: tool-call and tool messages were removed from history

Agent events:
  - AgentAssigned: an agent was assigned to a session for the first time
  - AgentSwitched: the active agent for a session changed
  - AgentSwitchLimitReached: a session hit its per-agent-type switch cap

Approval events:
  - ApprovalRequested: a new approval request was created
  - ApprovalGranted / ApprovalRejected / ApprovalExpired: a request reached
    a terminal state
  - PolicyEvaluated: the HITL policy engine evaluated a request
  - AutoApprovalGranted: the policy engine auto-approved a tool call
  - UserDecisionRequired: the policy engine deferred to a human decision

Orchestration events:
  - ProcessingStarted / ProcessingCompleted: brackets one message-processing
    pass, carrying the correlation id used to stitch logs together

# Basic Usage

Publishing events:

	// Asynchronous publishing (non-blocking)
	event.Publish(event.Event{
		Type: event.MessageAdded,
		Data: event.MessageAddedData{ConversationID: id, MessageID: msgID},
	})

	// Synchronous publishing (blocking until all subscribers complete)
	event.PublishSync(event.Event{
		Type: event.ApprovalGranted,
		Data: event.ApprovalDecidedData{ApprovalID: id, Status: "approved"},
	})

Subscribing to specific events:

	unsubscribe := event.Subscribe(event.AgentSwitched, func(e event.Event) {
		data := e.Data.(event.AgentSwitchedData)
		log.Info().Str("sessionId", data.SessionID).Msg("agent switched")
	})
	defer unsubscribe()

Subscribing with priority (under PublishSync, higher runs first within the
same event type; Publish runs subscribers concurrently):

	unsubscribe := event.SubscribeWithPriority(event.ApprovalRequested, 10, handler)

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug().Str("type", string(e.Type)).Msg("event received")
	})
	defer unsubscribe()

# Subscriber Safety

Subscribers called from PublishSync run in the publisher's goroutine and
should complete quickly and never call Publish/PublishSync re-entrantly. A
subscriber panic is recovered and isolated per-subscriber: it never fails
the publisher, and other subscribers of the same event still run.

# Custom Event Bus

For testing or isolation, create an independent bus instance:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.ConversationStarted, handler)
	bus.PublishSync(event.Event{Type: event.ConversationStarted, Data: data})

# Testing

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is safe for concurrent use. Both publishing and subscribing
are protected by internal synchronization.

# Integration with Watermill

The package uses watermill's gochannel internally and exposes it for
advanced use:

	pubsub := event.PubSub()

This keeps the door open to a distributed broker later without changing
call sites.
*/
package event
