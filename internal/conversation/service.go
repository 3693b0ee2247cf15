package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

func generateID() string { return ulid.Make().String() }

// Service implements the ConversationService role (§2 item 8): create,
// append message, snapshot, restore, and tool-message cleanup.
type Service struct {
	store Store
	clock clock.Clock
	bus   *event.Bus
}

// NewService builds a Service over the given Store, Clock and EventBus.
func NewService(store Store, c clock.Clock, bus *event.Bus) *Service {
	return &Service{store: store, clock: c, bus: bus}
}

// Create starts a new Conversation with the given id. Fails with Conflict
// if a conversation with that id already exists (persistence invariant:
// (id, deletedAt=null) unique).
func (s *Service) Create(ctx context.Context, id string, maxMessages int) (*types.Conversation, error) {
	if err := types.ValidateConversationID(id); err != nil {
		return nil, orcerr.Validation("conversation", err.Error())
	}
	if s.store.Exists(ctx, id) {
		return nil, orcerr.Conflict("conversation", id, "conversation already exists")
	}

	now := s.clock.Now()
	c := &types.Conversation{
		ID:           id,
		Messages:     []types.Message{},
		LastActivity: now,
		IsActive:     true,
		CreatedAt:    now,
		MaxMessages:  maxMessages,
	}
	if err := s.store.Put(ctx, c); err != nil {
		return nil, err
	}

	s.bus.Publish(event.Event{
		Type: event.ConversationStarted,
		Data: event.ConversationStartedData{ConversationID: id},
	})
	return c, nil
}

// GetOrCreate loads a Conversation by id, creating it if absent.
func (s *Service) GetOrCreate(ctx context.Context, id string, maxMessages int) (*types.Conversation, error) {
	c, err := s.store.Get(ctx, id)
	if orcerr.IsNotFound(err) {
		return s.Create(ctx, id, maxMessages)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads a Conversation by id.
func (s *Service) Get(ctx context.Context, id string) (*types.Conversation, error) {
	return s.store.Get(ctx, id)
}

// AppendMessage appends msg to the conversation, enforcing the message cap,
// refusing appends once the conversation is inactive, validating per-role
// content shape and toolCallId uniqueness. It assigns an id and CreatedAt if
// unset, bumps lastActivity, and auto-sets the title from the first user
// message.
func (s *Service) AppendMessage(ctx context.Context, conversationID string, msg types.Message) (*types.Conversation, error) {
	c, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !c.IsActive {
		return nil, orcerr.Conflict("conversation", conversationID, "conversation is not active")
	}

	if msg.ID == "" {
		msg.ID = generateID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock.Now()
	}
	if err := msg.Validate(); err != nil {
		return nil, orcerr.Validation("conversation", err.Error())
	}
	if msg.ToolCallID != "" {
		for _, existing := range c.Messages {
			if existing.ToolCallID == msg.ToolCallID {
				return nil, orcerr.Conflict("conversation", conversationID, fmt.Sprintf("duplicate toolCallId %q", msg.ToolCallID))
			}
		}
	}

	if len(c.Messages) >= c.EffectiveMaxMessages() {
		return nil, orcerr.Validation("conversation", fmt.Sprintf("message count would exceed maxMessages=%d", c.EffectiveMaxMessages()))
	}

	c.Messages = append(c.Messages, msg)
	c.LastActivity = s.clock.Now()
	if c.Title == "" && msg.Role == types.RoleUser {
		c.Title = deriveTitle(msg.Content)
	}

	if err := s.store.Put(ctx, c); err != nil {
		return nil, err
	}

	s.bus.Publish(event.Event{
		Type: event.MessageAdded,
		Data: event.MessageAddedData{ConversationID: conversationID, MessageID: msg.ID, Role: string(msg.Role)},
	})
	return c, nil
}

// ReplaceMessages overwrites a conversation's message list wholesale,
// assigning ids/CreatedAt to any new message left unset. Used by
// AgentSwitchCoordinator to persist the selective tool-message cleanup
// (§4.5 steps 2-5) as a single store write.
func (s *Service) ReplaceMessages(ctx context.Context, conversationID string, messages []types.Message) (*types.Conversation, error) {
	c, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range messages {
		if messages[i].ID == "" {
			messages[i].ID = generateID()
		}
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = now
		}
	}

	c.Messages = messages
	c.LastActivity = now
	if err := s.store.Put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if len(title) > types.MaxTitleLen {
		title = title[:types.MaxTitleLen]
	}
	return title
}

// Deactivate marks a conversation inactive (used by AgentSwitchCoordinator
// failure paths and external cancellation, not by normal flow).
func (s *Service) Deactivate(ctx context.Context, id, reason string) error {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	c.IsActive = false
	if err := s.store.Put(ctx, c); err != nil {
		return err
	}
	s.bus.Publish(event.Event{
		Type: event.ConversationDeactivated,
		Data: event.ConversationDeactivatedData{ConversationID: id, Reason: reason},
	})
	return nil
}

// CleanupOldConversations soft-deletes every active conversation whose
// lastActivity is older than maxAge (§4.10). It tolerates and skips
// individual read/write failures, returning the count of conversations it
// deactivated.
func (s *Service) CleanupOldConversations(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	deactivated := 0
	for _, id := range ids {
		c, err := s.store.Get(ctx, id)
		if err != nil {
			continue
		}
		if !c.IsActive || c.DeletedAt != nil {
			continue
		}
		if now.Sub(c.LastActivity) <= maxAge {
			continue
		}

		c.IsActive = false
		deletedAt := now
		c.DeletedAt = &deletedAt
		if err := s.store.Put(ctx, c); err != nil {
			continue
		}
		deactivated++

		s.bus.Publish(event.Event{
			Type: event.ConversationDeactivated,
			Data: event.ConversationDeactivatedData{ConversationID: id, Reason: "cleanup_max_age_exceeded"},
		})
	}
	return deactivated, nil
}
