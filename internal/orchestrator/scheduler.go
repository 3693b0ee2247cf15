package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/flowline-ai/orchestrator/internal/approval"
	"github.com/flowline-ai/orchestrator/internal/conversation"
	"github.com/flowline-ai/orchestrator/internal/logging"
)

const (
	defaultCleanupInterval    = time.Hour
	defaultApprovalSweep      = 30 * time.Second
	defaultConversationMaxAge = 24 * time.Hour
)

// CleanupScheduler runs the two background jobs described by §4.10: soft
// deleting stale conversations, and sweeping pending approvals past their
// timeout. Both tolerate per-iteration errors and keep running.
type CleanupScheduler struct {
	conv      *conversation.Service
	approvals *approval.Service

	cleanupInterval time.Duration
	sweepInterval   time.Duration
	conversationAge time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCleanupScheduler builds a scheduler. A zero duration for either
// interval falls back to its spec default.
func NewCleanupScheduler(conv *conversation.Service, approvals *approval.Service, cleanupInterval, sweepInterval, conversationAge time.Duration) *CleanupScheduler {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultApprovalSweep
	}
	if conversationAge <= 0 {
		conversationAge = defaultConversationMaxAge
	}
	return &CleanupScheduler{
		conv:            conv,
		approvals:       approvals,
		cleanupInterval: cleanupInterval,
		sweepInterval:   sweepInterval,
		conversationAge: conversationAge,
	}
}

// Start launches both background loops. Calling Start while already started
// is a no-op.
func (c *CleanupScheduler) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go c.runConversationCleanup(runCtx)
	go c.runApprovalSweep(runCtx)
}

// Stop cancels both loops and blocks until they have exited. Calling Stop
// before Start, or twice, is a no-op.
func (c *CleanupScheduler) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

func (c *CleanupScheduler) runConversationCleanup(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.conv.CleanupOldConversations(ctx, c.conversationAge)
			if err != nil {
				logging.Error().Err(err).Msg("conversation cleanup sweep failed")
				continue
			}
			if n > 0 {
				logging.Info().Int("deactivated", n).Msg("conversation cleanup sweep")
			}
		}
	}
}

func (c *CleanupScheduler) runApprovalSweep(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.approvals.ProcessExpired(ctx, "")
			if err != nil {
				logging.Error().Err(err).Msg("approval expiry sweep failed")
				continue
			}
			if n > 0 {
				logging.Info().Int("expired", n).Msg("approval expiry sweep")
			}
		}
	}
}
