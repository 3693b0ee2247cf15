package observability

import (
	"sync"
	"time"

	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/logging"
)

const maxAuditEntries = 1000

// AuditEntry is one recorded critical event: an agent switch, a switch-limit
// violation, an approval decision, or a processing failure.
type AuditEntry struct {
	At        time.Time
	Type      event.Type
	SessionID string
	Summary   string
}

// AuditLogger subscribes to the events that matter for an audit trail
// (agent switches, switch-limit violations, approval decisions, processing
// failures), logs each at high priority through internal/logging, and keeps
// a bounded in-memory ring of the most recent entries for inspection.
type AuditLogger struct {
	clock clock.Clock

	mu      sync.Mutex
	entries []AuditEntry

	unsubscribe []func()
}

// NewAuditLogger subscribes a new AuditLogger to bus and returns it. Call
// Close to unsubscribe.
func NewAuditLogger(bus *event.Bus, c clock.Clock) *AuditLogger {
	a := &AuditLogger{clock: c}

	a.unsubscribe = append(a.unsubscribe,
		bus.SubscribeWithPriority(event.AgentSwitched, 10, a.onAgentSwitched),
		bus.SubscribeWithPriority(event.AgentSwitchLimitReached, 10, a.onAgentSwitchLimitReached),
		bus.SubscribeWithPriority(event.ApprovalGranted, 10, a.onApprovalDecided),
		bus.SubscribeWithPriority(event.ApprovalRejected, 10, a.onApprovalDecided),
		bus.SubscribeWithPriority(event.ApprovalExpired, 10, a.onApprovalDecided),
		bus.SubscribeWithPriority(event.ProcessingCompleted, 10, a.onProcessingCompleted),
	)
	return a
}

// Close unsubscribes the logger from the bus.
func (a *AuditLogger) Close() {
	for _, unsub := range a.unsubscribe {
		unsub()
	}
}

// Entries returns a copy of the recorded audit trail, oldest first.
func (a *AuditLogger) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *AuditLogger) record(e AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	if len(a.entries) > maxAuditEntries {
		a.entries = a.entries[len(a.entries)-maxAuditEntries:]
	}
}

func (a *AuditLogger) onAgentSwitched(evt event.Event) {
	d, ok := evt.Data.(event.AgentSwitchedData)
	if !ok {
		return
	}
	summary := d.FromType + " -> " + d.ToType
	logging.With().Str("sessionId", d.SessionID).Str("audit", "agent_switched").Logger().
		Info().Str("from", d.FromType).Str("to", d.ToType).Str("reason", d.Reason).Msg("audit: agent switched")
	a.record(AuditEntry{At: a.clock.Now(), Type: evt.Type, SessionID: d.SessionID, Summary: summary})
}

func (a *AuditLogger) onAgentSwitchLimitReached(evt event.Event) {
	d, ok := evt.Data.(event.AgentSwitchLimitReachedData)
	if !ok {
		return
	}
	logging.With().Str("sessionId", d.SessionID).Str("audit", "agent_switch_limit_reached").Logger().
		Warn().Str("agentType", d.AgentType).Int("maxSwitches", d.MaxSwitches).Msg("audit: switch limit reached")
	a.record(AuditEntry{At: a.clock.Now(), Type: evt.Type, SessionID: d.SessionID, Summary: "switch limit reached for " + d.AgentType})
}

func (a *AuditLogger) onApprovalDecided(evt event.Event) {
	d, ok := evt.Data.(event.ApprovalDecidedData)
	if !ok {
		return
	}
	logging.With().Str("sessionId", d.SessionID).Str("audit", "approval_decided").Logger().
		Info().Str("approvalId", d.ApprovalID).Str("status", d.Status).Str("reason", d.Reason).Msg("audit: approval decided")
	a.record(AuditEntry{At: a.clock.Now(), Type: evt.Type, SessionID: d.SessionID, Summary: "approval " + d.ApprovalID + " -> " + d.Status})
}

func (a *AuditLogger) onProcessingCompleted(evt event.Event) {
	d, ok := evt.Data.(event.ProcessingCompletedData)
	if !ok || d.Err == "" {
		return
	}
	logging.With().Str("sessionId", d.SessionID).Str("correlationId", d.CorrelationID).Str("audit", "processing_failed").Logger().
		Error().Str("error", d.Err).Msg("audit: processing failed")
	a.record(AuditEntry{At: a.clock.Now(), Type: evt.Type, SessionID: d.SessionID, Summary: "processing failed: " + d.Err})
}
