package observability

import (
	"sync"
	"time"

	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/event"
)

// SessionMetrics aggregates processing activity for a single session. It is
// the Go counterpart of the original Python service's SessionMetrics
// dataclass, scoped down to the request/duration/switch/approval facts this
// engine actually emits events for.
type SessionMetrics struct {
	SessionID          string
	RequestCount       int
	FailureCount       int
	TotalDuration      time.Duration
	AgentSwitches      int
	SwitchLimitReached int
	ApprovalsRequested int
	ApprovalsGranted   int
	ApprovalsRejected  int
	ApprovalsExpired   int
	LastActivity       time.Time
}

// Metrics is the aggregate, process-wide counterpart of the original
// Python service's MetricsCollector._metrics dict: counters keyed by event
// category (agent switches, agent processing, approvals/HITL decisions) plus
// a per-session breakdown.
type Metrics struct {
	AgentSwitches      int
	SwitchLimitReached int
	Requests           int
	RequestFailures    int
	TotalDuration      time.Duration
	ApprovalsRequested int
	ApprovalsGranted   int
	ApprovalsRejected  int
	ApprovalsExpired   int
	Sessions           map[string]SessionMetrics
}

// MetricsCollector subscribes to agent, approval and processing events and
// maintains running aggregate and per-session counters. Unlike AuditLogger
// it runs at a lower priority (5 vs 10 in the original source): it is
// informational bookkeeping, not the record-of-truth for an audit trail.
type MetricsCollector struct {
	clock clock.Clock

	mu       sync.Mutex
	agg      Metrics
	sessions map[string]*SessionMetrics
	started  map[string]startedRequest

	unsubscribe []func()
}

type startedRequest struct {
	sessionID string
	at        time.Time
}

// NewMetricsCollector subscribes a new MetricsCollector to bus and returns
// it. Call Close to unsubscribe.
func NewMetricsCollector(bus *event.Bus, c clock.Clock) *MetricsCollector {
	m := &MetricsCollector{
		clock:    c,
		sessions: make(map[string]*SessionMetrics),
		started:  make(map[string]startedRequest),
	}

	m.unsubscribe = append(m.unsubscribe,
		bus.SubscribeWithPriority(event.AgentSwitched, 5, m.onAgentSwitched),
		bus.SubscribeWithPriority(event.AgentSwitchLimitReached, 5, m.onAgentSwitchLimitReached),
		bus.SubscribeWithPriority(event.ApprovalRequested, 5, m.onApprovalRequested),
		bus.SubscribeWithPriority(event.ApprovalGranted, 5, m.onApprovalDecided),
		bus.SubscribeWithPriority(event.ApprovalRejected, 5, m.onApprovalDecided),
		bus.SubscribeWithPriority(event.ApprovalExpired, 5, m.onApprovalDecided),
		bus.SubscribeWithPriority(event.ProcessingStarted, 5, m.onProcessingStarted),
		bus.SubscribeWithPriority(event.ProcessingCompleted, 5, m.onProcessingCompleted),
	)
	return m
}

// Close unsubscribes the collector from the bus.
func (m *MetricsCollector) Close() {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
}

// Snapshot returns a deep copy of the aggregate and per-session metrics
// collected so far.
func (m *MetricsCollector) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.agg
	out.Sessions = make(map[string]SessionMetrics, len(m.sessions))
	for id, s := range m.sessions {
		out.Sessions[id] = *s
	}
	return out
}

func (m *MetricsCollector) session(id string) *SessionMetrics {
	s, ok := m.sessions[id]
	if !ok {
		s = &SessionMetrics{SessionID: id}
		m.sessions[id] = s
	}
	return s
}

func (m *MetricsCollector) touch(s *SessionMetrics) {
	s.LastActivity = m.clock.Now()
}

func (m *MetricsCollector) onAgentSwitched(evt event.Event) {
	d, ok := evt.Data.(event.AgentSwitchedData)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agg.AgentSwitches++
	s := m.session(d.SessionID)
	s.AgentSwitches++
	m.touch(s)
}

func (m *MetricsCollector) onAgentSwitchLimitReached(evt event.Event) {
	d, ok := evt.Data.(event.AgentSwitchLimitReachedData)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agg.SwitchLimitReached++
	s := m.session(d.SessionID)
	s.SwitchLimitReached++
	m.touch(s)
}

func (m *MetricsCollector) onApprovalRequested(evt event.Event) {
	d, ok := evt.Data.(event.ApprovalRequestedData)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agg.ApprovalsRequested++
	s := m.session(d.SessionID)
	s.ApprovalsRequested++
	m.touch(s)
}

func (m *MetricsCollector) onApprovalDecided(evt event.Event) {
	d, ok := evt.Data.(event.ApprovalDecidedData)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session(d.SessionID)
	switch evt.Type {
	case event.ApprovalGranted:
		m.agg.ApprovalsGranted++
		s.ApprovalsGranted++
	case event.ApprovalRejected:
		m.agg.ApprovalsRejected++
		s.ApprovalsRejected++
	case event.ApprovalExpired:
		m.agg.ApprovalsExpired++
		s.ApprovalsExpired++
	}
	m.touch(s)
}

func (m *MetricsCollector) onProcessingStarted(evt event.Event) {
	d, ok := evt.Data.(event.ProcessingStartedData)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started[d.CorrelationID] = startedRequest{sessionID: d.SessionID, at: m.clock.Now()}
}

func (m *MetricsCollector) onProcessingCompleted(evt event.Event) {
	d, ok := evt.Data.(event.ProcessingCompletedData)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start, found := m.started[d.CorrelationID]
	delete(m.started, d.CorrelationID)

	m.agg.Requests++
	s := m.session(d.SessionID)
	s.RequestCount++
	if d.Err != "" {
		m.agg.RequestFailures++
		s.FailureCount++
	}
	if found {
		elapsed := m.clock.Now().Sub(start.at)
		m.agg.TotalDuration += elapsed
		s.TotalDuration += elapsed
	}
	m.touch(s)
}
