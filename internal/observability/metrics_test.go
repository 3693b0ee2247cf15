package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/event"
)

func TestMetricsCollector_AggregatesAcrossSessions(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	m := NewMetricsCollector(bus, fc)
	t.Cleanup(m.Close)

	bus.PublishSync(event.Event{Type: event.AgentSwitched, Data: event.AgentSwitchedData{SessionID: "s1", ToType: "coder"}})
	bus.PublishSync(event.Event{Type: event.AgentSwitched, Data: event.AgentSwitchedData{SessionID: "s2", ToType: "debug"}})
	bus.PublishSync(event.Event{Type: event.AgentSwitchLimitReached, Data: event.AgentSwitchLimitReachedData{SessionID: "s1", AgentType: "coder", MaxSwitches: 10}})

	bus.PublishSync(event.Event{Type: event.ApprovalRequested, Data: event.ApprovalRequestedData{ApprovalID: "a1", SessionID: "s1"}})
	bus.PublishSync(event.Event{Type: event.ApprovalGranted, Data: event.ApprovalDecidedData{ApprovalID: "a1", SessionID: "s1", Status: "approved"}})
	bus.PublishSync(event.Event{Type: event.ApprovalRejected, Data: event.ApprovalDecidedData{ApprovalID: "a2", SessionID: "s2", Status: "rejected"}})

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.AgentSwitches)
	assert.Equal(t, 1, snap.SwitchLimitReached)
	assert.Equal(t, 1, snap.ApprovalsRequested)
	assert.Equal(t, 1, snap.ApprovalsGranted)
	assert.Equal(t, 1, snap.ApprovalsRejected)

	require.Contains(t, snap.Sessions, "s1")
	require.Contains(t, snap.Sessions, "s2")
	assert.Equal(t, 1, snap.Sessions["s1"].AgentSwitches)
	assert.Equal(t, 1, snap.Sessions["s1"].SwitchLimitReached)
	assert.Equal(t, 1, snap.Sessions["s2"].ApprovalsRejected)
}

func TestMetricsCollector_TracksRequestDurationByCorrelationID(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	fc := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	m := NewMetricsCollector(bus, fc)
	t.Cleanup(m.Close)

	bus.PublishSync(event.Event{Type: event.ProcessingStarted, Data: event.ProcessingStartedData{SessionID: "s1", CorrelationID: "corr-1"}})
	fc.Advance(250 * time.Millisecond)
	bus.PublishSync(event.Event{Type: event.ProcessingCompleted, Data: event.ProcessingCompletedData{SessionID: "s1", CorrelationID: "corr-1"}})

	bus.PublishSync(event.Event{Type: event.ProcessingStarted, Data: event.ProcessingStartedData{SessionID: "s1", CorrelationID: "corr-2"}})
	fc.Advance(50 * time.Millisecond)
	bus.PublishSync(event.Event{Type: event.ProcessingCompleted, Data: event.ProcessingCompletedData{SessionID: "s1", CorrelationID: "corr-2", Err: "boom"}})

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.Requests)
	assert.Equal(t, 1, snap.RequestFailures)
	assert.Equal(t, 300*time.Millisecond, snap.TotalDuration)

	s := snap.Sessions["s1"]
	assert.Equal(t, 2, s.RequestCount)
	assert.Equal(t, 1, s.FailureCount)
	assert.Equal(t, 300*time.Millisecond, s.TotalDuration)
	assert.True(t, s.LastActivity.Equal(fc.Now()))
}

func TestMetricsCollector_CompletedWithoutStarted_StillCountsRequest(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	m := NewMetricsCollector(bus, clock.SystemClock{})
	t.Cleanup(m.Close)

	bus.PublishSync(event.Event{Type: event.ProcessingCompleted, Data: event.ProcessingCompletedData{SessionID: "s1", CorrelationID: "unknown"}})

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Requests)
	assert.Equal(t, time.Duration(0), snap.TotalDuration)
}

func TestMetricsCollector_Close_StopsAggregating(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	m := NewMetricsCollector(bus, clock.SystemClock{})
	m.Close()

	bus.PublishSync(event.Event{Type: event.AgentSwitched, Data: event.AgentSwitchedData{SessionID: "s1", ToType: "coder"}})

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.AgentSwitches)
	assert.Empty(t, snap.Sessions)
}
