package commands

import (
	"fmt"
	"time"

	"github.com/flowline-ai/orchestrator/internal/agentrt"
	"github.com/flowline-ai/orchestrator/internal/approval"
	"github.com/flowline-ai/orchestrator/internal/clock"
	"github.com/flowline-ai/orchestrator/internal/config"
	"github.com/flowline-ai/orchestrator/internal/conversation"
	"github.com/flowline-ai/orchestrator/internal/event"
	"github.com/flowline-ai/orchestrator/internal/llm"
	"github.com/flowline-ai/orchestrator/internal/observability"
	"github.com/flowline-ai/orchestrator/internal/orchestrator"
	"github.com/flowline-ai/orchestrator/internal/storage"
)

func durationHours(h int) time.Duration {
	if h <= 0 {
		return 0
	}
	return time.Duration(h) * time.Hour
}

func durationSeconds(s int) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s) * time.Second
}

// engine bundles the wired orchestrator together with the cleanup scheduler
// and the observability subscribers riding the same EventBus, so CLI
// commands can report on a run without the orchestrator itself knowing
// observability exists.
type engine struct {
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *orchestrator.CleanupScheduler
	Audit        *observability.AuditLogger
	Metrics      *observability.MetricsCollector
}

// Close unsubscribes the observability subscribers from the bus.
func (e *engine) Close() {
	e.Audit.Close()
	e.Metrics.Close()
}

// buildEngine wires every service behind the Orchestrator, the way the
// teacher's run command wires providers/tools/storage for its own processor.
func buildEngine(workDir string) (*engine, error) {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	settings, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	if settings.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	store := storage.New(paths.StoragePath())
	bus := event.NewBus()
	sysClock := clock.SystemClock{}

	convSvc := conversation.NewService(conversation.NewFileStore(store), sysClock, bus)
	agentSvc := agentrt.NewService(agentrt.NewFileStore(store), sysClock, bus)

	policy := approval.DefaultPolicy()
	approvalSvc := approval.NewService(approval.NewFileStore(store), policy, sysClock, bus)

	model, err := llm.NewAnthropicModel(llm.AnthropicConfig{
		APIKey:  settings.AnthropicAPIKey,
		BaseURL: settings.AnthropicBaseURL,
		Model:   settings.AnthropicModel,
	})
	if err != nil {
		return nil, err
	}

	audit := observability.NewAuditLogger(bus, sysClock)
	metrics := observability.NewMetricsCollector(bus, sysClock)

	orch := orchestrator.New(convSvc, agentSvc, approvalSvc, model, bus, sysClock, settings.EffectiveMaxMessages())
	scheduler := orchestrator.NewCleanupScheduler(
		convSvc, approvalSvc,
		durationHours(settings.CleanupIntervalHours),
		durationSeconds(settings.ApprovalSweepIntervalSeconds),
		0,
	)
	return &engine{Orchestrator: orch, Scheduler: scheduler, Audit: audit, Metrics: metrics}, nil
}
