// Package observability hosts EventBus subscribers that turn the domain
// events already published by conversation/agentrt/approval/orchestrator
// into audit records and aggregate metrics, without those services knowing
// observability exists. AuditLogger and MetricsCollector are the Go
// counterparts of the original Python service's
// app/events/subscribers/audit_logger.py and metrics_collector.py.
package observability
