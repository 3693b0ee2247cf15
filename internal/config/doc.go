// Package config loads the engine's own tunables (§1.3): message and title
// caps, cleanup and approval-sweep cadence, default approval timeout, and
// per-agent-type switch limits. Settings are layered global config -> project
// config -> environment variables, each layer overriding the one before it,
// following the teacher's merge strategy in its own internal/config package.
// JSON and JSONC (JSON with // and /* */ comments stripped before parsing)
// are both accepted. Path management follows the XDG Base Directory
// Specification via the Paths type.
package config
