package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/flowline-ai/orchestrator/pkg/types"
)

// Settings holds the engine's own tunables (§1.3), as distinct from the
// domain data model in pkg/types. Zero values mean "use the spec default"
// and are resolved by the Effective* accessors at call sites, mirroring how
// types.Conversation.EffectiveMaxMessages works for the per-conversation
// override.
type Settings struct {
	MaxMessages                  int            `json:"maxMessages,omitempty"`
	MaxTitleLen                  int            `json:"maxTitleLen,omitempty"`
	CleanupIntervalHours         int            `json:"cleanupIntervalHours,omitempty"`
	ApprovalSweepIntervalSeconds int            `json:"approvalSweepIntervalSeconds,omitempty"`
	DefaultTimeoutSeconds        int            `json:"defaultTimeoutSeconds,omitempty"`
	MaxSwitches                  map[string]int `json:"maxSwitches,omitempty"`

	AnthropicAPIKey  string `json:"-"`
	AnthropicBaseURL string `json:"-"`
	AnthropicModel   string `json:"anthropicModel,omitempty"`
}

// Load reads engine settings from global config, then project config, then
// environment overrides, in that priority order (teacher's layered-merge
// style in internal/config/config.go).
func Load(directory string) (*Settings, error) {
	s := &Settings{MaxSwitches: make(map[string]int)}

	paths := GetPaths()
	loadSettingsFile(filepath.Join(paths.Config, "orchestrator.json"), s)
	loadSettingsFile(filepath.Join(paths.Config, "orchestrator.jsonc"), s)

	if directory != "" {
		loadSettingsFile(filepath.Join(directory, ".orchestrator", "orchestrator.json"), s)
		loadSettingsFile(filepath.Join(directory, ".orchestrator", "orchestrator.jsonc"), s)
	}

	applyEnvOverrides(s)
	return s, nil
}

func loadSettingsFile(path string, target *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = stripJSONComments(data)

	var fromFile Settings
	if err := json.Unmarshal(data, &fromFile); err != nil {
		return err
	}
	mergeSettings(target, &fromFile)
	return nil
}

// stripJSONComments removes // and /* */ comments from JSONC input.
func stripJSONComments(data []byte) []byte {
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	return multiLine.ReplaceAll(data, nil)
}

func mergeSettings(target, source *Settings) {
	if source.MaxMessages != 0 {
		target.MaxMessages = source.MaxMessages
	}
	if source.MaxTitleLen != 0 {
		target.MaxTitleLen = source.MaxTitleLen
	}
	if source.CleanupIntervalHours != 0 {
		target.CleanupIntervalHours = source.CleanupIntervalHours
	}
	if source.ApprovalSweepIntervalSeconds != 0 {
		target.ApprovalSweepIntervalSeconds = source.ApprovalSweepIntervalSeconds
	}
	if source.DefaultTimeoutSeconds != 0 {
		target.DefaultTimeoutSeconds = source.DefaultTimeoutSeconds
	}
	if source.AnthropicModel != "" {
		target.AnthropicModel = source.AnthropicModel
	}
	if len(source.MaxSwitches) > 0 {
		if target.MaxSwitches == nil {
			target.MaxSwitches = make(map[string]int)
		}
		for k, v := range source.MaxSwitches {
			target.MaxSwitches[k] = v
		}
	}
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		s.AnthropicAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_BASE_URL"); v != "" {
		s.AnthropicBaseURL = v
	}
	if v := os.Getenv("ORCHESTRATOR_MODEL"); v != "" {
		s.AnthropicModel = v
	}
	if v := os.Getenv("ORCHESTRATOR_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxMessages = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_CLEANUP_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.CleanupIntervalHours = n
		}
	}
	if v := os.Getenv("ORCHESTRATOR_APPROVAL_SWEEP_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.ApprovalSweepIntervalSeconds = n
		}
	}
}

// EffectiveMaxMessages returns the configured cap, defaulting to
// types.DefaultMaxMessages when unset.
func (s *Settings) EffectiveMaxMessages() int {
	if s.MaxMessages <= 0 {
		return types.DefaultMaxMessages
	}
	return s.MaxMessages
}

// EffectiveMaxTitleLen returns the configured title cap, defaulting to
// types.MaxTitleLen when unset.
func (s *Settings) EffectiveMaxTitleLen() int {
	if s.MaxTitleLen <= 0 {
		return types.MaxTitleLen
	}
	return s.MaxTitleLen
}

// EffectiveMaxSwitches returns the configured per-agent-type switch limit,
// falling back to types.DefaultMaxSwitches for that type when unset.
func (s *Settings) EffectiveMaxSwitches(agentType types.AgentType) int {
	if n, ok := s.MaxSwitches[string(agentType)]; ok && n > 0 {
		return n
	}
	return types.DefaultMaxSwitches[agentType]
}

// EffectiveDefaultTimeoutSeconds returns the configured approval timeout
// default, falling back to types.DefaultTimeoutSeconds when unset.
func (s *Settings) EffectiveDefaultTimeoutSeconds() int {
	if s.DefaultTimeoutSeconds <= 0 {
		return types.DefaultTimeoutSeconds
	}
	return s.DefaultTimeoutSeconds
}

// Save writes settings to path, creating parent directories as needed.
func Save(s *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
