package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-ai/orchestrator/pkg/types"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	oldXDGConfig := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("HOME", tmpDir)
	os.Unsetenv("XDG_CONFIG_HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		if oldXDGConfig != "" {
			os.Setenv("XDG_CONFIG_HOME", oldXDGConfig)
		}
	})
	return tmpDir
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolateHome(t)
	tmpProject := t.TempDir()

	projectConfig := `{
		"maxMessages": 200,
		"cleanupIntervalHours": 6,
		"maxSwitches": {"coder": 5}
	}`
	configPath := filepath.Join(tmpProject, ".orchestrator", "orchestrator.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(projectConfig), 0o644))

	s, err := Load(tmpProject)
	require.NoError(t, err)

	assert.Equal(t, 200, s.MaxMessages)
	assert.Equal(t, 6, s.CleanupIntervalHours)
	assert.Equal(t, 5, s.MaxSwitches["coder"])
}

func TestLoad_JSONCComments(t *testing.T) {
	isolateHome(t)
	tmpProject := t.TempDir()

	jsoncConfig := `{
		// message cap
		"maxMessages": 50,
		/* sweep cadence
		   in seconds */
		"approvalSweepIntervalSeconds": 15
	}`
	configPath := filepath.Join(tmpProject, ".orchestrator", "orchestrator.jsonc")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(jsoncConfig), 0o644))

	s, err := Load(tmpProject)
	require.NoError(t, err)

	assert.Equal(t, 50, s.MaxMessages)
	assert.Equal(t, 15, s.ApprovalSweepIntervalSeconds)
}

func TestLoad_GlobalThenProjectLayering(t *testing.T) {
	tmpHome := isolateHome(t)
	tmpProject := t.TempDir()

	globalConfig := `{"maxMessages": 100, "maxTitleLen": 80}`
	globalPath := filepath.Join(tmpHome, ".config", "orchestrator", "orchestrator.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(globalPath), 0o755))
	require.NoError(t, os.WriteFile(globalPath, []byte(globalConfig), 0o644))

	projectConfig := `{"maxMessages": 300}`
	projectPath := filepath.Join(tmpProject, ".orchestrator", "orchestrator.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(projectPath), 0o755))
	require.NoError(t, os.WriteFile(projectPath, []byte(projectConfig), 0o644))

	s, err := Load(tmpProject)
	require.NoError(t, err)

	assert.Equal(t, 300, s.MaxMessages, "project config should override global")
	assert.Equal(t, 80, s.MaxTitleLen, "global-only field should be preserved")
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolateHome(t)
	tmpProject := t.TempDir()

	configPath := filepath.Join(tmpProject, ".orchestrator", "orchestrator.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))
	require.NoError(t, os.WriteFile(configPath, []byte(`{"maxMessages": 10}`), 0o644))

	os.Setenv("ORCHESTRATOR_MAX_MESSAGES", "999")
	defer os.Unsetenv("ORCHESTRATOR_MAX_MESSAGES")

	s, err := Load(tmpProject)
	require.NoError(t, err)
	assert.Equal(t, 999, s.MaxMessages)
}

func TestEffectiveDefaults_FallBackToSpecDefaults(t *testing.T) {
	s := &Settings{}
	assert.Equal(t, types.DefaultMaxMessages, s.EffectiveMaxMessages())
	assert.Equal(t, types.MaxTitleLen, s.EffectiveMaxTitleLen())
	assert.Equal(t, types.DefaultTimeoutSeconds, s.EffectiveDefaultTimeoutSeconds())
	assert.Equal(t, types.DefaultMaxSwitches[types.AgentCoder], s.EffectiveMaxSwitches(types.AgentCoder))
}

func TestEffectiveMaxSwitches_ConfiguredOverride(t *testing.T) {
	s := &Settings{MaxSwitches: map[string]int{"coder": 3}}
	assert.Equal(t, 3, s.EffectiveMaxSwitches(types.AgentCoder))
	assert.Equal(t, types.DefaultMaxSwitches[types.AgentDebug], s.EffectiveMaxSwitches(types.AgentDebug))
}

func TestSaveAndLoad_RoundTrips(t *testing.T) {
	isolateHome(t)
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "settings.json")

	original := &Settings{MaxMessages: 42, MaxSwitches: map[string]int{"ask": 7}}
	require.NoError(t, Save(original, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"maxMessages": 42`)
}
