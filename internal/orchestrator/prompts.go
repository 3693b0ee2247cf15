package orchestrator

import (
	"github.com/flowline-ai/orchestrator/internal/llm"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// systemPrompts gives each agent type a default system prompt. These are
// intentionally short: the real prompt engineering lives outside the core,
// which only needs a distinguishing prompt per agent type to exercise the
// LanguageModelStream port.
var systemPrompts = map[types.AgentType]string{
	types.AgentOrchestrator: "You are the orchestrator. Read the user's request and either answer directly or call switch_mode to hand off to a specialized agent (coder, architect, debug, ask, universal).",
	types.AgentCoder:        "You are the coder agent. Write and modify code using the available file tools.",
	types.AgentArchitect:    "You are the architect agent. Design and document system structure; you may read and write files but do not execute commands.",
	types.AgentDebug:        "You are the debug agent. Investigate failures using read-only inspection and command execution.",
	types.AgentAsk:          "You are the ask agent. Answer questions about the codebase using read-only tools.",
	types.AgentUniversal:    "You are a universal agent with the full tool set.",
}

func systemPromptFor(t types.AgentType) string {
	if p, ok := systemPrompts[t]; ok {
		return p
	}
	return systemPrompts[types.AgentOrchestrator]
}

const switchModeTool = "switch_mode"

var toolDescriptions = map[string]string{
	"read_file":        "Read the contents of a file.",
	"write_file":       "Write the contents of a file, creating it if absent.",
	"edit_file":        "Apply a targeted edit to an existing file.",
	"list_files":       "List files under a directory.",
	"search_files":     "Search file contents for a pattern.",
	"execute_command":  "Run a shell command.",
	"create_directory": "Create a directory.",
	"move_file":        "Move or rename a file.",
	"delete_file":      "Delete a file.",
}

// toolSchemasFor builds the ToolSchema list the model is offered for one
// turn, derived from the agent's fixed tool allow-list (§3).
func toolSchemasFor(caps types.Capabilities) []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(caps.SupportedTools))
	for _, name := range caps.SupportedTools {
		if name == switchModeTool {
			schemas = append(schemas, llm.ToolSchema{
				Name:        switchModeTool,
				Description: "Switch the active agent to a different specialized type.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"target":     map[string]any{"type": "string"},
						"reason":     map[string]any{"type": "string"},
						"confidence": map[string]any{"type": "number"},
					},
					"required": []string{"target"},
				},
			})
			continue
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        name,
			Description: toolDescriptions[name],
			Parameters: map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		})
	}
	return schemas
}
