package types

import "time"

// AgentType is the closed set of specialized agent behaviors (§3).
type AgentType string

const (
	AgentOrchestrator AgentType = "orchestrator"
	AgentCoder        AgentType = "coder"
	AgentArchitect    AgentType = "architect"
	AgentDebug        AgentType = "debug"
	AgentAsk          AgentType = "ask"
	AgentUniversal    AgentType = "universal"
)

// ValidAgentTypes lists every member of the closed agent-type set.
var ValidAgentTypes = []AgentType{
	AgentOrchestrator, AgentCoder, AgentArchitect, AgentDebug, AgentAsk, AgentUniversal,
}

// IsValidAgentType reports whether t belongs to the closed set.
func IsValidAgentType(t AgentType) bool {
	for _, v := range ValidAgentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// DefaultMaxSwitches gives each agent type's default maxSwitches, following
// the fixed tool allow-list / capability-per-type design in spec.md §3.
var DefaultMaxSwitches = map[AgentType]int{
	AgentOrchestrator: 20,
	AgentCoder:        10,
	AgentArchitect:    10,
	AgentDebug:        10,
	AgentAsk:          10,
	AgentUniversal:    15,
}

// DefaultToolAllowList gives each agent type's fixed tool allow-list.
var DefaultToolAllowList = map[AgentType][]string{
	AgentOrchestrator: {"switch_mode"},
	AgentCoder:        {"read_file", "write_file", "edit_file", "list_files", "search_files", "execute_command", "switch_mode"},
	AgentArchitect:    {"read_file", "list_files", "search_files", "write_file", "switch_mode"},
	AgentDebug:        {"read_file", "list_files", "search_files", "execute_command", "switch_mode"},
	AgentAsk:          {"read_file", "list_files", "search_files", "switch_mode"},
	AgentUniversal:    {"read_file", "write_file", "edit_file", "list_files", "search_files", "execute_command", "create_directory", "move_file", "delete_file", "switch_mode"},
}

// Capabilities describes what an Agent of a given type may do.
type Capabilities struct {
	AgentType        AgentType `json:"agentType"`
	SupportedTools   []string  `json:"supportedTools"`
	MaxSwitches      int       `json:"maxSwitches"`
	CanDelegate      bool      `json:"canDelegate"`
	RequiresApproval bool      `json:"requiresApproval"`
}

// DefaultCapabilities returns the standard capability set for an agent type.
func DefaultCapabilities(t AgentType) Capabilities {
	return Capabilities{
		AgentType:        t,
		SupportedTools:   append([]string(nil), DefaultToolAllowList[t]...),
		MaxSwitches:      DefaultMaxSwitches[t],
		CanDelegate:      t == AgentOrchestrator,
		RequiresApproval: t != AgentOrchestrator,
	}
}

// SwitchRecord is one entry in an Agent's switch history.
type SwitchRecord struct {
	FromType   *AgentType `json:"fromType,omitempty"`
	ToType     AgentType  `json:"toType"`
	Reason     string     `json:"reason,omitempty"`
	At         time.Time  `json:"at"`
	Confidence *float64   `json:"confidence,omitempty"`
}

// Agent is the per-session agent assignment aggregate (§3).
type Agent struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"sessionId"`
	CurrentType   AgentType      `json:"currentType"`
	Capabilities  Capabilities   `json:"capabilities"`
	SwitchHistory []SwitchRecord `json:"switchHistory"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LastSwitchAt  *time.Time     `json:"lastSwitchAt,omitempty"`
	SwitchCount   int            `json:"switchCount"`
}
