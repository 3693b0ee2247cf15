package approval

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// MatchMode selects how PolicyRule.Subject is interpreted.
type MatchMode string

const (
	// MatchRegex interprets Subject as a regular expression (the default).
	MatchRegex MatchMode = "regex"
	// MatchGlob interprets Subject as a doublestar glob pattern, e.g.
	// "file_*" or "tool:**:write". Useful for path- or namespace-shaped
	// subjects where a glob reads more naturally than a regex.
	MatchGlob MatchMode = "glob"
)

// Condition is one extra predicate evaluated against requestData. Field
// names `<field>_gt | _lt | _eq | _contains` decompose into a target field
// and a comparator at rule-compile time.
type Condition struct {
	Field      string
	Comparator string // "gt" | "lt" | "eq" | "contains"
	Value      any
}

// PolicyRule matches (approvalType, subject, requestData) to an action.
type PolicyRule struct {
	ApprovalType types.ApprovalType
	Subject      string // regex source, or glob pattern when Mode == MatchGlob
	Mode         MatchMode
	Conditions   []Condition
	Action       types.PolicyAction
	Priority     int

	subjectRe *regexp.Regexp
}

// compile validates the rule's subject pattern once so evaluation never
// fails at match time (a compile failure is a ValidationError raised by
// NewPolicy). Glob patterns are validated via a dry match against "" so a
// malformed pattern surfaces here rather than during Evaluate.
func (r *PolicyRule) compile() error {
	if r.Mode == "" {
		r.Mode = MatchRegex
	}
	switch r.Mode {
	case MatchGlob:
		if _, err := doublestar.Match(r.Subject, ""); err != nil {
			return err
		}
		return nil
	default:
		re, err := regexp.Compile(r.Subject)
		if err != nil {
			return err
		}
		r.subjectRe = re
		return nil
	}
}

func (r *PolicyRule) matches(subject string, requestData map[string]any) bool {
	var subjectMatch bool
	if r.Mode == MatchGlob {
		subjectMatch, _ = doublestar.Match(r.Subject, subject)
	} else {
		subjectMatch = r.subjectRe.MatchString(subject)
	}
	if !subjectMatch {
		return false
	}
	for _, c := range r.Conditions {
		if !c.evaluate(requestData) {
			return false
		}
	}
	return true
}

func (c Condition) evaluate(data map[string]any) bool {
	v, ok := data[c.Field]
	if !ok {
		return false
	}
	switch c.Comparator {
	case "eq":
		return v == c.Value
	case "contains":
		vs, ok1 := v.(string)
		cs, ok2 := c.Value.(string)
		if ok1 && ok2 {
			return strings.Contains(vs, cs)
		}
		return false
	case "gt":
		a, ok1 := asFloat(v)
		b, ok2 := asFloat(c.Value)
		return ok1 && ok2 && a > b
	case "lt":
		a, ok1 := asFloat(v)
		b, ok2 := asFloat(c.Value)
		return ok1 && ok2 && a < b
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Policy is an ordered set of PolicyRules plus a default action (§4.7,
// "HITLPolicy").
type Policy struct {
	Active        bool
	Rules         []PolicyRule
	DefaultAction types.PolicyAction
}

// NewPolicy compiles every rule's subject regex up front and sorts rules by
// priority descending, ties broken by original insertion order (stable
// sort).
func NewPolicy(active bool, rules []PolicyRule, defaultAction types.PolicyAction) (*Policy, error) {
	compiled := make([]PolicyRule, len(rules))
	copy(compiled, rules)
	for i := range compiled {
		if err := compiled[i].compile(); err != nil {
			return nil, orcerr.Validation("approval", "invalid policy rule subject regex: "+err.Error())
		}
	}

	sortStableByPriorityDesc(compiled)

	if defaultAction == "" {
		defaultAction = types.PolicyAskUser
	}
	return &Policy{Active: active, Rules: compiled, DefaultAction: defaultAction}, nil
}

func sortStableByPriorityDesc(rules []PolicyRule) {
	// insertion sort preserves original order for equal priorities (stable)
	for i := 1; i < len(rules); i++ {
		j := i
		for j > 0 && rules[j-1].Priority < rules[j].Priority {
			rules[j-1], rules[j] = rules[j], rules[j-1]
			j--
		}
	}
}

// Evaluate decides approve/reject/ask_user for a given approval request
// (§4.7). An inactive policy always approves.
func (p *Policy) Evaluate(approvalType types.ApprovalType, subject string, requestData map[string]any) types.PolicyAction {
	if !p.Active {
		return types.PolicyApprove
	}
	for _, r := range p.Rules {
		if r.ApprovalType != approvalType {
			continue
		}
		if r.matches(subject, requestData) {
			return r.Action
		}
	}
	return p.DefaultAction
}

// DefaultPolicy returns the pre-loaded rule set from §4.7: ask-user for a
// fixed set of mutating tools, auto-approve for a read-only set, and
// ask-user for every plan_execution.
func DefaultPolicy() *Policy {
	mutating := []string{"write_file", "delete_file", "execute_command", "create_directory", "move_file"}
	readonly := []string{"read_file", "list_files", "search_files"}

	rules := make([]PolicyRule, 0, len(mutating)+len(readonly)+1)
	for _, name := range mutating {
		rules = append(rules, PolicyRule{
			ApprovalType: types.ApprovalToolCall,
			Subject:      "^" + regexpQuote(name) + "$",
			Action:       types.PolicyAskUser,
			Priority:     10,
		})
	}
	for _, name := range readonly {
		rules = append(rules, PolicyRule{
			ApprovalType: types.ApprovalToolCall,
			Subject:      "^" + regexpQuote(name) + "$",
			Action:       types.PolicyApprove,
			Priority:     10,
		})
	}
	rules = append(rules, PolicyRule{
		ApprovalType: types.ApprovalPlanExecution,
		Subject:      ".*",
		Action:       types.PolicyAskUser,
		Priority:     0,
	})

	p, err := NewPolicy(true, rules, types.PolicyAskUser)
	if err != nil {
		// the literal rule set above is always valid; a compile failure here
		// would be a programming error, not a runtime condition to recover from.
		panic(err)
	}
	return p
}

func regexpQuote(s string) string {
	return regexp.QuoteMeta(s)
}
