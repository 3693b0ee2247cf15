package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/flowline-ai/orchestrator/internal/llm"
	"github.com/flowline-ai/orchestrator/internal/orcerr"
	"github.com/flowline-ai/orchestrator/pkg/types"
)

// runMessage implements MessageProcessor (§4.2 step 1-2): ensure the
// conversation and agent exist, append the user's message (if any), and
// drive the agent loop.
func (o *Orchestrator) runMessage(ctx context.Context, sessionID, userText string, requestedAgentType *types.AgentType, chunks chan<- types.Chunk) error {
	if _, err := o.conv.GetOrCreate(ctx, sessionID, o.maxMessages); err != nil {
		return err
	}
	agent, err := o.agents.GetOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	if requestedAgentType != nil && *requestedAgentType != agent.CurrentType {
		if err := o.performSwitch(ctx, sessionID, agent.CurrentType, *requestedAgentType, "explicit request", nil, chunks); err != nil {
			return err
		}
	}

	if userText != "" {
		if _, err := o.conv.AppendMessage(ctx, sessionID, types.Message{Role: types.RoleUser, Content: userText}); err != nil {
			return err
		}
	}

	return o.runAgentLoop(ctx, sessionID, chunks)
}

// runToolResult implements ToolResultHandler (§4.3): persist the tool
// outcome against its call id, then continue the model loop without
// appending a second user message.
func (o *Orchestrator) runToolResult(ctx context.Context, sessionID, callID string, result any, resultErr string, chunks chan<- types.Chunk) error {
	content := resultErr
	if content == "" {
		content = formatToolResult(result)
	}
	if _, err := o.conv.AppendMessage(ctx, sessionID, types.Message{
		Role:       types.RoleTool,
		Content:    content,
		ToolCallID: callID,
	}); err != nil {
		return err
	}
	return o.runAgentLoop(ctx, sessionID, chunks)
}

// runApprovalDecision implements ApprovalDecisionHandler (§4.4): transition
// the pending approval per the user's decision, persist the corresponding
// synthetic tool message, and continue the model loop.
func (o *Orchestrator) runApprovalDecision(ctx context.Context, sessionID, callID string, decision types.Decision, modifiedArguments map[string]any, feedback string, chunks chan<- types.Chunk) error {
	req, err := o.approvals.Get(ctx, callID)
	if err != nil {
		return err
	}

	var content string
	switch decision {
	case types.DecisionApprove:
		if _, err := o.approvals.Grant(ctx, callID, string(decision)); err != nil {
			return err
		}
		content = fmt.Sprintf("approved, executing %s with %s", req.Subject, formatArguments(req.RequestData))
	case types.DecisionEdit:
		if _, err := o.approvals.Grant(ctx, callID, string(decision)); err != nil {
			return err
		}
		content = fmt.Sprintf("approved_with_edits, arguments = %s", formatArguments(modifiedArguments))
	case types.DecisionReject:
		if _, err := o.approvals.Reject(ctx, callID, feedback); err != nil {
			return err
		}
		content = fmt.Sprintf("rejected: %s", feedback)
	default:
		return orcerr.Validation("orchestrator", fmt.Sprintf("unknown decision %q", decision))
	}

	if _, err := o.conv.AppendMessage(ctx, sessionID, types.Message{
		Role:       types.RoleTool,
		Content:    content,
		ToolCallID: callID,
	}); err != nil {
		return err
	}
	return o.runAgentLoop(ctx, sessionID, chunks)
}

func formatToolResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}

func formatArguments(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

// frameResultKind discriminates how one Stream ended.
type frameResultKind int

const (
	kindDone frameResultKind = iota
	kindToolCall
	kindSwitch
)

// frameResult is the outcome of draining one model Stream to its terminal
// event.
type frameResult struct {
	kind frameResultKind

	content string // accumulated assistant text

	toolCall types.ToolCall

	targetAgent types.AgentType
	reason      string
	confidence  *float64

	finishReason string
}

// drainStream reads frames from stream until a tool_call, switch_agent or
// done frame arrives, emitting assistant_message token chunks as it goes
// (§4.2 step 3-4: "invoke the current agent's stream and translate frames").
func drainStream(ctx context.Context, stream llm.Stream, chunks chan<- types.Chunk) (frameResult, error) {
	var content string
	for {
		frame, err := stream.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return frameResult{kind: kindDone, content: content, finishReason: "stop"}, nil
			}
			return frameResult{}, orcerr.Upstream("orchestrator", err)
		}

		switch frame.Type {
		case llm.FrameToken:
			content += frame.Token
			chunks <- types.Chunk{Type: types.ChunkAssistantMessage, Token: frame.Token}
		case llm.FrameToolCall:
			if frame.ToolCall.Name == switchModeTool {
				target, reason, confidence := parseSwitchArguments(frame.ToolCall.Arguments)
				return frameResult{kind: kindSwitch, content: content, toolCall: frame.ToolCall, targetAgent: target, reason: reason, confidence: confidence}, nil
			}
			return frameResult{kind: kindToolCall, content: content, toolCall: frame.ToolCall}, nil
		case llm.FrameSwitchMode:
			return frameResult{kind: kindSwitch, content: content, targetAgent: frame.TargetAgent, reason: frame.Reason, confidence: frame.Confidence}, nil
		case llm.FrameDone:
			return frameResult{kind: kindDone, content: content, finishReason: frame.FinishReason}, nil
		default:
			return frameResult{}, orcerr.Upstream("orchestrator", fmt.Errorf("unrecognized frame type %q", frame.Type))
		}
	}
}

func parseSwitchArguments(args map[string]any) (types.AgentType, string, *float64) {
	var target types.AgentType
	var reason string
	var confidence *float64
	if v, ok := args["target"].(string); ok {
		target = types.AgentType(v)
	}
	if v, ok := args["reason"].(string); ok {
		reason = v
	}
	if v, ok := args["confidence"].(float64); ok {
		confidence = &v
	}
	return target, reason, confidence
}

// runAgentLoop implements §4.2 steps 3-5 as a single outer loop: each
// iteration re-reads the current agent type (it may have just changed via a
// switch), opens a fresh model stream over the latest conversation history,
// and drains it to a terminal event. A switch or a policy-rejected tool call
// restarts the loop in place; a tool call awaiting execution or approval, or
// a done frame, ends this run.
func (o *Orchestrator) runAgentLoop(ctx context.Context, sessionID string, chunks chan<- types.Chunk) error {
	for {
		agent, err := o.agents.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		conv, err := o.conv.Get(ctx, sessionID)
		if err != nil {
			return err
		}

		stream, err := o.model.Complete(ctx, systemPromptFor(agent.CurrentType), conv.Messages, toolSchemasFor(agent.Capabilities))
		if err != nil {
			return orcerr.Upstream("orchestrator", err)
		}

		result, err := drainStream(ctx, stream, chunks)
		closeErr := stream.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return orcerr.Upstream("orchestrator", closeErr)
		}

		switch result.kind {
		case kindDone:
			if result.content != "" {
				chunks <- types.Chunk{Type: types.ChunkAssistantMessage, Content: result.content}
				if _, err := o.conv.AppendMessage(ctx, sessionID, types.Message{Role: types.RoleAssistant, Content: result.content}); err != nil {
					return err
				}
			}
			chunks <- types.Chunk{Type: types.ChunkDone}.Final()
			return nil

		case kindSwitch:
			if err := o.appendAssistantTurn(ctx, sessionID, result); err != nil {
				return err
			}
			if err := o.performSwitch(ctx, sessionID, agent.CurrentType, result.targetAgent, result.reason, result.confidence, chunks); err != nil {
				return err
			}
			continue

		case kindToolCall:
			if err := o.appendAssistantTurn(ctx, sessionID, result); err != nil {
				return err
			}

			action := o.approvals.Evaluate(types.ApprovalToolCall, result.toolCall.Name, result.toolCall.Arguments)
			switch action {
			case types.PolicyReject:
				rejectMsg := fmt.Sprintf("rejected by policy: %s is not permitted", result.toolCall.Name)
				if _, err := o.conv.AppendMessage(ctx, sessionID, types.Message{Role: types.RoleTool, Content: rejectMsg, ToolCallID: result.toolCall.ID}); err != nil {
					return err
				}
				continue

			case types.PolicyAskUser:
				if _, err := o.approvals.Request(ctx, result.toolCall.ID, types.ApprovalToolCall, sessionID, result.toolCall.Name, result.toolCall.Arguments, "policy requires user approval", 0); err != nil {
					return err
				}
				chunks <- types.Chunk{
					Type:             types.ChunkToolCall,
					CallID:           result.toolCall.ID,
					ToolName:         result.toolCall.Name,
					Arguments:        result.toolCall.Arguments,
					RequiresApproval: true,
				}.Final()
				return nil

			default: // types.PolicyApprove
				chunks <- types.Chunk{
					Type:      types.ChunkToolCall,
					CallID:    result.toolCall.ID,
					ToolName:  result.toolCall.Name,
					Arguments: result.toolCall.Arguments,
				}.Final()
				return nil
			}
		}
	}
}

// appendAssistantTurn persists the assistant message that produced a
// tool_call or switch_agent frame, carrying the accumulated text plus (for
// a real tool call) the ToolCall itself.
func (o *Orchestrator) appendAssistantTurn(ctx context.Context, sessionID string, result frameResult) error {
	msg := types.Message{Role: types.RoleAssistant, Content: result.content}
	if result.kind == kindToolCall {
		msg.ToolCalls = []types.ToolCall{result.toolCall}
	} else if result.toolCall.Name == switchModeTool {
		msg.ToolCalls = []types.ToolCall{result.toolCall}
	} else if msg.Content == "" {
		// A model-native switch_agent frame carries no tool call and no
		// text; record a minimal note so the assistant message stays valid.
		msg.Content = fmt.Sprintf("switching to %s", result.targetAgent)
	}
	_, err := o.conv.AppendMessage(ctx, sessionID, msg)
	return err
}
