package contextmgr

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

const forceSummarizeInstruction = "you MUST use the `internal_summarize` action this turn"

// systemPrompt templates the computer pool and task-config constants into
// the REACT-path system message (spec.md section 4.4, prompt construction
// step 1). TaskConfig is threaded through explicitly rather than attached
// as a package/class-level variable (spec.md section 9, "global singletons").
func systemPrompt(cfg *types.TaskConfig) string {
	var pool strings.Builder
	for _, c := range cfg.ComputerPool {
		internet := "no internet"
		if c.Internet {
			internet = "internet"
		}
		fmt.Fprintf(&pool, "  - %s:%d (%s, %s)\n", c.IP, c.Port, c.Type, internet)
	}

	return fmt.Sprintf(`You are an autonomous research agent. You drive a pool of remote
shell sessions to complete the task described below. Available hosts:
%s
Workspace path: %s
Maximum evaluation attempts: %d

Reason about what to do next, then call exactly one tool to act.`,
		pool.String(), cfg.WorkspacePath, cfg.MaxEvalAttempts)
}

// summarySystemPrompt is emitted instead of systemPrompt when the current
// node is a SUMMARY node awaiting its summary_content (spec.md section
// 4.4, "SUMMARY path").
const summarySystemPrompt = `You are condensing a contiguous span of this agent's history into one
structured narrative. Read the enclosed <history> and produce a dense
summary that preserves every fact a continuation of this task would need:
files touched, commands run and their outcomes, sessions created, and the
current state of any long-running job.`

// remainingWorkingTime formats max_working_time - (now - start) for the
// ROOT node's user message (spec.md section 4.4, step 2).
func remainingWorkingTime(cfg *types.TaskConfig, startTime time.Time) time.Duration {
	elapsed := time.Since(startTime)
	remaining := cfg.MaxWorkingTime.Duration() - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// rootMessage renders the ROOT node's user turn.
func rootMessage(root *types.Node, cfg *types.TaskConfig, startTime time.Time) types.LLMMessage {
	desc := ""
	if root.Observation != nil {
		desc = root.Observation.Message
	}
	return types.LLMMessage{
		Role: "user",
		Content: fmt.Sprintf("<task_description>%s</task_description>\n<remaining_working_time>%s</remaining_working_time>",
			desc, remainingWorkingTime(cfg, startTime)),
	}
}

// summaryAckTurn renders the two messages an intermediate SUMMARY node
// contributes to an ancestor walk (spec.md section 4.4, step 3): an
// assistant notice of the condensed span, plus a user acknowledgement.
func summaryAckTurn(n *types.Node) []types.LLMMessage {
	span := n.EndSummaryDepth - n.StartSummaryDepth
	return []types.LLMMessage{
		{
			Role: "assistant",
			Content: fmt.Sprintf("After the last action, I have also made %d actions and get %d observations. Summary:\n%s",
				span, span, n.SummaryContent),
		},
		{
			Role:    "user",
			Content: "Understood. Continue from here; remember to check session status before assuming a prior command finished.",
		},
	}
}

// reactTurn renders the messages an intermediate REACT node contributes
// to an ancestor walk (spec.md section 4.4, step 4): the assistant
// response carrying its single tool call, the tool observation, and an
// optional <real_user> interjection.
func reactTurn(n *types.Node) []types.LLMMessage {
	var msgs []types.LLMMessage

	assistant := types.LLMMessage{
		Role:    "assistant",
		Content: "",
	}
	if n.Response != nil {
		assistant.Content = n.Response.Content
		if tc, ok := n.Response.FirstToolCall(); ok {
			assistant.ToolCalls = []types.ToolCall{tc}
		}
	}
	msgs = append(msgs, assistant)

	toolName := string(types.ActionNull)
	callID := ""
	if n.Action != nil {
		toolName = string(n.Action.Type)
		callID = n.Action.CallID
	}
	obsJSON := "{}"
	if n.Observation != nil {
		if raw, err := json.Marshal(observationReport{
			ToolName:   toolName,
			ToolCallID: callID,
			Success:    n.Observation.Success,
			Report:     n.Observation.String(),
		}); err == nil {
			obsJSON = string(raw)
		}
	}
	msgs = append(msgs, types.LLMMessage{
		Role:       "tool",
		Content:    obsJSON,
		ToolCallID: callID,
		ToolName:   toolName,
	})

	if n.UserMessage != "" {
		msgs = append(msgs, types.LLMMessage{
			Role:    "user",
			Content: fmt.Sprintf("<real_user>%s</real_user>", n.UserMessage),
		})
	}
	return msgs
}

// observationReport is the JSON the tool message's content carries,
// keyed by tool_name and tool_call_id (spec.md section 4.4, step 4).
type observationReport struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	Success    bool   `json:"success"`
	Report     string `json:"report"`
}

// ancestorTurn dispatches one ancestor node (excluding ROOT, handled by
// the caller) to its REACT or SUMMARY rendering.
func ancestorTurn(n *types.Node) []types.LLMMessage {
	if n.Type == types.NodeSummary {
		return summaryAckTurn(n)
	}
	return reactTurn(n)
}
