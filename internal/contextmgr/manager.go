// Package contextmgr implements the Context Manager (spec.md section
// 4.4): it owns the Conversation Tree, turns tree state into LLM-ready
// messages and tool sets, decides when to summarize, and validates the
// two internal actions (THINK, SUMMARIZE).
package contextmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/GAIR-NLP/agentcore/internal/actionreg"
	"github.com/GAIR-NLP/agentcore/internal/event"
	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/treenode"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// ErrSummaryResponseInvalid is returned by AddResponse when a SUMMARY
// node's response isn't internal_summarize or fails to decode. It is
// recoverable: the caller retries the turn with a failure observation
// attached rather than aborting the step (spec.md section 7).
var ErrSummaryResponseInvalid = errors.New("contextmgr: summary node requires internal_summarize")

// Stats is the token accounting the Summarization trigger reads (spec.md
// section 4.4, calculate_context_stats / should_summarize).
type Stats struct {
	TotalTokens int
}

// Manager owns the tree exclusively (spec.md section 3, "Ownership"): no
// other component may mutate nodes directly.
type Manager struct {
	mu sync.Mutex

	tree      *treenode.Tree
	registry  *actionreg.Registry
	cfg       *types.TaskConfig
	startTime time.Time
	tokens    *TokenCounter

	thinkCooldown       bool
	thinkExcludedTurn   bool
	internalActionCount int
	stats               Stats
	nodeSnapshotDir     string
}

// NewManager creates a context manager with a fresh tree rooted on the
// task description.
func NewManager(cfg *types.TaskConfig, registry *actionreg.Registry) (*Manager, error) {
	tc, err := NewTokenCounter(cfg.TokenizerID)
	if err != nil {
		return nil, err
	}
	return &Manager{
		tree:            treenode.NewTree(cfg.TaskDescription),
		registry:        registry,
		cfg:             cfg,
		startTime:       time.Now(),
		tokens:          tc,
		nodeSnapshotDir: filepath.Join(cfg.CheckpointBase, "nodes"),
	}, nil
}

// Resume wraps an already-loaded tree (spec.md section 4.6, restore from
// checkpoint) in a fresh Manager.
func Resume(cfg *types.TaskConfig, registry *actionreg.Registry, tree *treenode.Tree, startTime time.Time) (*Manager, error) {
	tc, err := NewTokenCounter(cfg.TokenizerID)
	if err != nil {
		return nil, err
	}
	return &Manager{
		tree:            tree,
		registry:        registry,
		cfg:             cfg,
		startTime:       startTime,
		tokens:          tc,
		nodeSnapshotDir: filepath.Join(cfg.CheckpointBase, "nodes"),
	}, nil
}

// Tree exposes the owned tree to the ReAct loop and Scaffold, which only
// read/append through it, never mutate nodes directly.
func (m *Manager) Tree() *treenode.Tree { return m.tree }

// StartTime is the task's wall-clock start, used for remaining-time math.
func (m *Manager) StartTime() time.Time { return m.startTime }

// ThinkCooldown reports whether THINK is currently disallowed (spec.md
// section 4.4, "think_cooldown").
func (m *Manager) ThinkCooldown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thinkCooldown
}

// Stats returns the last computed token accounting.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// GetMessages builds the LLM prompt for the current node, caches it on
// that node, and persists the node's snapshot to disk (spec.md section
// 4.4, "After building messages, cache them on the current node and
// persist the node to disk").
func (m *Manager) GetMessages() ([]types.LLMMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.tree.Current()
	if cur == nil {
		return nil, fmt.Errorf("contextmgr: no current node")
	}

	var messages []types.LLMMessage
	var err error
	switch cur.Type {
	case types.NodeSummary:
		messages, err = m.buildSummaryPath(cur)
	default:
		messages, err = m.buildReactPath(cur)
	}
	if err != nil {
		return nil, err
	}

	cur.Messages = messages
	if _, err := treenode.SaveNode(cur, m.nodeSnapshotDir, string(cur.Type)); err != nil {
		logging.Warn().Err(err).Str("node_id", cur.ID).Msg("contextmgr: failed to persist node snapshot")
	}
	return messages, nil
}

// buildReactPath implements spec.md section 4.4's "REACT path": system
// prompt, then one turn per ancestor (ROOT, intermediate SUMMARY,
// intermediate REACT), excluding the current node itself.
func (m *Manager) buildReactPath(cur *types.Node) ([]types.LLMMessage, error) {
	ancestors, err := m.tree.PathFromRoot(cur.ID)
	if err != nil {
		return nil, err
	}
	ancestors = ancestors[:len(ancestors)-1] // exclude current

	messages := []types.LLMMessage{{Role: "system", Content: systemPrompt(m.cfg)}}
	for _, n := range ancestors {
		if n.Type == types.NodeRoot {
			messages = append(messages, rootMessage(n, m.cfg, m.startTime))
			continue
		}
		messages = append(messages, ancestorTurn(n)...)
	}
	return messages, nil
}

// buildSummaryPath implements spec.md section 4.4's "SUMMARY path": the
// summary system prompt, a <task_description><history> window spanning
// the node's own [StartSummaryDepth, EndSummaryDepth) span inlined as
// ancestor turns, and a final forced-tool-call instruction.
func (m *Manager) buildSummaryPath(cur *types.Node) ([]types.LLMMessage, error) {
	span, err := m.summarySpan(cur)
	if err != nil {
		return nil, err
	}

	root := m.tree.Root()
	desc := ""
	if root.Observation != nil {
		desc = root.Observation.Message
	}

	messages := []types.LLMMessage{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: fmt.Sprintf("<task_description>%s</task_description>\n<history>", desc)},
	}
	for _, n := range span {
		messages = append(messages, ancestorTurn(n)...)
	}
	messages = append(messages,
		types.LLMMessage{Role: "user", Content: "</history>"},
		types.LLMMessage{Role: "user", Content: forceSummarizeInstruction},
	)
	return messages, nil
}

// summarySpan resolves the nodes a SUMMARY node's <history> window
// inlines: starting from the prior sibling (the pre-summary spine node at
// depth StartSummaryDepth, the last child of the summary's own parent
// before it was appended) and walking its rightmost-child chain up to
// depth EndSummaryDepth-1 (spec.md section 4.4).
func (m *Manager) summarySpan(summary *types.Node) ([]*types.Node, error) {
	parent, ok := m.tree.Get(summary.ParentID)
	if !ok {
		return nil, fmt.Errorf("contextmgr: summary node %q has no parent", summary.ID)
	}
	if len(parent.Children) < 2 {
		return nil, fmt.Errorf("contextmgr: summary node %q has no prior sibling to inline", summary.ID)
	}
	priorSiblingID := parent.Children[len(parent.Children)-2]

	var span []*types.Node
	cur, ok := m.tree.Get(priorSiblingID)
	if !ok {
		return nil, fmt.Errorf("contextmgr: dangling prior sibling %q", priorSiblingID)
	}
	for cur != nil && cur.Depth <= summary.EndSummaryDepth-1 {
		span = append(span, cur)
		if len(cur.Children) == 0 {
			break
		}
		next, ok := m.tree.Get(cur.Children[len(cur.Children)-1])
		if !ok {
			break
		}
		cur = next
	}
	return span, nil
}

// EligibleTools returns the tool catalog entries the current turn may
// call (spec.md section 4.5, step 5's eligibility rules).
func (m *Manager) EligibleTools() []actionreg.ToolDef {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.tree.Current()
	all := m.registry.ToolList()

	if cur != nil && cur.Type == types.NodeSummary {
		for _, t := range all {
			if t.Name == types.ActionSummarize {
				return []actionreg.ToolDef{t}
			}
		}
		return nil
	}

	excludeThink := m.thinkCooldown
	m.thinkExcludedTurn = excludeThink
	// The cooldown blocks exactly the one REACT turn following an accepted
	// THINK (spec.md section 4.4): consuming it here, on the first
	// EligibleTools call that applies it, is what "cleared to false on the
	// following REACT turn" means in practice.
	m.thinkCooldown = false

	out := make([]actionreg.ToolDef, 0, len(all))
	for _, t := range all {
		if t.Name == types.ActionThink && excludeThink {
			continue
		}
		if t.Name == types.ActionSummarize {
			continue // only ever synthesized, never offered for free-form choice
		}
		out = append(out, t)
	}
	return out
}

// CalculateContextStats rebuilds the prompt deterministically and counts
// tokens against the configured tokenizer, adding the 1000-token reserve
// (spec.md section 4.4).
func (m *Manager) CalculateContextStats() (Stats, error) {
	messages, err := m.GetMessages()
	if err != nil {
		return Stats{}, err
	}
	total := m.tokens.CountMessages(messages) + 1000

	m.mu.Lock()
	m.stats = Stats{TotalTokens: total}
	m.mu.Unlock()
	return m.stats, nil
}

// ShouldSummarize implements spec.md section 4.4's trigger: total tokens
// at or above summary_threshold, or total tokens minus the max_tokens
// reserve at or above the model's hard context_length.
func (m *Manager) ShouldSummarize() bool {
	stats := m.Stats()
	limits := m.cfg.ContextLimits
	if stats.TotalTokens >= limits.SummaryThreshold {
		return true
	}
	if stats.TotalTokens-limits.MaxTokens >= limits.ContextLength {
		return true
	}
	return false
}

// SynthesizeSummarize deterministically builds the SUMMARIZE action
// spec.md section 4.4 mandates when should_summarize fires:
// start_summary_depth=1, end_summary_depth=(current.depth+1)/2.
func (m *Manager) SynthesizeSummarize(callID string) *types.Action {
	cur := m.tree.Current()
	d2 := (cur.Depth + 1) / 2
	args, _ := json.Marshal(types.SummarizeArgs{StartSummaryDepth: 1, EndSummaryDepth: d2})
	event.Publish(event.Event{Type: event.SummarizeTriggered, Data: event.SummarizeTriggeredData{
		CurrentDepth: cur.Depth,
		TotalTokens:  m.Stats().TotalTokens,
	}})
	return &types.Action{
		Type:    types.ActionSummarize,
		CallID:  callID,
		Args:    args,
	}
}

// CheckSummarizeValidation implements spec.md section 4.4's SUMMARIZE
// validity rule: d1 < d2 <= current.depth+1, and the ancestor at depth d1
// must exist and have a parent (the parent becomes the summary node's
// parent).
func (m *Manager) CheckSummarizeValidation(d1, d2 int) (parentID string, err error) {
	cur := m.tree.Current()
	if cur == nil {
		return "", fmt.Errorf("contextmgr: no current node")
	}
	if d1 <= 0 || d2 <= 0 {
		return "", fmt.Errorf("contextmgr: summary depths must be positive, got (%d, %d)", d1, d2)
	}
	if !(d1 < d2 && d2 <= cur.Depth+1) {
		return "", fmt.Errorf("contextmgr: invalid summary span [%d, %d) for current depth %d", d1, d2, cur.Depth)
	}
	ancestor, err := m.tree.NodeAtDepth(cur.ID, d1)
	if err != nil {
		return "", fmt.Errorf("contextmgr: ancestor at depth %d not found: %w", d1, err)
	}
	if ancestor.ParentID == "" {
		return "", fmt.Errorf("contextmgr: ancestor at depth %d has no parent to graft the summary under", d1)
	}
	return ancestor.ParentID, nil
}

// CheckThinkValidation implements spec.md section 4.4's THINK rule: valid
// iff the current node is REACT and THINK was not excluded for this turn
// (the think_cooldown snapshot EligibleTools takes once per turn).
func (m *Manager) CheckThinkValidation() error {
	cur := m.tree.Current()
	if cur == nil || cur.Type != types.NodeReact {
		return fmt.Errorf("contextmgr: THINK is only valid from a REACT node")
	}
	m.mu.Lock()
	excluded := m.thinkExcludedTurn
	m.mu.Unlock()
	if excluded {
		return fmt.Errorf("ThinkAction was used in the last round. You cannot use it in consecutive rounds; take an external action or wait for an observation first")
	}
	return nil
}

// SetThinkCooldown flips the cooldown flag: true when a THINK is accepted
// and consumed, cleared on the following REACT turn (spec.md section
// 4.4).
func (m *Manager) SetThinkCooldown(v bool) {
	m.mu.Lock()
	m.thinkCooldown = v
	m.mu.Unlock()
}

// State is the auxiliary context-manager state the Scaffold persists
// alongside the tree at checkpoint time
// ({agent_type}_context_manager_params.json, spec.md section 4.6).
type State struct {
	ThinkCooldown       bool  `json:"think_cooldown"`
	InternalActionCount int   `json:"internal_action_count"`
	TotalTokens         int   `json:"total_tokens"`
	StartTimeUnix       int64 `json:"start_time_unix"`
}

// State snapshots the fields a checkpoint must carry beyond the tree
// itself.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		ThinkCooldown:       m.thinkCooldown,
		InternalActionCount: m.internalActionCount,
		TotalTokens:         m.stats.TotalTokens,
		StartTimeUnix:       m.startTime.Unix(),
	}
}

// RestoreState applies a previously-saved State after Resume rehydrates
// the tree, so the internal-action budget and think-cooldown survive a
// checkpoint/restore cycle.
func (m *Manager) RestoreState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thinkCooldown = s.ThinkCooldown
	m.internalActionCount = s.InternalActionCount
	m.stats.TotalTokens = s.TotalTokens
}

// IncrementInternalActionCount bumps the internal-action budget counter
// and reports whether it now exceeds max_internal_action_times (-1 means
// unbounded, spec.md section 3/4.5).
func (m *Manager) IncrementInternalActionCount() (exceeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.internalActionCount++
	limit := m.cfg.ContextLimits.MaxInternalActionTimes
	return limit >= 0 && m.internalActionCount > limit
}

// AddResponse implements spec.md section 4.4's add_response: parses the
// response's first tool call into a typed Action via the registry,
// attaches both to the current node, and -- if the current node is a
// SUMMARY node -- requires the call to be internal_summarize and stores
// its summary_content.
func (m *Manager) AddResponse(resp *types.LLMResponse) (*types.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.tree.Current()
	if cur == nil {
		return nil, fmt.Errorf("contextmgr: no current node")
	}

	tc, ok := resp.FirstToolCall()
	var action *types.Action
	if !ok {
		action = &types.Action{Type: types.ActionNull, ErrorMessage: "model response carried no tool call"}
	} else {
		action = m.registry.Build(tc.Name, json.RawMessage(tc.Arguments), tc.ID)
	}

	cur.Response = resp
	cur.Action = action

	if cur.Type == types.NodeSummary {
		if action.Type != types.ActionSummarize {
			return action, ErrSummaryResponseInvalid
		}
		var args types.SummarizeArgs
		if err := json.Unmarshal(action.Args, &args); err != nil {
			return action, fmt.Errorf("%w: decode summary_content: %v", ErrSummaryResponseInvalid, err)
		}
		cur.SummaryContent = args.SummaryContent
	}

	return action, nil
}

// AddObservation implements spec.md section 4.4's add_observation: stores
// the observation (and an optional real-user interjection) on the current
// REACT node.
func (m *Manager) AddObservation(obs *types.Observation, userMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.tree.Current()
	if cur == nil {
		return fmt.Errorf("contextmgr: no current node")
	}
	cur.Observation = obs
	if userMessage != "" {
		cur.UserMessage = userMessage
	}
	return nil
}

// AppendReactChild appends a fresh REACT child under parentID and makes
// it current, publishing tree.node_appended (spec.md section 4.5, step 3).
func (m *Manager) AppendReactChild(parentID string) (*types.Node, error) {
	child, err := m.tree.AppendReactChild(parentID)
	if err != nil {
		return nil, err
	}
	if err := m.tree.SetCurrent(child.ID); err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.NodeAppended, Data: event.NodeAppendedData{
		NodeID: child.ID, NodeType: child.Type, Depth: child.Depth,
	}})
	return child, nil
}

// AppendSummaryChild appends the validated SUMMARY node under parentID
// and makes it current.
func (m *Manager) AppendSummaryChild(parentID string, d1, d2 int) (*types.Node, error) {
	child, err := m.tree.AppendSummaryChild(parentID, d1, d2)
	if err != nil {
		return nil, err
	}
	if err := m.tree.SetCurrent(child.ID); err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.NodeAppended, Data: event.NodeAppendedData{
		NodeID: child.ID, NodeType: child.Type, Depth: child.Depth,
	}})
	return child, nil
}

// GraftContinuation duplicates the rightmost continuation hanging off the
// summarized ancestor under the new summary node, then pivots current to
// the duplicated tip, so the live continuation resumes past the summary
// (spec.md section 4.5, internal-action sub-loop, SUMMARIZE branch).
func (m *Manager) GraftContinuation(summarizedAncestorID, summaryNodeID string) error {
	tip, err := m.tree.Duplicate(summarizedAncestorID, summaryNodeID)
	if err != nil {
		return err
	}
	return m.tree.SetCurrent(tip)
}

// MarkDone transitions the current node to DONE (spec.md section 4.5,
// internal-action-budget exhaustion).
func (m *Manager) MarkDone() error {
	cur := m.tree.Current()
	if cur == nil {
		return fmt.Errorf("contextmgr: no current node")
	}
	return m.tree.MarkDone(cur.ID)
}
