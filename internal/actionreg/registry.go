package actionreg

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// toolNamePattern bounds tool names the LLM may invoke (spec.md section
// 4.2, "Tool names are clipped to 64 characters and must match
// [a-zA-Z0-9_-]+").
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const maxToolNameLength = 64

// Validate checks a field record against its own metadata, independent of
// construction -- a value struct can satisfy Validatable to reject
// semantically invalid arguments (e.g. negative seconds) that JSON typing
// alone would not catch.
type Validatable interface {
	Validate() error
}

// Spec is a registered action type: its schema descriptor, how to build a
// typed Action from a raw JSON argument blob, and the handler chain entry
// that executes it.
type Spec struct {
	Type                 types.ActionType
	Description          string
	Fields               []types.FieldSpec
	SecurityRisk         types.SecurityRisk
	RequiresConfirmation bool
	// Decode must unmarshal raw into a Validatable pointer value; Build
	// calls Validate() on it before accepting the action.
	Decode func(raw json.RawMessage) (Validatable, error)
}

// Handler executes Actions of the kinds it claims via CanHandle. Dispatch
// is chain-of-responsibility: the first handler whose CanHandle returns
// true produces the Observation (spec.md section 4.2).
type Handler interface {
	CanHandle(action *types.Action) bool
	Handle(ctx context.Context, action *types.Action) (*types.Observation, error)
}

// Registry is the bidirectional action-tag <-> record-type map plus the
// ordered handler chain.
type Registry struct {
	specs    map[types.ActionType]Spec
	handlers []Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[types.ActionType]Spec)}
}

// Register adds or replaces an action type's spec.
func (r *Registry) Register(spec Spec) {
	r.specs[spec.Type] = spec
}

// Use appends a handler to the dispatch chain, in priority order.
func (r *Registry) Use(h Handler) {
	r.handlers = append(r.handlers, h)
}

// ToolDef is what the Context Manager exposes to the LLM as the tool list.
type ToolDef struct {
	Name        types.ActionType
	Description string
	Parameters  json.RawMessage
}

// ToolList returns the full catalog's tool definitions sorted by action tag,
// so the tool list presented to the LLM is stable across calls despite
// specs being stored in a map.
func (r *Registry) ToolList() []ToolDef {
	defs := make([]ToolDef, 0, len(r.specs))
	for t, spec := range r.specs {
		defs = append(defs, ToolDef{
			Name:        t,
			Description: spec.Description,
			Parameters:  BuildSchema(spec.Fields),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Build converts an LLM tool call into a typed Action. A malformed or
// unknown tool call never errors out of Build: it returns a NULL action
// carrying the reason, which the caller turns into an observation without
// any side effects (spec.md section 4.2's robustness requirement).
func (r *Registry) Build(toolName string, rawArgs json.RawMessage, callID string) *types.Action {
	if len(toolName) > maxToolNameLength {
		toolName = toolName[:maxToolNameLength]
	}
	if !toolNamePattern.MatchString(toolName) {
		return nullAction(callID, fmt.Sprintf("tool name %q does not match [a-zA-Z0-9_-]+", toolName))
	}

	spec, ok := r.specs[types.ActionType(toolName)]
	if !ok {
		return nullAction(callID, fmt.Sprintf("unknown tool %q", toolName))
	}

	if spec.Decode == nil {
		return nullAction(callID, fmt.Sprintf("tool %q has no constructor registered", toolName))
	}

	parsed, err := spec.Decode(rawArgs)
	if err != nil {
		return nullAction(callID, fmt.Sprintf("invalid arguments for %q: %v", toolName, err))
	}
	if err := parsed.Validate(); err != nil {
		return nullAction(callID, fmt.Sprintf("invalid arguments for %q: %v", toolName, err))
	}

	canonical, err := json.Marshal(parsed)
	if err != nil {
		return nullAction(callID, fmt.Sprintf("failed to canonicalize arguments for %q: %v", toolName, err))
	}

	return &types.Action{
		Type:                 spec.Type,
		CallID:               callID,
		Description:          spec.Description,
		SecurityRisk:         spec.SecurityRisk,
		RequiresConfirmation: spec.RequiresConfirmation,
		Args:                 canonical,
	}
}

func nullAction(callID, reason string) *types.Action {
	return &types.Action{
		Type:         types.ActionNull,
		CallID:       callID,
		ErrorMessage: reason,
	}
}

// Dispatch routes action to the first handler that claims it. Unknown
// tools (NULL actions) and actions no handler claims both produce a
// failure observation carrying the reason, never a side effect.
func (r *Registry) Dispatch(ctx context.Context, action *types.Action) (*types.Observation, error) {
	if action.Type == types.ActionNull {
		return types.NewFailure(action.CallID, string(action.Type), action.ErrorMessage), nil
	}
	for _, h := range r.handlers {
		if h.CanHandle(action) {
			return h.Handle(ctx, action)
		}
	}
	return types.NewFailure(action.CallID, string(action.Type),
		fmt.Sprintf("no handler registered for action %q", action.Type)), nil
}
