// Package treenode implements the Conversation Tree (spec.md section 4.3):
// a rooted tree of react/summary nodes that the Context Manager owns
// exclusively. Parent back-pointers are weak: a Node stores only its
// ParentID and the Tree resolves it by map lookup, so ownership never
// cycles (spec.md section 9, "Cyclic references").
package treenode

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// Tree owns every Node by ID and tracks the current node on the active
// spine (root to current via rightmost children).
type Tree struct {
	mu        sync.RWMutex
	nodes     map[string]*types.Node
	rootID    string
	currentID string
}

// NewTree creates a tree whose root is a ROOT node carrying the task
// description as its observation (spec.md section 3).
func NewTree(taskDescription string) *Tree {
	root := &types.Node{
		ID:        uuid.NewString(),
		Type:      types.NodeRoot,
		Depth:     0,
		Timestamp: time.Now(),
		Source:    types.SourceNormal,
		Observation: types.NewSuccess("", "task", taskDescription, nil),
	}
	return &Tree{
		nodes:     map[string]*types.Node{root.ID: root},
		rootID:    root.ID,
		currentID: root.ID,
	}
}

// Get returns a node by ID.
func (t *Tree) Get(id string) (*types.Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Root returns the tree's root node.
func (t *Tree) Root() *types.Node {
	n, _ := t.Get(t.rootID)
	return n
}

// Current returns the node most recently appended along the active spine.
func (t *Tree) Current() *types.Node {
	n, _ := t.Get(t.currentID)
	return n
}

// SetCurrent designates a node as current. The caller is responsible for
// invariant (c): it must be the most recently appended REACT or SUMMARY
// node on the spine.
func (t *Tree) SetCurrent(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("treenode: unknown node %q", id)
	}
	t.currentID = id
	return nil
}

// AppendReactChild creates a new REACT node as the rightmost child of
// parentID and returns it (not yet current; callers decide when to pivot).
func (t *Tree) AppendReactChild(parentID string) (*types.Node, error) {
	return t.appendChild(parentID, types.NodeReact)
}

// AppendSummaryChild creates a new SUMMARY node spanning
// [startDepth, endDepth) as the rightmost child of parentID.
func (t *Tree) AppendSummaryChild(parentID string, startDepth, endDepth int) (*types.Node, error) {
	n, err := t.appendChild(parentID, types.NodeSummary)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	n.StartSummaryDepth = startDepth
	n.EndSummaryDepth = endDepth
	t.mu.Unlock()
	return n, nil
}

func (t *Tree) appendChild(parentID string, nt types.NodeType) (*types.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("treenode: unknown parent %q", parentID)
	}

	child := &types.Node{
		ID:        uuid.NewString(),
		Type:      nt,
		ParentID:  parentID,
		Depth:     parent.Depth + 1,
		Timestamp: time.Now(),
		Source:    types.SourceNormal,
	}
	t.nodes[child.ID] = child
	parent.Children = append(parent.Children, child.ID)
	return child, nil
}

// MarkDone flips a node's type to DONE (terminal state for the active
// spine, spec.md section 4.5 step 7's internal-action-budget exhaustion
// and section 4.6's termination conditions).
func (t *Tree) MarkDone(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("treenode: unknown node %q", id)
	}
	n.Type = types.NodeDone
	return nil
}

// PathFromRoot returns the ancestors of id in root-to-node order,
// including the node itself (spec.md section 4.3).
func (t *Tree) PathFromRoot(id string) ([]*types.Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("treenode: unknown node %q", id)
	}

	var reversed []*types.Node
	for n != nil {
		reversed = append(reversed, n)
		if n.ParentID == "" {
			break
		}
		parent, ok := t.nodes[n.ParentID]
		if !ok {
			return nil, fmt.Errorf("treenode: dangling parent reference %q", n.ParentID)
		}
		n = parent
	}

	path := make([]*types.Node, len(reversed))
	for i, node := range reversed {
		path[len(reversed)-1-i] = node
	}
	return path, nil
}

// CheckDepthInvariant validates invariant (b): a non-root node's depth must
// equal its parent's depth + 1. Tree load treats a violation as an error
// rather than silently repairing it (spec.md section 9).
func (t *Tree) CheckDepthInvariant() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, n := range t.nodes {
		if n.ParentID == "" {
			if n.Depth != 0 {
				return fmt.Errorf("treenode: root %q has nonzero depth %d", id, n.Depth)
			}
			continue
		}
		parent, ok := t.nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("treenode: node %q has dangling parent %q", id, n.ParentID)
		}
		if n.Depth != parent.Depth+1 {
			return fmt.Errorf("treenode: node %q has depth %d, expected %d", id, n.Depth, parent.Depth+1)
		}
	}
	return nil
}

// NodeAtDepth walks the rightmost spine from root looking for the ancestor
// of cur at the given depth (used by the Context Manager to validate
// SUMMARIZE(d1, d2) calls against spec.md section 4.4).
func (t *Tree) NodeAtDepth(curID string, depth int) (*types.Node, error) {
	path, err := t.PathFromRoot(curID)
	if err != nil {
		return nil, err
	}
	if depth < 0 || depth >= len(path) {
		return nil, fmt.Errorf("treenode: depth %d out of range [0, %d)", depth, len(path))
	}
	return path[depth], nil
}

// Duplicate deep-copies node and exactly its rightmost child recursively
// under newParentID, skipping any node whose action is SUMMARIZE -- the
// boundary markers between summarized history and the live continuation
// are not re-attached (spec.md section 4.3 and 4.5). It returns the ID of
// the last duplicated node, which becomes the live continuation's new
// current node.
func (t *Tree) Duplicate(nodeID, newParentID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duplicateLocked(nodeID, newParentID)
}

func (t *Tree) duplicateLocked(nodeID, newParentID string) (string, error) {
	node, ok := t.nodes[nodeID]
	if !ok {
		return "", fmt.Errorf("treenode: unknown node %q", nodeID)
	}
	newParent, ok := t.nodes[newParentID]
	if !ok {
		return "", fmt.Errorf("treenode: unknown parent %q", newParentID)
	}

	attachUnder := newParentID
	if node.Action == nil || node.Action.Type != types.ActionSummarize {
		dup := node.Clone()
		dup.ID = uuid.NewString()
		dup.ParentID = newParentID
		dup.Depth = newParent.Depth + 1
		dup.Source = types.SourceDuplicate
		dup.Timestamp = time.Now()
		t.nodes[dup.ID] = dup
		newParent.Children = append(newParent.Children, dup.ID)
		attachUnder = dup.ID
	}

	if len(node.Children) == 0 {
		return attachUnder, nil
	}
	rightmost := node.Children[len(node.Children)-1]
	return t.duplicateLocked(rightmost, attachUnder)
}
