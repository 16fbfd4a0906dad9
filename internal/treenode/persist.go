package treenode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// nodeSnapshot is what save_to_json actually writes: the node's own
// payload plus the IDs of its children, but not their subtrees (spec.md
// section 4.3, "serializes the node's payload (not its subtree)"). The
// full recursive shape described for nodes/ in section 6 is reconstructed
// on demand by walking the live per-node files, not stored redundantly in
// each one; see DESIGN.md for why this resolution was picked over the
// section 6 wording.
type nodeSnapshot struct {
	ID                string             `json:"id"`
	NodeType          types.NodeType     `json:"node_type"`
	ParentID          string             `json:"parent_id,omitempty"`
	Children          []string           `json:"children"`
	Depth             int                `json:"depth"`
	Timestamp         time.Time          `json:"timestamp"`
	Source            types.NodeSource   `json:"source"`
	Messages          []types.LLMMessage `json:"messages,omitempty"`
	Response          *types.LLMResponse `json:"response,omitempty"`
	Action            *types.Action      `json:"action,omitempty"`
	Observation       *types.Observation `json:"observation,omitempty"`
	SummaryContent    string             `json:"summary_content,omitempty"`
	StartSummaryDepth int                `json:"start_summary_depth,omitempty"`
	EndSummaryDepth   int                `json:"end_summary_depth,omitempty"`
}

func toSnapshot(n *types.Node) nodeSnapshot {
	return nodeSnapshot{
		ID:                n.ID,
		NodeType:          n.Type,
		ParentID:          n.ParentID,
		Children:          append([]string(nil), n.Children...),
		Depth:             n.Depth,
		Timestamp:         n.Timestamp,
		Source:            n.Source,
		Messages:          n.Messages,
		Response:          n.Response,
		Action:            n.Action,
		Observation:       n.Observation,
		SummaryContent:    n.SummaryContent,
		StartSummaryDepth: n.StartSummaryDepth,
		EndSummaryDepth:   n.EndSummaryDepth,
	}
}

// SaveNode writes node's payload to dir/{prefix}_{id}_{isoTimestamp}.json,
// using a write-to-temp-then-rename so a crash mid-write never leaves a
// truncated checkpoint file behind (spec.md section 6).
func SaveNode(n *types.Node, dir, prefix string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("treenode: create checkpoint dir: %w", err)
	}

	ts := n.Timestamp.UTC().Format("20060102T150405.000000Z")
	name := fmt.Sprintf("%s_%s_%s.json", prefix, n.ID, ts)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(toSnapshot(n), "", "  ")
	if err != nil {
		return "", fmt.Errorf("treenode: marshal node: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("treenode: write node snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("treenode: finalize node snapshot: %w", err)
	}
	return path, nil
}

// treeDTO is the recursive, self-contained shape written for
// tree_data.json (spec.md section 6): a root node with nested children.
type treeDTO struct {
	nodeSnapshot
	ChildNodes []*treeDTO `json:"children_nodes,omitempty"`
}

func (t *Tree) toDTO(id string) (*treeDTO, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("treenode: unknown node %q", id)
	}
	dto := &treeDTO{nodeSnapshot: toSnapshot(n)}
	for _, childID := range n.Children {
		child, err := t.toDTO(childID)
		if err != nil {
			return nil, err
		}
		dto.ChildNodes = append(dto.ChildNodes, child)
	}
	return dto, nil
}

// SaveTree writes the entire tree, rooted at the root node, to path as one
// recursive JSON document (spec.md section 6, "tree_data.json").
func (t *Tree) SaveTree(path string) error {
	t.mu.RLock()
	dto, err := t.toDTO(t.rootID)
	t.mu.RUnlock()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return fmt.Errorf("treenode: marshal tree: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("treenode: create checkpoint dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("treenode: write tree: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("treenode: finalize tree: %w", err)
	}
	return nil
}

// LoadTree rebuilds a tree from a tree_data.json document, restoring node
// types, messages, response, action, observation, summary content, and
// parent/child links. It then selects as current the latest complete node
// (non-empty messages and a non-nil response), ties broken by timestamp,
// per spec.md section 4.3.
func LoadTree(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("treenode: read tree: %w", err)
	}

	var root treeDTO
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("treenode: unmarshal tree: %w", err)
	}

	tree := &Tree{nodes: make(map[string]*types.Node)}
	var complete []*types.Node

	var walk func(dto *treeDTO, parentID string) error
	walk = func(dto *treeDTO, parentID string) error {
		n := &types.Node{
			ID:                dto.ID,
			Type:              dto.NodeType,
			ParentID:          parentID,
			Depth:             dto.Depth,
			Timestamp:         dto.Timestamp,
			Source:            dto.Source,
			Messages:          dto.Messages,
			Response:          dto.Response,
			Action:            dto.Action,
			Observation:       dto.Observation,
			SummaryContent:    dto.SummaryContent,
			StartSummaryDepth: dto.StartSummaryDepth,
			EndSummaryDepth:   dto.EndSummaryDepth,
		}
		for _, child := range dto.ChildNodes {
			n.Children = append(n.Children, child.ID)
		}
		tree.nodes[n.ID] = n
		if n.IsComplete() {
			complete = append(complete, n)
		}
		for _, child := range dto.ChildNodes {
			if err := walk(child, n.ID); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(&root, ""); err != nil {
		return nil, err
	}

	tree.rootID = root.ID
	if err := tree.CheckDepthInvariant(); err != nil {
		return nil, fmt.Errorf("treenode: loaded tree violates depth invariant: %w", err)
	}

	if len(complete) == 0 {
		tree.currentID = tree.rootID
		return tree, nil
	}
	sort.Slice(complete, func(i, j int) bool {
		return complete[i].Timestamp.After(complete[j].Timestamp)
	})
	tree.currentID = complete[0].ID
	return tree, nil
}
