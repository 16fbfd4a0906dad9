package treenode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GAIR-NLP/agentcore/pkg/types"
)

func TestNewTree_RootInvariants(t *testing.T) {
	tr := NewTree("echo ok")
	root := tr.Root()
	require.NotNil(t, root)
	assert.Equal(t, types.NodeRoot, root.Type)
	assert.Equal(t, 0, root.Depth)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, tr.Current().ID, root.ID)
	assert.Equal(t, "echo ok", root.Observation.Message)
}

func TestAppendReactChild_DepthInvariant(t *testing.T) {
	tr := NewTree("task")
	root := tr.Root()

	c1, err := tr.AppendReactChild(root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, c1.Depth)

	c2, err := tr.AppendReactChild(c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c2.Depth)

	require.NoError(t, tr.CheckDepthInvariant())
}

func TestPathFromRoot(t *testing.T) {
	tr := NewTree("task")
	root := tr.Root()
	c1, _ := tr.AppendReactChild(root.ID)
	c2, _ := tr.AppendReactChild(c1.ID)

	path, err := tr.PathFromRoot(c2.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, root.ID, path[0].ID)
	assert.Equal(t, c1.ID, path[1].ID)
	assert.Equal(t, c2.ID, path[2].ID)
}

func TestDuplicate_SkipsSummarizeNodesOnRightmostSpine(t *testing.T) {
	tr := NewTree("task")
	root := tr.Root()

	d1, _ := tr.AppendReactChild(root.ID)
	d1.Action = &types.Action{Type: types.ActionSummarize}

	live, _ := tr.AppendReactChild(d1.ID)
	live.Action = &types.Action{Type: types.ActionRun}

	newParent, err := tr.AppendSummaryChild(root.ID, 1, 2)
	require.NoError(t, err)

	lastID, err := tr.Duplicate(d1.ID, newParent.ID)
	require.NoError(t, err)

	dup, ok := tr.Get(lastID)
	require.True(t, ok)
	assert.Equal(t, types.SourceDuplicate, dup.Source)
	assert.Equal(t, types.ActionRun, dup.Action.Type)
	// The SUMMARIZE node itself was not duplicated: newParent's only
	// duplicated descendant is the live continuation.
	assert.Equal(t, newParent.ID, dup.ParentID)
}

func TestSaveAndLoadTree_RoundTrip(t *testing.T) {
	tr := NewTree("task")
	root := tr.Root()
	root.Messages = []types.LLMMessage{{Role: "system", Content: "sys"}}
	root.Response = &types.LLMResponse{Content: "go"}

	c1, _ := tr.AppendReactChild(root.ID)
	c1.Messages = []types.LLMMessage{{Role: "user", Content: "do it"}}
	c1.Response = &types.LLMResponse{Content: "done"}
	require.NoError(t, tr.SetCurrent(c1.ID))

	dir := t.TempDir()
	path := filepath.Join(dir, "tree_data.json")
	require.NoError(t, tr.SaveTree(path))

	loaded, err := LoadTree(path)
	require.NoError(t, err)

	assert.Equal(t, tr.Root().ID, loaded.Root().ID)
	assert.Equal(t, c1.ID, loaded.Current().ID, "current should be the latest complete node")

	got, ok := loaded.Get(c1.ID)
	require.True(t, ok)
	assert.Equal(t, "done", got.Response.Content)
}

func TestSaveNode_WritesExpectedFilename(t *testing.T) {
	tr := NewTree("task")
	root := tr.Root()
	dir := t.TempDir()

	path, err := SaveNode(root, dir, "node")
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), root.ID)
}
