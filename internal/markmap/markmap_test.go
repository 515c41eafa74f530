package markmap_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lattice/api/internal/index"
	"lattice/api/internal/markmap"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
	"lattice/api/internal/tree"
)

type fakeHTML struct{}

func (fakeHTML) Render(md string) (string, error) { return "<table>" + md + "</table>", nil }

type memoryTrees map[model.DocumentID]*tree.NodeTree

func (m memoryTrees) LoadTree(_ context.Context, docID model.DocumentID) (*tree.NodeTree, error) {
	t, ok := m[docID]
	if !ok {
		return nil, tree.ErrNodeNotFound
	}
	return t, nil
}

func build(t *testing.T, input string) *tree.NodeTree {
	t.Helper()
	sink := index.NewCollectingSink()
	_, err := parser.New(nodetype.Default()).Parse(input, model.NewDocumentID(), sink)
	require.NoError(t, err)
	nt, err := tree.Build(sink.Snapshot())
	require.NoError(t, err)
	return nt
}

func transform(t *testing.T, input string) (*tree.NodeTree, *markmap.PureNode) {
	t.Helper()
	nt := build(t, input)
	pure, err := markmap.NewTransformer(nodetype.Default(), fakeHTML{}).Transform(nt)
	require.NoError(t, err)
	return nt, pure
}

func TestTransformPromotesSingleHeading(t *testing.T) {
	nt, pure := transform(t, "# Title\n\nintro text\n\n## Sub")
	assert.Equal(t, nt.Roots[0].String(), pure.NodeID)
	assert.Equal(t, "Title", pure.Content)
	assert.Equal(t, 1, pure.HeadingLevel)
	require.Len(t, pure.Children, 1)
	assert.Equal(t, "Sub", pure.Children[0].Content)
	assert.Equal(t, 2, pure.Children[0].HeadingLevel)
}

func TestTransformKeepsVirtualRootForSiblings(t *testing.T) {
	_, pure := transform(t, "# One\n\n# Two")
	assert.Equal(t, markmap.VirtualRootID, pure.NodeID)
	require.Len(t, pure.Children, 2)
	assert.Equal(t, "One", pure.Children[0].Content)
	assert.Equal(t, "Two", pure.Children[1].Content)
}

func TestTransformAttachesListsAndTables(t *testing.T) {
	input := "# A\n\n- x **bold**\n  - nested\n- y\n\n| h |\n| --- |\n| c |"
	_, pure := transform(t, input)
	require.Len(t, pure.Children, 3)
	assert.Equal(t, "x <strong>bold</strong>", pure.Children[0].Content)
	require.Len(t, pure.Children[0].Children, 1)
	assert.Equal(t, "nested", pure.Children[0].Children[0].Content)
	assert.Equal(t, "y", pure.Children[1].Content)
	assert.Contains(t, pure.Children[2].Content, "<table>")
	assert.Contains(t, pure.Children[2].Content, "| h |")
}

func TestTransformLooseListItemUsesParagraphs(t *testing.T) {
	_, pure := transform(t, "# A\n\n- first\n\n- second")
	require.Len(t, pure.Children, 2)
	assert.Equal(t, "first", pure.Children[0].Content)
	assert.Equal(t, "second", pure.Children[1].Content)
}

func TestInitializeAssignsIDsAndPaths(t *testing.T) {
	_, pure := transform(t, "# A\n\n## B\n\n### C\n\n## D")
	node := markmap.Initialize(pure)

	assert.Equal(t, 1, node.State.ID)
	assert.Equal(t, 1, node.State.Depth)
	assert.Equal(t, "1", node.Payload.Path)
	require.Len(t, node.Children, 2)
	b, d := node.Children[0], node.Children[1]
	assert.Equal(t, "1.2", b.Payload.Path)
	assert.Equal(t, 2, b.State.Depth)
	assert.Equal(t, "1.2.3", b.Children[0].State.Path)
	assert.Equal(t, 3, b.Children[0].State.Depth)
	assert.Equal(t, 4, d.State.ID)
	assert.Equal(t, "1.4", d.Payload.Path)
	assert.Equal(t, b.Payload.NodeID, b.State.Key)
}

func walk(n *markmap.Node, fn func(*markmap.Node)) {
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}

func TestFoldInitialExpandLevelZeroFoldsEverything(t *testing.T) {
	_, pure := transform(t, "# A\n\n## B\n\n- x\n- y")
	node := markmap.Initialize(pure)
	markmap.Fold(node, markmap.Options{InitialExpandLevel: 0})
	walk(node, func(n *markmap.Node) {
		assert.Equal(t, markmap.FoldCollapsed, n.Payload.Fold, n.Content)
	})
}

func TestFoldRecursiveCounter(t *testing.T) {
	_, pure := transform(t, "# A\n\n## B\n\n- x\n  - deep\n\n## C")
	node := markmap.Initialize(pure)
	b := node.Children[0]
	b.Payload.Fold = markmap.FoldRecursive

	markmap.Fold(node, markmap.Options{InitialExpandLevel: -1})

	assert.Equal(t, markmap.FoldNone, node.Payload.Fold)
	assert.Equal(t, markmap.FoldRecursive, b.Payload.Fold)
	walk(b.Children[0], func(n *markmap.Node) {
		assert.Equal(t, markmap.FoldCollapsed, n.Payload.Fold, n.Content)
	})
	assert.Equal(t, markmap.FoldNone, node.Children[1].Payload.Fold)
}

func TestFoldDepthThreshold(t *testing.T) {
	_, pure := transform(t, "# A\n\n## B\n\n### C")
	node := markmap.Initialize(pure)
	markmap.Fold(node, markmap.Options{InitialExpandLevel: 2})
	assert.Equal(t, markmap.FoldNone, node.Payload.Fold)
	assert.Equal(t, markmap.FoldCollapsed, node.Children[0].Payload.Fold)
	assert.Equal(t, markmap.FoldCollapsed, node.Children[0].Children[0].Payload.Fold)
}

func TestLazyLoadKeepsOneLevel(t *testing.T) {
	_, pure := transform(t, "# A\n\n## B\n\n### C\n\n### D")
	node := markmap.Initialize(pure)
	markmap.ApplyLoadMode(node, markmap.LoadLazy)

	require.Len(t, node.Children, 1)
	b := node.Children[0]
	assert.Empty(t, b.Children)
	assert.Equal(t, 2, b.Payload.ChildrenCount)
	require.NotNil(t, b.Payload.ChildrenLoaded)
	assert.False(t, *b.Payload.ChildrenLoaded)
	require.NotNil(t, b.Payload.ShowChildrenIndicator)
	assert.True(t, *b.Payload.ShowChildrenIndicator)
	require.NotNil(t, node.Payload.ChildrenLoaded)
	assert.True(t, *node.Payload.ChildrenLoaded)
}

func TestOutlineKeepsHeadingsOnly(t *testing.T) {
	_, pure := transform(t, "# A\n\n- item\n  - sub\n\n## B\n\n- x\n- y")
	node := markmap.Initialize(pure)
	markmap.ApplyLoadMode(node, markmap.LoadOutline)

	require.Len(t, node.Children, 1)
	b := node.Children[0]
	assert.Equal(t, "B", b.Content)
	assert.Equal(t, 2, b.State.Depth)
	assert.Equal(t, "1."+itoa(b.State.ID), b.Payload.Path)
	assert.Empty(t, b.Children)
	assert.Equal(t, 2, b.Payload.ChildrenCount)
	assert.Equal(t, markmap.FoldCollapsed, b.Payload.Fold)
	assert.False(t, *b.Payload.ChildrenLoaded)

	assert.Equal(t, 2, node.Payload.ChildrenCount)
	assert.True(t, *node.Payload.ChildrenLoaded)
}

func itoa(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestNodeJSONShape(t *testing.T) {
	_, pure := transform(t, "# A")
	node := markmap.Initialize(pure)
	markmap.ApplyLoadMode(node, markmap.LoadFull)

	raw, err := json.Marshal(node)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "A", decoded["content"])
	assert.Equal(t, []any{}, decoded["children"])
	payload := decoded["payload"].(map[string]any)
	assert.Equal(t, "1", payload["path"])
	assert.Equal(t, float64(1), payload["heading_level"])
	assert.Equal(t, false, payload["has_children"])
	assert.NotContains(t, payload, "fold")
	assert.NotContains(t, payload, "children_count")
	state := decoded["state"].(map[string]any)
	assert.Contains(t, state, "rect")
	assert.Equal(t, []any{float64(0), float64(0)}, state["size"])
}

type memorySettings map[string]string

func (m memorySettings) GetSetting(_ context.Context, q model.SettingQuery) (*model.UserSetting, error) {
	v, ok := m[string(q.Scope)+"/"+q.Key]
	if !ok {
		return nil, nil
	}
	return &model.UserSetting{Scope: q.Scope, ScopeID: q.ScopeID, Namespace: q.Namespace, Key: q.Key, ValueJSON: v}, nil
}

type fixedWorkspace struct{ id model.WorkspaceID }

func (f fixedWorkspace) WorkspaceOfDocument(context.Context, model.DocumentID) (*model.WorkspaceID, error) {
	return &f.id, nil
}

func TestSettingsOptionsCascade(t *testing.T) {
	tests := []struct {
		name     string
		settings memorySettings
		want     markmap.Options
	}{
		{
			name:     "defaults",
			settings: memorySettings{},
			want:     markmap.DefaultOptions(),
		},
		{
			name: "document wins",
			settings: memorySettings{
				"document/initial_expand_level":  "2",
				"workspace/initial_expand_level": "3",
				"global/load_mode.root":          `"full"`,
			},
			want: markmap.Options{InitialExpandLevel: 2, LoadModeRoot: markmap.LoadFull, LoadModeChild: markmap.LoadLazy},
		},
		{
			name: "malformed value falls through",
			settings: memorySettings{
				"document/initial_expand_level":  `"deep"`,
				"workspace/initial_expand_level": "1",
				"document/load_mode.child":       "7",
				"global/load_mode.child":         `"outline"`,
			},
			want: markmap.Options{InitialExpandLevel: 1, LoadModeRoot: markmap.LoadOutline, LoadModeChild: markmap.LoadOutline},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := markmap.NewSettingsOptions(tt.settings, fixedWorkspace{id: model.NewWorkspaceID()}, nil)
			got, err := provider.Resolve(context.Background(), "", model.NewDocumentID())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServiceIncrementalLoading(t *testing.T) {
	doc := model.NewDocumentID()
	nt := build(t, "# A\n\n## B\n\n### C\n\n## D")
	svc := markmap.NewService(memoryTrees{doc: nt}, markmap.StaticOptions(markmap.DefaultOptions()),
		markmap.NewTransformer(nodetype.Default(), fakeHTML{}))
	ctx := context.Background()

	full, err := svc.Execute(ctx, "", doc)
	require.NoError(t, err)
	require.Len(t, full.Children, 2)
	require.Len(t, full.Children[0].Children, 1)

	root, err := svc.ExecuteRoot(ctx, "", doc)
	require.NoError(t, err)
	assert.Equal(t, "A", root.Content)

	bID := full.Children[0].Payload.NodeID
	children, err := svc.ExecuteChildren(ctx, "", doc, bID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "C", children[0].Content)

	node, err := svc.ExecuteNode(ctx, "", doc, bID)
	require.NoError(t, err)
	assert.Equal(t, "B", node.Content)
	require.Len(t, node.Children, 1)
	assert.Empty(t, node.Children[0].Children)

	_, err = svc.ExecuteChildren(ctx, "", doc, model.NewNodeID().String())
	assert.True(t, errors.Is(err, tree.ErrNodeNotFound))
}
