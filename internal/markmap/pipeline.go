package markmap

import (
	"strconv"
	"strings"
)

// Initialize assigns ids, depths and paths depth first. Ids start at 1 and
// the root has depth 1.
func Initialize(root *PureNode) *Node {
	next := 0
	return initNode(root, "", 0, &next)
}

func initNode(pure *PureNode, parentPath string, depth int, next *int) *Node {
	*next++
	id := *next
	depth++
	path := strconv.Itoa(id)
	if parentPath != "" {
		path = parentPath + "." + path
	}
	node := &Node{
		Content:  pure.Content,
		Children: make([]*Node, 0, len(pure.Children)),
		Payload: Payload{
			Path:         path,
			NodeID:       pure.NodeID,
			HeadingLevel: pure.HeadingLevel,
		},
		State: State{
			ID:    id,
			Depth: depth,
			Path:  path,
			Key:   pure.NodeID,
		},
	}
	for _, child := range pure.Children {
		node.Children = append(node.Children, initNode(child, path, depth, next))
	}
	return node
}

// Fold applies the fold policy. A node with FoldRecursive folds every
// descendant; otherwise nodes at or below InitialExpandLevel are folded.
func Fold(root *Node, opts Options) {
	counter := 0
	foldNode(root, &counter, opts)
}

func foldNode(node *Node, counter *int, opts Options) {
	recursive := node.Payload.Fold == FoldRecursive
	if recursive {
		*counter++
	} else if *counter > 0 || (opts.InitialExpandLevel >= 0 && node.State.Depth >= opts.InitialExpandLevel) {
		node.Payload.Fold = FoldCollapsed
	}
	node.Payload.updateChildrenIndicator()
	for _, child := range node.Children {
		foldNode(child, counter, opts)
	}
	if recursive {
		*counter--
	}
}

// ApplyLoadMode projects node and its descendants for one load mode.
func ApplyLoadMode(node *Node, mode LoadMode) {
	switch mode {
	case LoadLazy:
		pruneToDepth(node, 0, 1)
	case LoadOutline:
		applyOutline(node)
	default:
		markChildren(node, true)
		for _, child := range node.Children {
			ApplyLoadMode(child, LoadFull)
		}
	}
}

func markChildren(node *Node, loaded bool) {
	count := len(node.Children)
	node.Payload.HasChildren = boolPtr(count > 0)
	node.Payload.ChildrenCount = count
	node.Payload.ChildrenLoaded = boolPtr(loaded)
	node.Payload.updateChildrenIndicator()
}

// pruneToDepth keeps maxDepth levels below node. The last kept level keeps
// its child counts but loses its children.
func pruneToDepth(node *Node, depth, maxDepth int) {
	if depth+1 >= maxDepth {
		for _, child := range node.Children {
			markChildren(child, false)
			child.Children = []*Node{}
		}
		markChildren(node, true)
		return
	}
	for _, child := range node.Children {
		pruneToDepth(child, depth+1, maxDepth)
	}
	markChildren(node, true)
}

// applyOutline keeps only heading nodes below node, lifting the headings
// found under dropped nodes. Child counts keep their pre-outline values.
func applyOutline(node *Node) {
	counts := make(map[string]int)
	collectCounts(node, counts)

	node.Children = extractHeadings(node.Children)
	updateOutlineState(node, counts)

	parentPath := ""
	if i := strings.LastIndex(node.Payload.Path, "."); i >= 0 {
		parentPath = node.Payload.Path[:i]
	}
	depth := node.State.Depth
	if depth < 1 {
		depth = 1
	}
	updateDepthPath(node, parentPath, depth)
}

func collectCounts(node *Node, counts map[string]int) {
	counts[node.Payload.NodeID] = len(node.Children)
	for _, child := range node.Children {
		collectCounts(child, counts)
	}
}

func extractHeadings(nodes []*Node) []*Node {
	out := []*Node{}
	for _, node := range nodes {
		children := extractHeadings(node.Children)
		if node.Payload.HeadingLevel > 0 {
			node.Children = children
			out = append(out, node)
			continue
		}
		out = append(out, children...)
	}
	return out
}

func updateOutlineState(node *Node, counts map[string]int) {
	count := counts[node.Payload.NodeID]
	hasHeadings := len(node.Children) > 0
	node.Payload.HasChildren = boolPtr(count > 0)
	node.Payload.ChildrenCount = count
	node.Payload.ChildrenLoaded = boolPtr(count == 0 || hasHeadings)
	if count > 0 && !hasHeadings {
		node.Payload.Fold = FoldCollapsed
	}
	node.Payload.ShowChildrenIndicator = boolPtr(count > 0 && !hasHeadings)
	for _, child := range node.Children {
		updateOutlineState(child, counts)
	}
}

func updateDepthPath(node *Node, parentPath string, depth int) {
	path := strconv.Itoa(node.State.ID)
	if parentPath != "" {
		path = parentPath + "." + path
	}
	node.State.Depth = depth
	node.State.Path = path
	node.Payload.Path = path
	for _, child := range node.Children {
		updateDepthPath(child, path, depth+1)
	}
}
