package service

import (
	"context"
	"sort"

	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/repository"
)

// tree is an in-memory arena of one user's nodes, loaded inside a
// transaction for operations that touch a whole subtree.
//
// Nodes refer to their parent by id; children are indexed separately and
// kept sorted by name. All traversals use an explicit stack, so a deep
// hierarchy cannot overflow the goroutine stack.
type tree struct {
	root     *model.Node
	nodes    map[string]*model.Node
	children map[string][]*model.Node
}

// loadTree reads every node of userID. A user without a root is NotFound.
func loadTree(ctx context.Context, tx repository.Tx, userID string) (*tree, error) {
	root, err := tx.GetRoot(ctx, userID)
	if err != nil {
		return nil, err
	}
	nodes, err := tx.ListNodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return buildTree(root.ID, nodes), nil
}

func buildTree(rootID string, nodes []model.Node) *tree {
	t := &tree{
		nodes:    make(map[string]*model.Node, len(nodes)),
		children: make(map[string][]*model.Node),
	}
	for i := range nodes {
		n := &nodes[i]
		t.nodes[n.ID] = n
		if n.ID == rootID {
			t.root = n
		}
		if n.ParentID != "" {
			t.children[n.ParentID] = append(t.children[n.ParentID], n)
		}
	}
	for id := range t.children {
		t.sortChildren(id)
	}
	return t
}

func (t *tree) sortChildren(parentID string) {
	kids := t.children[parentID]
	sort.Slice(kids, func(i, j int) bool { return kids[i].Name < kids[j].Name })
}

// walk visits start and its descendants depth-first, parent before
// children, siblings in name order. Returning false from fn skips the
// node's children.
func (t *tree) walk(start *model.Node, fn func(n *model.Node) bool) {
	stack := []*model.Node{start}
	seen := make(map[string]bool, len(t.nodes))
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if !fn(n) {
			continue
		}
		kids := t.children[n.ID]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}

// postOrder returns start's subtree with every node after all of its
// descendants, which is the order a cascading delete must follow.
func (t *tree) postOrder(start *model.Node) []*model.Node {
	var pre []*model.Node
	t.walk(start, func(n *model.Node) bool {
		pre = append(pre, n)
		return true
	})
	// Reversed pre-order puts every node after all of its descendants.
	out := make([]*model.Node, len(pre))
	for i, n := range pre {
		out[len(pre)-1-i] = n
	}
	return out
}

// pathOf rebuilds the "/"-joined path of n from its ancestors. ok is false
// when n is not connected to the root.
func (t *tree) pathOf(n *model.Node) (path string, ok bool) {
	if t.root == nil {
		return "", false
	}
	var segs []string
	for cur := n; ; {
		if cur.ID == t.root.ID {
			break
		}
		if len(segs) > len(t.nodes) {
			return "", false
		}
		segs = append(segs, cur.Name)
		parent, found := t.nodes[cur.ParentID]
		if !found {
			return "", false
		}
		cur = parent
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return joinPath(segs...), true
}

// contains reports whether n is ancestor itself or one of its descendants.
func (t *tree) contains(ancestor, n *model.Node) bool {
	for cur, hops := n, 0; cur != nil && hops <= len(t.nodes); hops++ {
		if cur.ID == ancestor.ID {
			return true
		}
		cur = t.nodes[cur.ParentID]
	}
	return false
}

// depth is the number of segments in n's path.
func (t *tree) depth(n *model.Node) int {
	d := 0
	for cur := n; cur != nil && cur.ParentID != "" && d <= len(t.nodes); d++ {
		cur = t.nodes[cur.ParentID]
	}
	return d
}

// height is the number of levels below n (0 for a leaf).
func (t *tree) height(n *model.Node) int {
	base := t.depth(n)
	h := 0
	t.walk(n, func(c *model.Node) bool {
		if d := t.depth(c) - base; d > h {
			h = d
		}
		return true
	})
	return h
}

// relocate moves n under parent with a new name, keeping the child index
// sorted. It only changes the in-memory arena.
func (t *tree) relocate(n, parent *model.Node, name string) {
	old := t.children[n.ParentID]
	for i, c := range old {
		if c.ID == n.ID {
			t.children[n.ParentID] = append(old[:i:i], old[i+1:]...)
			break
		}
	}
	n.ParentID = parent.ID
	n.Name = name
	t.children[parent.ID] = append(t.children[parent.ID], n)
	t.sortChildren(parent.ID)
}
