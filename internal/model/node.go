package model

import "time"

// NodeKind distinguishes folders from snippet references in a namespace tree.
type NodeKind string

const (
	KindFolder  NodeKind = "folder"
	KindSnippet NodeKind = "snippet"
)

// Node is one entry of a user's namespace tree.
//
// Nodes form an arena: each row points at its parent by id rather than
// embedding its children, so deep trees never need recursive ownership and
// traversals can run with an explicit stack.
//
// The root has an empty ParentID and an empty Name. SnippetID is set only on
// KindSnippet nodes. Path is computed from the tree on read and never stored.
type Node struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ParentID  string    `json:"parentId,omitempty"`
	Name      string    `json:"name"`
	Kind      NodeKind  `json:"kind"`
	SnippetID string    `json:"snippetId,omitempty"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsRoot reports whether n is the parentless root folder.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// IsFolder reports whether n can hold children.
func (n *Node) IsFolder() bool {
	return n.Kind == KindFolder
}
