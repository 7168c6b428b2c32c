package model

// UpdateResult reports how many records an update matched. Updating a missing
// id is not an error; it matches nothing.
type UpdateResult struct {
	MatchedCount int `json:"matchedCount"`
}

// DeleteResult reports how many records a removal deleted. Removing something
// twice yields zero the second time.
type DeleteResult struct {
	DeletedCount int `json:"deletedCount"`
}

// InconsistencyKind names a broken link between a namespace tree and the
// snippet store.
type InconsistencyKind string

const (
	// A snippet node references a snippet that does not exist.
	DanglingReference InconsistencyKind = "dangling_reference"
	// A snippet node references a snippet owned by someone else.
	ForeignOwner InconsistencyKind = "foreign_owner"
	// A snippet's stored path differs from its position in the tree.
	PathMismatch InconsistencyKind = "path_mismatch"
	// A snippet exists that no node references.
	OrphanSnippet InconsistencyKind = "orphan_snippet"
	// A node cannot be reached from the user's root.
	UnreachableNode InconsistencyKind = "unreachable_node"
	// The user has no root folder.
	MissingRoot InconsistencyKind = "missing_root"
)

type Inconsistency struct {
	Kind      InconsistencyKind `json:"kind"`
	NodeID    string            `json:"nodeId,omitempty"`
	SnippetID string            `json:"snippetId,omitempty"`
	Detail    string            `json:"detail"`
}
