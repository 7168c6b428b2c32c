// Package repository declares the storage contracts the services depend on.
//
// Services never see SQL. They receive a Store, run compound mutations through
// WithTx and consistent multi-table reads through View, and talk to the
// per-entity repositories through the Tx handed to the callback.
package repository

import (
	"context"
	"time"

	"github.com/sakif/snipspace/internal/model"
)

type UserRepository interface {
	// CreateUser inserts u, assigning an id when u.ID is empty. A duplicate
	// email is reported as apperror.ErrConflict.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUser writes the mutable profile fields of u and returns the
	// number of rows matched.
	UpdateUser(ctx context.Context, u *model.User) (int, error)
	DeleteUser(ctx context.Context, id string) (int, error)
}

// NodeRepository stores namespace tree nodes. Node.Path is never stored; the
// repository returns it empty and the service fills it from the tree.
type NodeRepository interface {
	CreateNode(ctx context.Context, n *model.Node) error
	GetNode(ctx context.Context, id string) (*model.Node, error)
	GetRoot(ctx context.Context, userID string) (*model.Node, error)
	GetChild(ctx context.Context, parentID, name string) (*model.Node, error)
	GetNodeBySnippet(ctx context.Context, snippetID string) (*model.Node, error)
	// ListChildren returns the direct children of parentID sorted by name.
	ListChildren(ctx context.Context, parentID string) ([]model.Node, error)
	// ListNodes returns every node owned by userID, root included.
	ListNodes(ctx context.Context, userID string) ([]model.Node, error)
	// UpdateNode writes ParentID, Name and UpdatedAt of n.
	UpdateNode(ctx context.Context, n *model.Node) error
	// DeleteNodes removes the given nodes and returns how many existed.
	DeleteNodes(ctx context.Context, ids []string) (int, error)
}

type SnippetRepository interface {
	CreateSnippet(ctx context.Context, s *model.Snippet) error
	GetSnippet(ctx context.Context, id string) (*model.Snippet, error)
	// ListSnippetSummaries returns every snippet owned by ownerID, content
	// omitted, in no particular order.
	ListSnippetSummaries(ctx context.Context, ownerID string) ([]model.SnippetSummary, error)
	// ListSnippets is ListSnippetSummaries with the content included.
	ListSnippets(ctx context.Context, ownerID string) ([]model.Snippet, error)
	// UpdateSnippet writes Name, Path, Data, Public and UpdatedAt of s and
	// returns the number of rows matched.
	UpdateSnippet(ctx context.Context, s *model.Snippet) (int, error)
	UpdateSnippetPath(ctx context.Context, id, path string, updatedAt time.Time) error
	DeleteSnippet(ctx context.Context, id string) (int, error)
}

type AnnotationRepository interface {
	CreateAnnotation(ctx context.Context, a *model.Annotation) error
	GetAnnotation(ctx context.Context, id string) (*model.Annotation, error)
	// ListAnnotationsBySnippet orders by start, then creation time, then id.
	ListAnnotationsBySnippet(ctx context.Context, snippetID string) ([]model.Annotation, error)
	UpdateAnnotation(ctx context.Context, a *model.Annotation) (int, error)
	DeleteAnnotation(ctx context.Context, id string) (int, error)
	DeleteAnnotationsBySnippet(ctx context.Context, snippetID string) (int, error)
}

// Tx is the set of repositories bound to one storage transaction.
type Tx interface {
	UserRepository
	NodeRepository
	SnippetRepository
	AnnotationRepository
}

// Store is a Tx that runs outside any transaction and can open new ones.
//
// WithTx commits when fn returns nil and rolls back otherwise; the error from
// fn is returned unchanged. View runs fn in a read-only transaction so that
// reads spanning several tables see one snapshot.
//
// fn must use only the Tx it is given. Calling the Store from inside fn can
// deadlock when the pool holds a single connection.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
