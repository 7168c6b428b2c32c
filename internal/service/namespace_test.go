package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
)

func TestNamespace_DocsScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")

	docs := env.folder(t, u.ID, "", "docs")
	assert.Equal(t, "docs", docs.Path)

	s := env.snippet(t, u.ID, "docs", "a.txt", "hello world")
	assert.Equal(t, "docs/a.txt", s.Path)
	assert.Equal(t, u.ID, s.OwnerID)

	got, err := env.engine.Snippets.GetByPath(ctx, u.ID, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	a := env.annotate(t, s.ID, u.ID, 0, 5)
	env.requireConsistent(t, u.ID)

	res, err := env.engine.Namespaces.RemoveFolder(ctx, u.ID, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, res.DeletedCount)

	res, err = env.engine.Namespaces.RemoveFolder(ctx, u.ID, "docs")
	require.NoError(t, err, "removing a removed folder is not an error")
	assert.Equal(t, 0, res.DeletedCount)

	_, err = env.engine.Namespaces.Resolve(ctx, u.ID, "docs")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.engine.Snippets.Get(ctx, s.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.engine.Annotations.Get(ctx, a.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	children, err := env.engine.Namespaces.List(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Empty(t, children)
	env.requireConsistent(t, u.ID)
}

func TestNamespace_RootIsCreatedWithUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	require.NotEmpty(t, u.Namespace)

	root, err := env.engine.Namespaces.Resolve(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, u.Namespace, root.ID)
	assert.True(t, root.IsRoot())

	again, err := env.engine.Namespaces.CreateRoot(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, again.ID, "CreateRoot must not create a second root")

	_, err = env.engine.Namespaces.CreateRoot(ctx, "no-such-user")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestNamespace_RootIsProtected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "docs")

	_, err := env.engine.Namespaces.RemoveFolder(ctx, u.ID, "")
	assert.ErrorIs(t, err, apperror.ErrProtected)
	_, err = env.engine.Namespaces.RemoveFolder(ctx, u.ID, "/")
	assert.ErrorIs(t, err, apperror.ErrProtected)
	_, err = env.engine.Namespaces.Move(ctx, u.ID, "", "docs")
	assert.ErrorIs(t, err, apperror.ErrProtected)
	_, err = env.engine.Namespaces.RenameFolder(ctx, u.ID, "", "home")
	assert.ErrorIs(t, err, apperror.ErrProtected)

	env.requireConsistent(t, u.ID)
}

func TestNamespace_SiblingNamesAreUnique(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "docs")
	env.snippet(t, u.ID, "", "a.txt", "x")

	_, err := env.engine.Namespaces.CreateFolder(ctx, u.ID, "", "docs")
	assert.ErrorIs(t, err, apperror.ErrConflict)
	_, err = env.engine.Namespaces.CreateFolder(ctx, u.ID, "", "a.txt")
	assert.ErrorIs(t, err, apperror.ErrConflict, "folders and snippets share one name space")
	_, err = env.engine.Snippets.Create(ctx, u.ID, "", "docs", "x")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// Same name under a different parent, or for another user, is fine.
	env.folder(t, u.ID, "docs", "docs")
	other := env.user(t, "bob@example.com")
	env.folder(t, other.ID, "", "docs")
}

func TestNamespace_CreateFolderValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.snippet(t, u.ID, "", "a.txt", "x")

	tests := []struct {
		name    string
		parent  string
		folder  string
		wantErr error
	}{
		{"empty name", "", "  ", apperror.ErrValidation},
		{"slash in name", "", "a/b", apperror.ErrValidation},
		{"dot name", "", "..", apperror.ErrValidation},
		{"relative parent", "../x", "docs", apperror.ErrValidation},
		{"missing parent", "nope", "docs", apperror.ErrNotFound},
		{"parent is a snippet", "a.txt", "docs", apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Namespaces.CreateFolder(ctx, u.ID, tt.parent, tt.folder)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNamespace_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "zeta")
	env.folder(t, u.ID, "", "alpha")
	env.snippet(t, u.ID, "", "middle.go", "package main")

	children, err := env.engine.Namespaces.List(ctx, u.ID, "/")
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "alpha", children[0].Name)
	assert.Equal(t, "middle.go", children[1].Name)
	assert.Equal(t, model.KindSnippet, children[1].Kind)
	assert.Equal(t, "middle.go", children[1].Path)
	assert.Equal(t, "zeta", children[2].Name)

	_, err = env.engine.Namespaces.List(ctx, u.ID, "middle.go")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = env.engine.Namespaces.List(ctx, u.ID, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestNamespace_RemoveFolderEdgeCases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "docs")
	env.snippet(t, u.ID, "docs", "a.txt", "x")

	res, err := env.engine.Namespaces.RemoveFolder(ctx, u.ID, "docs/missing")
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedCount)

	_, err = env.engine.Namespaces.RemoveFolder(ctx, u.ID, "nope/missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = env.engine.Namespaces.RemoveFolder(ctx, u.ID, "docs/a.txt")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	env.requireConsistent(t, u.ID)
}

func TestNamespace_RemoveFolderCascadesDeep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "a")
	env.folder(t, u.ID, "a", "b")
	env.folder(t, u.ID, "a/b", "c")
	s1 := env.snippet(t, u.ID, "a", "one", "first snippet")
	s2 := env.snippet(t, u.ID, "a/b/c", "two", "second snippet")
	keep := env.snippet(t, u.ID, "", "keep", "untouched")
	env.annotate(t, s1.ID, u.ID, 0, 5)
	env.annotate(t, s2.ID, u.ID, 0, 6)
	env.annotate(t, s2.ID, u.ID, 1, 2)
	kept := env.annotate(t, keep.ID, u.ID, 0, 1)

	res, err := env.engine.Namespaces.RemoveFolder(ctx, u.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, 5, res.DeletedCount) // a, b, c, one, two

	for _, id := range []string{s1.ID, s2.ID} {
		_, err := env.engine.Snippets.Get(ctx, id)
		assert.ErrorIs(t, err, apperror.ErrNotFound)
		list, err := env.engine.Annotations.GetBySnippet(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, list)
	}

	_, err = env.engine.Annotations.Get(ctx, kept.ID)
	assert.NoError(t, err)
	summaries, err := env.engine.Snippets.ListByOwner(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "keep", summaries[0].Path)

	env.requireConsistent(t, u.ID)
}

func TestNamespace_MoveRewritesSnippetPaths(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "src")
	env.folder(t, u.ID, "src", "lib")
	env.folder(t, u.ID, "", "archive")
	s := env.snippet(t, u.ID, "src/lib", "util.go", "package lib")
	before, err := env.engine.Snippets.Get(ctx, s.ID)
	require.NoError(t, err)

	moved, err := env.engine.Namespaces.Move(ctx, u.ID, "src/lib", "archive")
	require.NoError(t, err)
	assert.Equal(t, "archive/lib", moved.Path)

	after, err := env.engine.Snippets.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "archive/lib/util.go", after.Path)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	_, err = env.engine.Snippets.GetByPath(ctx, u.ID, "src/lib/util.go")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	env.requireConsistent(t, u.ID)

	// A single snippet can move too.
	moved, err = env.engine.Namespaces.Move(ctx, u.ID, "archive/lib/util.go", "src")
	require.NoError(t, err)
	assert.Equal(t, "src/util.go", moved.Path)
	env.requireConsistent(t, u.ID)
}

func TestNamespace_MoveRejectsCyclesAndCollisions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "a")
	env.folder(t, u.ID, "a", "b")
	env.folder(t, u.ID, "", "x")
	env.folder(t, u.ID, "x", "b")
	env.snippet(t, u.ID, "", "file", "x")

	_, err := env.engine.Namespaces.Move(ctx, u.ID, "a", "a/b")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = env.engine.Namespaces.Move(ctx, u.ID, "a", "a")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = env.engine.Namespaces.Move(ctx, u.ID, "x/b", "a")
	assert.ErrorIs(t, err, apperror.ErrConflict)
	_, err = env.engine.Namespaces.Move(ctx, u.ID, "a", "file")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = env.engine.Namespaces.Move(ctx, u.ID, "missing", "x")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	same, err := env.engine.Namespaces.Move(ctx, u.ID, "a/b", "a")
	require.NoError(t, err)
	assert.Equal(t, "a/b", same.Path)

	env.requireConsistent(t, u.ID)
}

func TestNamespace_RenameFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "docs")
	env.folder(t, u.ID, "docs", "deep")
	env.folder(t, u.ID, "", "taken")
	s1 := env.snippet(t, u.ID, "docs", "a.txt", "x")
	s2 := env.snippet(t, u.ID, "docs/deep", "b.txt", "y")

	renamed, err := env.engine.Namespaces.RenameFolder(ctx, u.ID, "docs", "notes")
	require.NoError(t, err)
	assert.Equal(t, "notes", renamed.Path)

	got, err := env.engine.Snippets.Get(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes/a.txt", got.Path)
	got, err = env.engine.Snippets.Get(ctx, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes/deep/b.txt", got.Path)

	_, err = env.engine.Namespaces.RenameFolder(ctx, u.ID, "notes", "taken")
	assert.ErrorIs(t, err, apperror.ErrConflict)
	_, err = env.engine.Namespaces.RenameFolder(ctx, u.ID, "notes/a.txt", "c.txt")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = env.engine.Namespaces.RenameFolder(ctx, u.ID, "notes", "a/b")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	env.requireConsistent(t, u.ID)
}

func TestNamespace_TreesAreIsolatedPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ada := env.user(t, "ada@example.com")
	bob := env.user(t, "bob@example.com")
	env.folder(t, ada.ID, "", "private")

	_, err := env.engine.Namespaces.Resolve(ctx, bob.ID, "private")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.engine.Snippets.Create(ctx, bob.ID, "private", "x", "y")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestVerify_ReportsInjectedDamage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.user(t, "ada@example.com")
	env.folder(t, u.ID, "", "docs")
	s := env.snippet(t, u.ID, "docs", "a.txt", "x")

	// Corrupt the stored path behind the services' back.
	require.NoError(t, env.db.UpdateSnippetPath(ctx, s.ID, "elsewhere/a.txt", s.UpdatedAt))

	report, err := env.engine.Namespaces.Verify(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, model.PathMismatch, report[0].Kind)
	assert.Equal(t, s.ID, report[0].SnippetID)

	// Dropping the reference node leaves an orphan.
	ref, err := env.db.GetNodeBySnippet(ctx, s.ID)
	require.NoError(t, err)
	_, err = env.db.DeleteNodes(ctx, []string{ref.ID})
	require.NoError(t, err)

	report, err = env.engine.Namespaces.Verify(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, model.OrphanSnippet, report[0].Kind)

	report, err = env.engine.Namespaces.Verify(ctx, "nobody")
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, model.MissingRoot, report[0].Kind)
}
