package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/repository"
)

// NamespaceService owns each user's folder tree.
//
// Snippet reference nodes are never created or deleted here directly; they
// come and go with their snippet through SnippetService. Folder removal and
// moves that reach snippet nodes go through the same transactional helpers.
type NamespaceService struct {
	core
	snippets *SnippetService
}

func NewNamespaceService(d Deps, snippets *SnippetService) *NamespaceService {
	return &NamespaceService{core: newCore(d), snippets: snippets}
}

// CreateRoot creates userID's root folder. If it already exists the
// existing root is returned.
func (s *NamespaceService) CreateRoot(ctx context.Context, userID string) (*model.Node, error) {
	var root *model.Node
	err := s.mutate(ctx, "namespace.create_root", userID, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		var err error
		root, err = s.createRootTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (s *NamespaceService) createRootTx(ctx context.Context, tx repository.Tx, userID string) (*model.Node, error) {
	root, err := tx.GetRoot(ctx, userID)
	if err == nil {
		return root, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	root = &model.Node{
		UserID:    userID,
		Kind:      model.KindFolder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.CreateNode(ctx, root); err != nil {
		return nil, err
	}
	return root, nil
}

// CreateFolder creates folder name under parentPath.
func (s *NamespaceService) CreateFolder(ctx context.Context, userID, parentPath, name string) (*model.Node, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}
	segs, err := splitPath(parentPath)
	if err != nil {
		return nil, err
	}
	if len(segs)+1 > MaxDepth {
		return nil, apperror.ValidationFailed("parentPath", fmt.Sprintf("path is deeper than %d levels", MaxDepth))
	}

	var folder *model.Node
	err = s.mutate(ctx, "folder.create", userID, func(ctx context.Context, tx repository.Tx) error {
		parent, err := resolveTx(ctx, tx, userID, segs)
		if err != nil {
			return err
		}
		if !parent.IsFolder() {
			return apperror.ValidationFailed("parentPath", fmt.Sprintf("%q is a snippet, not a folder", parent.Path))
		}
		if err := ensureFree(ctx, tx, parent.ID, parent.Path, name); err != nil {
			return err
		}

		now := s.now()
		folder = &model.Node{
			UserID:    userID,
			ParentID:  parent.ID,
			Name:      name,
			Kind:      model.KindFolder,
			Path:      joinPath(parent.Path, name),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.CreateNode(ctx, folder)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder created", zap.String("userId", userID), zap.String("path", folder.Path))
	return folder, nil
}

// Resolve walks path from the root. "" resolves to the root itself.
func (s *NamespaceService) Resolve(ctx context.Context, userID, path string) (*model.Node, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var node *model.Node
	err = s.view(ctx, "namespace.resolve", func(ctx context.Context, tx repository.Tx) error {
		node, err = resolveTx(ctx, tx, userID, segs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// List returns the direct children of the folder at path, sorted by name.
func (s *NamespaceService) List(ctx context.Context, userID, path string) ([]model.Node, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var children []model.Node
	err = s.view(ctx, "namespace.list", func(ctx context.Context, tx repository.Tx) error {
		folder, err := resolveTx(ctx, tx, userID, segs)
		if err != nil {
			return err
		}
		if !folder.IsFolder() {
			return apperror.ValidationFailed("path", fmt.Sprintf("%q is a snippet, not a folder", folder.Path))
		}
		children, err = tx.ListChildren(ctx, folder.ID)
		if err != nil {
			return err
		}
		for i := range children {
			children[i].Path = joinPath(folder.Path, children[i].Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if children == nil {
		children = []model.Node{}
	}
	return children, nil
}

// RemoveFolder removes the folder at path and everything below it. Each
// snippet in the subtree is removed through SnippetService, so its
// annotations go too. DeletedCount is the number of nodes removed.
//
//   - the root → ProtectedError
//   - the parent of path does not resolve → NotFound
//   - the parent exists but has no such child → DeletedCount 0
//   - path names a snippet → ValidationError
func (s *NamespaceService) RemoveFolder(ctx context.Context, userID, path string) (model.DeleteResult, error) {
	segs, err := splitPath(path)
	if err != nil {
		return model.DeleteResult{}, err
	}
	if len(segs) == 0 {
		return model.DeleteResult{}, apperror.Protected("the root folder cannot be removed")
	}

	var (
		result   model.DeleteResult
		cascaded = map[string]int{}
	)
	err = s.mutate(ctx, "folder.remove", userID, func(ctx context.Context, tx repository.Tx) error {
		parent, err := resolveTx(ctx, tx, userID, segs[:len(segs)-1])
		if err != nil {
			return err
		}
		if !parent.IsFolder() {
			return apperror.PathNotFound("folder", joinPath(segs...))
		}
		target, err := tx.GetChild(ctx, parent.ID, segs[len(segs)-1])
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !target.IsFolder() {
			return apperror.ValidationFailed("path",
				fmt.Sprintf("%q is a snippet; remove it through the snippet store", joinPath(segs...)))
		}

		t, err := loadTree(ctx, tx, userID)
		if err != nil {
			return err
		}

		var folders []string
		order := t.postOrder(t.nodes[target.ID])
		for _, n := range order {
			if n.Kind != model.KindSnippet {
				folders = append(folders, n.ID)
				continue
			}
			_, counts, err := s.snippets.removeInTx(ctx, tx, n.SnippetID, userID)
			if err != nil {
				return err
			}
			for kind, c := range counts {
				cascaded[kind] += c
			}
			cascaded["snippet"]++
		}
		if _, err := tx.DeleteNodes(ctx, folders); err != nil {
			return err
		}
		result.DeletedCount = len(order)
		return nil
	})
	if err != nil {
		return model.DeleteResult{}, err
	}

	s.snippets.recordCascade(cascaded)
	if result.DeletedCount > 0 {
		s.logger.Info("folder removed",
			zap.String("userId", userID),
			zap.String("path", joinPath(segs...)),
			zap.Int("nodes", result.DeletedCount),
		)
	}
	return result, nil
}

// Move relocates the node at fromPath (folder or snippet) into the folder
// at toParentPath, keeping its name. Every snippet in the moved subtree gets
// its path rewritten in the same transaction.
func (s *NamespaceService) Move(ctx context.Context, userID, fromPath, toParentPath string) (*model.Node, error) {
	from, err := splitPath(fromPath)
	if err != nil {
		return nil, err
	}
	if len(from) == 0 {
		return nil, apperror.Protected("the root folder cannot be moved")
	}
	to, err := splitPath(toParentPath)
	if err != nil {
		return nil, err
	}

	var moved *model.Node
	err = s.mutate(ctx, "folder.move", userID, func(ctx context.Context, tx repository.Tx) error {
		node, err := resolveTx(ctx, tx, userID, from)
		if err != nil {
			return err
		}
		dest, err := resolveTx(ctx, tx, userID, to)
		if err != nil {
			return err
		}
		if !dest.IsFolder() {
			return apperror.ValidationFailed("toParent", fmt.Sprintf("destination %q is not a folder", dest.Path))
		}
		if dest.ID == node.ParentID {
			moved = node
			return nil
		}

		t, err := loadTree(ctx, tx, userID)
		if err != nil {
			return err
		}
		tn, td := t.nodes[node.ID], t.nodes[dest.ID]
		if t.contains(tn, td) {
			return apperror.ValidationFailed("toParent",
				fmt.Sprintf("cannot move %q into itself", node.Path))
		}
		if t.depth(td)+1+t.height(tn) > MaxDepth {
			return apperror.ValidationFailed("toParent", fmt.Sprintf("move would nest deeper than %d levels", MaxDepth))
		}
		if err := ensureFree(ctx, tx, dest.ID, dest.Path, node.Name); err != nil {
			return err
		}

		moved, err = s.relocateTx(ctx, tx, t, tn, td, tn.Name)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node moved",
		zap.String("userId", userID),
		zap.String("from", joinPath(from...)),
		zap.String("to", moved.Path),
	)
	return moved, nil
}

// RenameFolder renames the folder at path. Snippet paths below it are
// rewritten in the same transaction. Snippets are renamed through
// SnippetService.Update.
func (s *NamespaceService) RenameFolder(ctx context.Context, userID, path, newName string) (*model.Node, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, apperror.Protected("the root folder cannot be renamed")
	}
	newName, err = validateName("name", newName)
	if err != nil {
		return nil, err
	}

	var renamed *model.Node
	err = s.mutate(ctx, "folder.rename", userID, func(ctx context.Context, tx repository.Tx) error {
		node, err := resolveTx(ctx, tx, userID, segs)
		if err != nil {
			return err
		}
		if !node.IsFolder() {
			return apperror.ValidationFailed("path",
				fmt.Sprintf("%q is a snippet; rename it through the snippet store", node.Path))
		}
		if node.Name == newName {
			renamed = node
			return nil
		}
		parentPath := joinPath(segs[:len(segs)-1]...)
		if err := ensureFree(ctx, tx, node.ParentID, parentPath, newName); err != nil {
			return err
		}

		t, err := loadTree(ctx, tx, userID)
		if err != nil {
			return err
		}
		tn := t.nodes[node.ID]
		renamed, err = s.relocateTx(ctx, tx, t, tn, t.nodes[tn.ParentID], newName)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder renamed", zap.String("userId", userID), zap.String("path", renamed.Path))
	return renamed, nil
}

// relocateTx writes n under parent as name, then rewrites the path of every
// snippet below n from the updated arena.
func (s *NamespaceService) relocateTx(ctx context.Context, tx repository.Tx, t *tree, n, parent *model.Node, name string) (*model.Node, error) {
	t.relocate(n, parent, name)
	n.UpdatedAt = s.touch(n.UpdatedAt)
	if err := tx.UpdateNode(ctx, n); err != nil {
		return nil, err
	}

	summaries, err := tx.ListSnippetSummaries(ctx, n.UserID)
	if err != nil {
		return nil, err
	}
	prev := make(map[string]model.SnippetSummary, len(summaries))
	for _, sum := range summaries {
		prev[sum.ID] = sum
	}

	var rewriteErr error
	t.walk(n, func(c *model.Node) bool {
		if c.Kind != model.KindSnippet {
			return true
		}
		p, ok := t.pathOf(c)
		if !ok {
			rewriteErr = fmt.Errorf("node %s is detached from the root", c.ID)
			return false
		}
		if err := tx.UpdateSnippetPath(ctx, c.SnippetID, p, s.touch(prev[c.SnippetID].UpdatedAt)); err != nil {
			rewriteErr = err
		}
		return false
	})
	if rewriteErr != nil {
		return nil, rewriteErr
	}

	out := *n
	out.Path, _ = t.pathOf(n)
	return &out, nil
}

// Verify checks the reference integrity between userID's tree and snippet
// store without changing anything. An empty report means consistent.
func (s *NamespaceService) Verify(ctx context.Context, userID string) ([]model.Inconsistency, error) {
	report := []model.Inconsistency{}
	err := s.view(ctx, "namespace.verify", func(ctx context.Context, tx repository.Tx) error {
		nodes, err := tx.ListNodes(ctx, userID)
		if err != nil {
			return err
		}
		summaries, err := tx.ListSnippetSummaries(ctx, userID)
		if err != nil {
			return err
		}

		rootID := ""
		for _, n := range nodes {
			if n.ParentID == "" {
				rootID = n.ID
			}
		}
		if rootID == "" {
			report = append(report, model.Inconsistency{
				Kind:   model.MissingRoot,
				Detail: fmt.Sprintf("user %s has no root folder", userID),
			})
			return nil
		}

		t := buildTree(rootID, nodes)
		owned := make(map[string]model.SnippetSummary, len(summaries))
		for _, sum := range summaries {
			owned[sum.ID] = sum
		}

		referenced := make(map[string]bool, len(nodes))
		for _, n := range nodes {
			if n.Kind == model.KindSnippet {
				referenced[n.SnippetID] = true
			}
		}

		reached := make(map[string]bool, len(nodes))
		var checkErr error
		t.walk(t.root, func(n *model.Node) bool {
			reached[n.ID] = true
			if n.Kind != model.KindSnippet {
				return true
			}
			issue, err := s.checkReference(ctx, tx, t, n, owned)
			if err != nil {
				checkErr = err
				return false
			}
			if issue != nil {
				report = append(report, *issue)
			}
			return false
		})
		if checkErr != nil {
			return checkErr
		}

		for _, n := range nodes {
			if !reached[n.ID] {
				report = append(report, model.Inconsistency{
					Kind:   model.UnreachableNode,
					NodeID: n.ID,
					Detail: fmt.Sprintf("node %q cannot be reached from the root", n.Name),
				})
			}
		}

		orphans := make([]model.SnippetSummary, 0)
		for _, sum := range summaries {
			if !referenced[sum.ID] {
				orphans = append(orphans, sum)
			}
		}
		sort.Slice(orphans, func(i, j int) bool { return orphans[i].Path < orphans[j].Path })
		for _, sum := range orphans {
			report = append(report, model.Inconsistency{
				Kind:      model.OrphanSnippet,
				SnippetID: sum.ID,
				Detail:    fmt.Sprintf("snippet %q has no tree node", sum.Path),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(report) > 0 {
		s.logger.Warn("namespace inconsistencies found",
			zap.String("userId", userID),
			zap.Int("count", len(report)),
		)
	}
	return report, nil
}

func (s *NamespaceService) checkReference(ctx context.Context, tx repository.Tx, t *tree, n *model.Node, owned map[string]model.SnippetSummary) (*model.Inconsistency, error) {
	want, _ := t.pathOf(n)
	sum, ok := owned[n.SnippetID]
	if !ok {
		other, err := tx.GetSnippet(ctx, n.SnippetID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			return &model.Inconsistency{
				Kind: model.DanglingReference, NodeID: n.ID, SnippetID: n.SnippetID,
				Detail: fmt.Sprintf("node %q references a missing snippet", want),
			}, nil
		case err != nil:
			return nil, err
		default:
			return &model.Inconsistency{
				Kind: model.ForeignOwner, NodeID: n.ID, SnippetID: n.SnippetID,
				Detail: fmt.Sprintf("node %q references a snippet owned by %s", want, other.OwnerID),
			}, nil
		}
	}
	if sum.Path != want {
		return &model.Inconsistency{
			Kind: model.PathMismatch, NodeID: n.ID, SnippetID: n.SnippetID,
			Detail: fmt.Sprintf("snippet path %q does not match tree position %q", sum.Path, want),
		}, nil
	}
	return nil, nil
}
