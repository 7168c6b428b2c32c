package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/repository"
)

// SnippetService owns snippet records. Every snippet also has exactly one
// reference node in its owner's namespace tree; this service creates,
// renames and deletes that node in the same transaction as the record.
type SnippetService struct {
	core
	cascade *Cascade
}

// NewSnippetService creates a SnippetService. Removals publish
// SnippetRemoved on cascade; a nil cascade publishes to nobody.
func NewSnippetService(d Deps, cascade *Cascade) *SnippetService {
	if cascade == nil {
		cascade = NewCascade()
	}
	return &SnippetService{core: newCore(d), cascade: cascade}
}

// Create stores a new snippet named name inside the folder at path.
//
// ERRORS:
//   - ValidationError: bad name, content too large, or path is not an
//     existing folder of ownerID
//   - ConflictError: the folder already has a child called name
func (s *SnippetService) Create(ctx context.Context, ownerID, path, name, data string) (*model.Snippet, error) {
	name, err := validateName("name", name)
	if err != nil {
		return nil, err
	}
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs)+1 > MaxDepth {
		return nil, apperror.ValidationFailed("path", fmt.Sprintf("path is deeper than %d levels", MaxDepth))
	}
	if len(data) > MaxDataLength {
		return nil, apperror.ValidationFailed("data",
			fmt.Sprintf("data must be %d bytes or less", MaxDataLength))
	}

	var created *model.Snippet
	err = s.mutate(ctx, "snippet.create", ownerID, func(ctx context.Context, tx repository.Tx) error {
		folderPath := joinPath(segs...)
		parent, err := resolveTx(ctx, tx, ownerID, segs)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.ValidationFailed("path", fmt.Sprintf("folder %q does not exist", folderPath))
			}
			return err
		}
		if !parent.IsFolder() {
			return apperror.ValidationFailed("path", fmt.Sprintf("%q is a snippet, not a folder", folderPath))
		}
		if err := ensureFree(ctx, tx, parent.ID, folderPath, name); err != nil {
			return err
		}

		now := s.now()
		snippet := &model.Snippet{
			OwnerID:   ownerID,
			Path:      joinPath(folderPath, name),
			Name:      name,
			Data:      data,
			Public:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateSnippet(ctx, snippet); err != nil {
			return err
		}
		ref := &model.Node{
			UserID:    ownerID,
			ParentID:  parent.ID,
			Name:      name,
			Kind:      model.KindSnippet,
			SnippetID: snippet.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateNode(ctx, ref); err != nil {
			return err
		}
		created = snippet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("snippet created",
		zap.String("id", created.ID),
		zap.String("ownerId", ownerID),
		zap.String("path", created.Path),
	)
	return created, nil
}

// Get returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) Get(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	snippet, err := s.store.GetSnippet(ctx, id)
	return snippet, classify("snippet.get", err)
}

// GetByPath resolves path in ownerID's namespace and returns the snippet the
// final node references.
func (s *SnippetService) GetByPath(ctx context.Context, ownerID, path string) (*model.Snippet, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, apperror.PathNotFound("snippet", path)
	}

	var snippet *model.Snippet
	err = s.view(ctx, "snippet.get_by_path", func(ctx context.Context, tx repository.Tx) error {
		node, err := resolveTx(ctx, tx, ownerID, segs)
		if err != nil {
			return err
		}
		if node.Kind != model.KindSnippet {
			return apperror.PathNotFound("snippet", node.Path)
		}
		snippet, err = tx.GetSnippet(ctx, node.SnippetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snippet, nil
}

// ListByOwner lists every snippet of ownerID in namespace order.
func (s *SnippetService) ListByOwner(ctx context.Context, ownerID string) ([]model.SnippetSummary, error) {
	return s.ListByFolder(ctx, ownerID, "")
}

// ListByFolder lists the snippets in the subtree rooted at path: depth-first,
// a folder's entries in name order, subfolders expanded where they sort.
// Content is left out; see ListFullByFolder.
func (s *SnippetService) ListByFolder(ctx context.Context, ownerID, path string) ([]model.SnippetSummary, error) {
	out := []model.SnippetSummary{}
	err := s.list(ctx, "snippet.list", ownerID, path, func(ctx context.Context, tx repository.Tx, order []*model.Node) error {
		summaries, err := tx.ListSnippetSummaries(ctx, ownerID)
		if err != nil {
			return err
		}
		byID := make(map[string]model.SnippetSummary, len(summaries))
		for _, sum := range summaries {
			byID[sum.ID] = sum
		}
		out = pick(s.logger, order, byID, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListFullByOwner is ListByOwner with each snippet's content.
func (s *SnippetService) ListFullByOwner(ctx context.Context, ownerID string) ([]model.Snippet, error) {
	return s.ListFullByFolder(ctx, ownerID, "")
}

// ListFullByFolder is ListByFolder with each snippet's content, in the same
// order.
func (s *SnippetService) ListFullByFolder(ctx context.Context, ownerID, path string) ([]model.Snippet, error) {
	out := []model.Snippet{}
	err := s.list(ctx, "snippet.list_full", ownerID, path, func(ctx context.Context, tx repository.Tx, order []*model.Node) error {
		snippets, err := tx.ListSnippets(ctx, ownerID)
		if err != nil {
			return err
		}
		byID := make(map[string]model.Snippet, len(snippets))
		for _, sn := range snippets {
			byID[sn.ID] = sn
		}
		out = pick(s.logger, order, byID, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// list resolves the folder at path and hands fn the snippet nodes below it
// in listing order, all within one read transaction.
func (s *SnippetService) list(ctx context.Context, op, ownerID, path string, fn func(ctx context.Context, tx repository.Tx, order []*model.Node) error) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	return s.view(ctx, op, func(ctx context.Context, tx repository.Tx) error {
		start, err := resolveTx(ctx, tx, ownerID, segs)
		if err != nil {
			return err
		}
		if !start.IsFolder() {
			return apperror.ValidationFailed("path", fmt.Sprintf("%q is a snippet, not a folder", start.Path))
		}

		t, err := loadTree(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		var order []*model.Node
		t.walk(t.nodes[start.ID], func(n *model.Node) bool {
			if n.Kind != model.KindSnippet {
				return true
			}
			order = append(order, n)
			return false
		})
		return fn(ctx, tx, order)
	})
}

// pick appends the records referenced by order to out. A node whose
// snippet is missing is logged and skipped.
func pick[T any](logger *zap.Logger, order []*model.Node, byID map[string]T, out []T) []T {
	for _, n := range order {
		rec, ok := byID[n.SnippetID]
		if !ok {
			logger.Warn("snippet node references a missing snippet",
				zap.String("nodeId", n.ID),
				zap.String("snippetId", n.SnippetID),
			)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Update applies patch to the snippet. Renaming also renames its tree node
// and rewrites its path. updatedAt always moves forward.
//
// A missing id is not an error: the result has MatchedCount 0.
func (s *SnippetService) Update(ctx context.Context, id string, patch model.SnippetPatch) (model.UpdateResult, error) {
	var newName string
	if patch.Name != nil {
		name, err := validateName("name", *patch.Name)
		if err != nil {
			return model.UpdateResult{}, err
		}
		newName = name
	}
	if patch.Data != nil && len(*patch.Data) > MaxDataLength {
		return model.UpdateResult{}, apperror.ValidationFailed("data",
			fmt.Sprintf("data must be %d bytes or less", MaxDataLength))
	}

	// The owner picks the scope. It never changes, so reading it before
	// entering the scope is safe; the record is re-read inside.
	owner, err := s.ownerOf(ctx, id)
	if err != nil || owner == "" {
		return model.UpdateResult{}, err
	}

	var result model.UpdateResult
	err = s.mutate(ctx, "snippet.update", owner, func(ctx context.Context, tx repository.Tx) error {
		cur, err := tx.GetSnippet(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if patch.Name != nil && newName != cur.Name {
			if err := s.renameInTx(ctx, tx, cur, newName); err != nil {
				return err
			}
		}
		if patch.Data != nil {
			cur.Data = *patch.Data
		}
		if patch.Public != nil {
			cur.Public = *patch.Public
		}
		cur.UpdatedAt = s.touch(cur.UpdatedAt)

		n, err := tx.UpdateSnippet(ctx, cur)
		result.MatchedCount = n
		return err
	})
	if err != nil {
		return model.UpdateResult{}, err
	}

	if result.MatchedCount > 0 {
		s.logger.Info("snippet updated", zap.String("id", id))
	}
	return result, nil
}

// renameInTx renames cur's tree node and sets cur's Name and Path. The
// caller writes cur.
func (s *SnippetService) renameInTx(ctx context.Context, tx repository.Tx, cur *model.Snippet, name string) error {
	ref, err := tx.GetNodeBySnippet(ctx, cur.ID)
	if err != nil {
		return err
	}
	folder := dirOf(cur.Path)
	if err := ensureFree(ctx, tx, ref.ParentID, folder, name); err != nil {
		return err
	}
	ref.Name = name
	ref.UpdatedAt = s.touch(ref.UpdatedAt)
	if err := tx.UpdateNode(ctx, ref); err != nil {
		return err
	}
	cur.Name = name
	cur.Path = joinPath(folder, name)
	return nil
}

// Remove deletes the snippet, its tree node and, through the cascade, every
// annotation on it. A missing id yields DeletedCount 0.
func (s *SnippetService) Remove(ctx context.Context, id string) (model.DeleteResult, error) {
	owner, err := s.ownerOf(ctx, id)
	if err != nil || owner == "" {
		return model.DeleteResult{}, err
	}

	var (
		result   model.DeleteResult
		cascaded map[string]int
	)
	err = s.mutate(ctx, "snippet.remove", owner, func(ctx context.Context, tx repository.Tx) error {
		n, counts, err := s.removeInTx(ctx, tx, id, owner)
		result.DeletedCount = n
		cascaded = counts
		return err
	})
	if err != nil {
		return model.DeleteResult{}, err
	}

	s.recordCascade(cascaded)
	if result.DeletedCount > 0 {
		s.logger.Info("snippet removed", zap.String("id", id), zap.String("ownerId", owner))
	}
	return result, nil
}

// removeInTx is the transactional removal shared by Remove, folder removal
// and account removal. Order matters:
//
//  1. publish SnippetRemoved, so dependents go first
//  2. delete the reference node
//  3. delete the record
//
// If any step fails the caller's transaction rolls back as a whole.
func (s *SnippetService) removeInTx(ctx context.Context, tx repository.Tx, snippetID, ownerID string) (int, map[string]int, error) {
	counts, err := s.cascade.publish(ctx, tx, SnippetRemoved{SnippetID: snippetID, OwnerID: ownerID})
	if err != nil {
		return 0, nil, err
	}

	ref, err := tx.GetNodeBySnippet(ctx, snippetID)
	switch {
	case err == nil:
		if _, err := tx.DeleteNodes(ctx, []string{ref.ID}); err != nil {
			return 0, nil, err
		}
	case errors.Is(err, apperror.ErrNotFound):
		s.logger.Warn("removing snippet without a tree node", zap.String("snippetId", snippetID))
	default:
		return 0, nil, err
	}

	n, err := tx.DeleteSnippet(ctx, snippetID)
	if err != nil {
		return 0, nil, err
	}
	return n, counts, nil
}

// ownerOf returns "" without error when the snippet does not exist.
func (s *SnippetService) ownerOf(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", apperror.ValidationFailed("id", "snippet ID is required")
	}
	snippet, err := s.store.GetSnippet(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", classify("snippet.lookup", err)
	}
	return snippet.OwnerID, nil
}

func (s *SnippetService) recordCascade(counts map[string]int) {
	for kind, n := range counts {
		s.metrics.AddCascadeDeleted(kind, n)
	}
}
