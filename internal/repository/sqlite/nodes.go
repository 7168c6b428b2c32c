package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
)

const nodeColumns = `id, user_id, parent_id, name, kind, snippet_id, created_at, updated_at`

// deleteChunk bounds the number of placeholders in one DELETE ... IN (...).
// SQLite's default limit on host parameters is 32766; staying far below it
// keeps each statement small.
const deleteChunk = 500

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (q *queries) CreateNode(ctx context.Context, n *model.Node) error {
	if n.ID == "" {
		n.ID = xid.New().String()
	}

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.UserID,
		nullable(n.ParentID),
		n.Name,
		string(n.Kind),
		nullable(n.SnippetID),
		toNanos(n.CreatedAt),
		toNanos(n.UpdatedAt),
	)
	if err != nil {
		return translate(fmt.Sprintf("creating node %q", n.Name), err)
	}
	return nil
}

func (q *queries) GetNode(ctx context.Context, id string) (*model.Node, error) {
	n, err := scanNode(q.q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "node", id, "getting node "+id)
	}
	return n, nil
}

func (q *queries) GetRoot(ctx context.Context, userID string) (*model.Node, error) {
	n, err := scanNode(q.q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE user_id = ? AND parent_id IS NULL`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrNotFound,
				Message: fmt.Sprintf("root folder not found for user %s", userID),
			}
		}
		return nil, translate("getting root of "+userID, err)
	}
	return n, nil
}

func (q *queries) GetChild(ctx context.Context, parentID, name string) (*model.Node, error) {
	n, err := scanNode(q.q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ? AND name = ?`, parentID, name))
	if err != nil {
		return nil, notFound(err, "node", name, "getting child "+name)
	}
	return n, nil
}

func (q *queries) GetNodeBySnippet(ctx context.Context, snippetID string) (*model.Node, error) {
	n, err := scanNode(q.q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE snippet_id = ?`, snippetID))
	if err != nil {
		return nil, notFound(err, "node for snippet", snippetID, "getting node of snippet "+snippetID)
	}
	return n, nil
}

func (q *queries) ListChildren(ctx context.Context, parentID string) ([]model.Node, error) {
	return q.listNodes(ctx, "listing children",
		`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ? ORDER BY name`, parentID)
}

func (q *queries) ListNodes(ctx context.Context, userID string) ([]model.Node, error) {
	return q.listNodes(ctx, "listing nodes",
		`SELECT `+nodeColumns+` FROM nodes WHERE user_id = ?`, userID)
}

func (q *queries) listNodes(ctx context.Context, op, query string, args ...any) ([]model.Node, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning node row: %w", err)
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}
	return nodes, nil
}

// UpdateNode moves and/or renames n.
func (q *queries) UpdateNode(ctx context.Context, n *model.Node) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE nodes SET parent_id = ?, name = ?, updated_at = ? WHERE id = ?`,
		nullable(n.ParentID), n.Name, toNanos(n.UpdatedAt), n.ID,
	)
	if err != nil {
		return translate(fmt.Sprintf("updating node %s", n.ID), err)
	}
	affected, err := rowsAffected("updating node", res)
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperror.NotFound("node", n.ID)
	}
	return nil
}

// DeleteNodes deletes in chunks. parent_id is checked at commit, so the
// order of ids does not matter.
func (q *queries) DeleteNodes(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		res, err := q.q.ExecContext(ctx,
			`DELETE FROM nodes WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return deleted, translate("deleting nodes", err)
		}
		n, err := rowsAffected("deleting nodes", res)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

func scanNode(s scanner) (*model.Node, error) {
	var (
		n                model.Node
		parent, snippet  sql.NullString
		kind             string
		created, updated int64
	)
	if err := s.Scan(&n.ID, &n.UserID, &parent, &n.Name, &kind, &snippet, &created, &updated); err != nil {
		return nil, err
	}
	n.ParentID = parent.String
	n.SnippetID = snippet.String
	n.Kind = model.NodeKind(kind)
	n.CreatedAt = fromNanos(created)
	n.UpdatedAt = fromNanos(updated)
	return &n, nil
}

// nullable stores the empty string as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
