package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/snipspace/internal/model"
)

const annotationColumns = `id, snippet_id, created_by, data, start_offset, end_offset, created_at, updated_at`

func (q *queries) CreateAnnotation(ctx context.Context, a *model.Annotation) error {
	if a.ID == "" {
		a.ID = xid.New().String()
	}

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO annotations (`+annotationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.SnippetID,
		a.CreatedBy,
		a.Data,
		a.Start,
		a.End,
		toNanos(a.CreatedAt),
		toNanos(a.UpdatedAt),
	)
	if err != nil {
		return translate("creating annotation on snippet "+a.SnippetID, err)
	}
	return nil
}

func (q *queries) GetAnnotation(ctx context.Context, id string) (*model.Annotation, error) {
	a, err := scanAnnotation(q.q.QueryRowContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "annotation", id, "getting annotation "+id)
	}
	return a, nil
}

// ListAnnotationsBySnippet orders by start offset; equal starts fall back to
// creation time and then id so the order is total.
func (q *queries) ListAnnotationsBySnippet(ctx context.Context, snippetID string) ([]model.Annotation, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations
		 WHERE snippet_id = ?
		 ORDER BY start_offset, created_at, id`, snippetID)
	if err != nil {
		return nil, translate("listing annotations", err)
	}
	defer rows.Close()

	out := []model.Annotation{}
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning annotation row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterating annotations", err)
	}
	return out, nil
}

func (q *queries) UpdateAnnotation(ctx context.Context, a *model.Annotation) (int, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE annotations
		 SET data = ?, start_offset = ?, end_offset = ?, updated_at = ?
		 WHERE id = ?`,
		a.Data, a.Start, a.End, toNanos(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return 0, translate("updating annotation "+a.ID, err)
	}
	return rowsAffected("updating annotation", res)
}

func (q *queries) DeleteAnnotation(ctx context.Context, id string) (int, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return 0, translate("deleting annotation "+id, err)
	}
	return rowsAffected("deleting annotation", res)
}

func (q *queries) DeleteAnnotationsBySnippet(ctx context.Context, snippetID string) (int, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM annotations WHERE snippet_id = ?`, snippetID)
	if err != nil {
		return 0, translate("deleting annotations of snippet "+snippetID, err)
	}
	return rowsAffected("deleting annotations", res)
}

func scanAnnotation(s scanner) (*model.Annotation, error) {
	var (
		a                model.Annotation
		created, updated int64
	)
	if err := s.Scan(&a.ID, &a.SnippetID, &a.CreatedBy, &a.Data, &a.Start, &a.End, &created, &updated); err != nil {
		return nil, err
	}
	a.CreatedAt = fromNanos(created)
	a.UpdatedAt = fromNanos(updated)
	return &a, nil
}
