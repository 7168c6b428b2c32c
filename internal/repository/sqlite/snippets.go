package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snipspace/internal/model"
)

const snippetColumns = `id, owner_id, path, name, data, public, created_at, updated_at`

func (q *queries) CreateSnippet(ctx context.Context, s *model.Snippet) error {
	if s.ID == "" {
		s.ID = xid.New().String()
	}

	_, err := q.q.ExecContext(ctx,
		`INSERT INTO snippets (`+snippetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.OwnerID,
		s.Path,
		s.Name,
		s.Data,
		s.Public,
		toNanos(s.CreatedAt),
		toNanos(s.UpdatedAt),
	)
	if err != nil {
		return translate(fmt.Sprintf("creating snippet %q", s.Path), err)
	}
	return nil
}

// GetSnippet returns apperror.ErrNotFound if no snippet has that id.
func (q *queries) GetSnippet(ctx context.Context, id string) (*model.Snippet, error) {
	var (
		s                model.Snippet
		created, updated int64
	)
	err := q.q.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`, id,
	).Scan(&s.ID, &s.OwnerID, &s.Path, &s.Name, &s.Data, &s.Public, &created, &updated)
	if err != nil {
		return nil, notFound(err, "snippet", id, "getting snippet "+id)
	}
	s.CreatedAt = fromNanos(created)
	s.UpdatedAt = fromNanos(updated)
	return &s, nil
}

// ListSnippetSummaries skips the data column so listings never load content.
func (q *queries) ListSnippetSummaries(ctx context.Context, ownerID string) ([]model.SnippetSummary, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT id, owner_id, path, name, public, created_at, updated_at
		 FROM snippets WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, translate("listing snippets", err)
	}
	defer rows.Close()

	var out []model.SnippetSummary
	for rows.Next() {
		var (
			s                model.SnippetSummary
			created, updated int64
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Path, &s.Name, &s.Public, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		s.CreatedAt = fromNanos(created)
		s.UpdatedAt = fromNanos(updated)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterating snippets", err)
	}
	return out, nil
}

func (q *queries) ListSnippets(ctx context.Context, ownerID string) ([]model.Snippet, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, translate("listing snippets", err)
	}
	defer rows.Close()

	var out []model.Snippet
	for rows.Next() {
		var (
			s                model.Snippet
			created, updated int64
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Path, &s.Name, &s.Data, &s.Public, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		s.CreatedAt = fromNanos(created)
		s.UpdatedAt = fromNanos(updated)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterating snippets", err)
	}
	return out, nil
}

func (q *queries) UpdateSnippet(ctx context.Context, s *model.Snippet) (int, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE snippets
		 SET name = ?, path = ?, data = ?, public = ?, updated_at = ?
		 WHERE id = ?`,
		s.Name, s.Path, s.Data, s.Public, toNanos(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return 0, translate("updating snippet "+s.ID, err)
	}
	return rowsAffected("updating snippet", res)
}

func (q *queries) UpdateSnippetPath(ctx context.Context, id, path string, updatedAt time.Time) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE snippets SET path = ?, updated_at = ? WHERE id = ?`,
		path, toNanos(updatedAt), id,
	)
	if err != nil {
		return translate("rewriting path of snippet "+id, err)
	}
	return nil
}

// DeleteSnippet fails while annotations still reference the snippet.
func (q *queries) DeleteSnippet(ctx context.Context, id string) (int, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return 0, translate("deleting snippet "+id, err)
	}
	return rowsAffected("deleting snippet", res)
}
