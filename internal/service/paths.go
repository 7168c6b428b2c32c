package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/repository"
)

const (
	MaxNameLength = 255
	MaxDataLength = 1 << 20 // 1 MiB of snippet content
	MaxDepth      = 64
	pathSeparator = "/"
)

// splitPath turns "docs/notes" into ["docs", "notes"]. Leading and trailing
// separators are ignored; "" and "/" both denote the root and yield nil.
func splitPath(p string) ([]string, error) {
	p = strings.Trim(strings.TrimSpace(p), pathSeparator)
	if p == "" {
		return nil, nil
	}
	segs := strings.Split(p, pathSeparator)
	if len(segs) > MaxDepth {
		return nil, apperror.ValidationFailed("path", fmt.Sprintf("path is deeper than %d levels", MaxDepth))
	}
	for _, s := range segs {
		if s == "" {
			return nil, apperror.ValidationFailed("path", fmt.Sprintf("path %q contains an empty segment", p))
		}
		if s == "." || s == ".." {
			return nil, apperror.ValidationFailed("path", fmt.Sprintf("path %q contains a relative segment", p))
		}
	}
	return segs, nil
}

func joinPath(segs ...string) string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, pathSeparator)
}

// dirOf returns the folder part of a snippet path: "docs/a.txt" → "docs".
func dirOf(p string) string {
	if i := strings.LastIndex(p, pathSeparator); i >= 0 {
		return p[:i]
	}
	return ""
}

func validateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", apperror.ValidationFailed(field, "name is required")
	case strings.Contains(name, pathSeparator):
		return "", apperror.ValidationFailed(field, fmt.Sprintf("name %q must not contain %q", name, pathSeparator))
	case name == "." || name == "..":
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%q is not a valid name", name))
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", apperror.ValidationFailed(field, fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}
	return name, nil
}

// resolveTx walks segs from the user's root one child lookup at a time.
// A missing segment, or one that descends through a snippet, is NotFound.
func resolveTx(ctx context.Context, tx repository.Tx, userID string, segs []string) (*model.Node, error) {
	node, err := tx.GetRoot(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, seg := range segs {
		if !node.IsFolder() {
			return nil, apperror.PathNotFound("node", joinPath(segs[:i+1]...))
		}
		node, err = tx.GetChild(ctx, node.ID, seg)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.PathNotFound("node", joinPath(segs[:i+1]...))
			}
			return nil, err
		}
	}
	node.Path = joinPath(segs...)
	return node, nil
}

// ensureFree fails with a conflict when parentID already has a child named name.
func ensureFree(ctx context.Context, tx repository.Tx, parentID, parentPath, name string) error {
	_, err := tx.GetChild(ctx, parentID, name)
	switch {
	case err == nil:
		return apperror.NameTaken(name, parentPath)
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	default:
		return err
	}
}
