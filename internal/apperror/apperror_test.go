package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("snippet", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "PathNotFound wraps ErrNotFound",
			err:       PathNotFound("folder", "docs"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "NameTaken wraps ErrConflict",
			err:       NameTaken("a.txt", "docs"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Protected wraps ErrProtected",
			err:       Protected("root folder cannot be removed"),
			target:    ErrProtected,
			wantMatch: true,
		},
		{
			name:      "Transient wraps ErrTransient",
			err:       Transient("creating snippet", context.DeadlineExceeded),
			target:    ErrTransient,
			wantMatch: true,
		},
		{
			name:      "Transient keeps its cause reachable",
			err:       Transient("creating snippet", context.DeadlineExceeded),
			target:    context.DeadlineExceeded,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("creating folder: %w", NameTaken("docs", "")),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("snippet", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Protected does NOT match ErrForbidden",
			err:       Protected("nope"),
			target:    ErrForbidden,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("snippet", "abc123"),
			wantMessage: "snippet not found with id abc123",
		},
		{
			name:        "PathNotFound quotes the path",
			err:         PathNotFound("folder", "docs/old"),
			wantMessage: `folder not found at path "docs/old"`,
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("name", "name is required"),
			wantMessage: "name is required",
		},
		{
			name:        "NameTaken names the folder",
			err:         NameTaken("a.txt", "docs"),
			wantMessage: `"a.txt" already exists in folder "docs"`,
		},
		{
			name:        "Transient names the operation",
			err:         Transient("removing folder", errors.New("database is locked")),
			wantMessage: "removing folder: storage temporarily unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", ValidationFailed("email", "invalid email format"))

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As did not find *AppError")
	}
	if appErr.Field != "email" {
		t.Errorf("Field = %q, want %q", appErr.Field, "email")
	}
}
