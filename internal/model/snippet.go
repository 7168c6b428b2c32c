package model

import "time"

// Snippet is the canonical record of a named piece of text.
//
// Path mirrors the snippet's position in its owner's namespace tree
// ("docs/a.txt" for a snippet named "a.txt" in folder "docs"). The tree holds
// only a reference to the snippet, never a copy of Data.
type Snippet struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Data      string    `json:"data"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SnippetSummary is a Snippet without its content, used for listings.
type SnippetSummary struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary drops the content of s.
func (s *Snippet) Summary() SnippetSummary {
	return SnippetSummary{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Path:      s.Path,
		Name:      s.Name,
		Public:    s.Public,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// SnippetPatch is a partial update. Nil fields are left as they are.
type SnippetPatch struct {
	Name   *string `json:"name,omitempty"`
	Data   *string `json:"data,omitempty"`
	Public *bool   `json:"public,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SnippetPatch) IsEmpty() bool {
	return p.Name == nil && p.Data == nil && p.Public == nil
}
