package model

import "time"

// Annotation attaches Data to the half-open range [Start, End) of a snippet's
// content. Offsets count Unicode code points, not bytes.
//
// The range is checked against the content only when the annotation is
// created. Later edits to the snippet can leave it pointing past the end;
// see StaleAnchor.
type Annotation struct {
	ID        string    `json:"id"`
	SnippetID string    `json:"snippetId"`
	CreatedBy string    `json:"createdBy"`
	Data      string    `json:"data"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AnnotationPatch struct {
	Data  *string `json:"data,omitempty"`
	Start *int    `json:"start,omitempty"`
	End   *int    `json:"end,omitempty"`
}

// StaleAnchor reports an annotation whose range no longer fits the content
// of its snippet.
type StaleAnchor struct {
	Annotation    Annotation `json:"annotation"`
	ContentLength int        `json:"contentLength"`
}
