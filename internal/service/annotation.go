package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/repository"
)

const MaxAnnotationDataLength = 64 << 10

// AnnotationService tracks annotations anchored to snippet content.
//
// An anchor [start, end) counts runes and is checked against the content
// only when the annotation is created. Editing the snippet afterwards does
// not move or invalidate anchors; ValidateAnchors reports the ones that no
// longer fit so a caller can decide what to do.
type AnnotationService struct {
	core
}

func NewAnnotationService(d Deps) *AnnotationService {
	return &AnnotationService{core: newCore(d)}
}

// CascadeName labels the annotation handler on the cascade bus.
const CascadeName = "annotation"

// Subscribe registers the annotation cleanup on c.
func (s *AnnotationService) Subscribe(c *Cascade) {
	c.Subscribe(CascadeName, s.onSnippetRemoved)
}

func (s *AnnotationService) onSnippetRemoved(ctx context.Context, tx repository.Tx, ev SnippetRemoved) (int, error) {
	n, err := tx.DeleteAnnotationsBySnippet(ctx, ev.SnippetID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("annotations cascaded",
			zap.String("snippetId", ev.SnippetID),
			zap.Int("count", n),
		)
	}
	return n, nil
}

// Create anchors a new annotation to [start, end) of the snippet's current
// content.
//
// ERRORS:
//   - ValidationError: negative or inverted range, end past the content,
//     or the snippet does not exist
func (s *AnnotationService) Create(ctx context.Context, snippetID, createdBy, data string, start, end int) (*model.Annotation, error) {
	if strings.TrimSpace(snippetID) == "" {
		return nil, apperror.ValidationFailed("snippetId", "snippet ID is required")
	}
	if strings.TrimSpace(createdBy) == "" {
		return nil, apperror.ValidationFailed("createdBy", "createdBy is required")
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if len(data) > MaxAnnotationDataLength {
		return nil, apperror.ValidationFailed("data",
			fmt.Sprintf("data must be %d bytes or less", MaxAnnotationDataLength))
	}

	var created *model.Annotation
	err := s.write(ctx, "annotation.create", func(ctx context.Context, tx repository.Tx) error {
		snippet, err := tx.GetSnippet(ctx, snippetID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("snippetId", fmt.Sprintf("snippet %s does not exist", snippetID))
		}
		if err != nil {
			return err
		}
		if length := utf8.RuneCountInString(snippet.Data); end > length {
			return apperror.ValidationFailed("end",
				fmt.Sprintf("end %d is past the end of the content (%d characters)", end, length))
		}

		now := s.now()
		a := &model.Annotation{
			SnippetID: snippetID,
			CreatedBy: createdBy,
			Data:      data,
			Start:     start,
			End:       end,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateAnnotation(ctx, a); err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("annotation created",
		zap.String("id", created.ID),
		zap.String("snippetId", snippetID),
	)
	return created, nil
}

func (s *AnnotationService) Get(ctx context.Context, id string) (*model.Annotation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "annotation ID is required")
	}
	a, err := s.store.GetAnnotation(ctx, id)
	return a, classify("annotation.get", err)
}

// GetBySnippet returns the snippet's annotations ordered by start, then by
// creation time. An unknown snippet has no annotations.
func (s *AnnotationService) GetBySnippet(ctx context.Context, snippetID string) ([]model.Annotation, error) {
	list, err := s.store.ListAnnotationsBySnippet(ctx, snippetID)
	if err != nil {
		return nil, classify("annotation.list", err)
	}
	return list, nil
}

// Update merges patch into the annotation and re-checks that the merged
// range is non-negative and not inverted. The range is not compared with
// the content again. A missing id yields MatchedCount 0.
func (s *AnnotationService) Update(ctx context.Context, id string, patch model.AnnotationPatch) (model.UpdateResult, error) {
	if patch.Data != nil && len(*patch.Data) > MaxAnnotationDataLength {
		return model.UpdateResult{}, apperror.ValidationFailed("data",
			fmt.Sprintf("data must be %d bytes or less", MaxAnnotationDataLength))
	}

	var result model.UpdateResult
	err := s.write(ctx, "annotation.update", func(ctx context.Context, tx repository.Tx) error {
		a, err := tx.GetAnnotation(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if patch.Data != nil {
			a.Data = *patch.Data
		}
		if patch.Start != nil {
			a.Start = *patch.Start
		}
		if patch.End != nil {
			a.End = *patch.End
		}
		if err := validateRange(a.Start, a.End); err != nil {
			return err
		}
		a.UpdatedAt = s.touch(a.UpdatedAt)

		result.MatchedCount, err = tx.UpdateAnnotation(ctx, a)
		return err
	})
	if err != nil {
		return model.UpdateResult{}, err
	}
	return result, nil
}

func (s *AnnotationService) Remove(ctx context.Context, id string) (model.DeleteResult, error) {
	var result model.DeleteResult
	err := s.write(ctx, "annotation.remove", func(ctx context.Context, tx repository.Tx) error {
		n, err := tx.DeleteAnnotation(ctx, id)
		result.DeletedCount = n
		return err
	})
	if err != nil {
		return model.DeleteResult{}, err
	}
	return result, nil
}

// RemoveBySnippet deletes every annotation on the snippet. Zero matches is
// not an error.
func (s *AnnotationService) RemoveBySnippet(ctx context.Context, snippetID string) (model.DeleteResult, error) {
	var result model.DeleteResult
	err := s.write(ctx, "annotation.remove_by_snippet", func(ctx context.Context, tx repository.Tx) error {
		n, err := tx.DeleteAnnotationsBySnippet(ctx, snippetID)
		result.DeletedCount = n
		return err
	})
	if err != nil {
		return model.DeleteResult{}, err
	}
	return result, nil
}

// ValidateAnchors reports the snippet's annotations whose end lies past the
// current content. It never changes anything.
func (s *AnnotationService) ValidateAnchors(ctx context.Context, snippetID string) ([]model.StaleAnchor, error) {
	stale := []model.StaleAnchor{}
	err := s.view(ctx, "annotation.validate_anchors", func(ctx context.Context, tx repository.Tx) error {
		snippet, err := tx.GetSnippet(ctx, snippetID)
		if err != nil {
			return err
		}
		list, err := tx.ListAnnotationsBySnippet(ctx, snippetID)
		if err != nil {
			return err
		}
		length := utf8.RuneCountInString(snippet.Data)
		for _, a := range list {
			if a.End > length {
				stale = append(stale, model.StaleAnchor{Annotation: a, ContentLength: length})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

func validateRange(start, end int) error {
	switch {
	case start < 0:
		return apperror.ValidationFailed("start", "start must not be negative")
	case end < 0:
		return apperror.ValidationFailed("end", "end must not be negative")
	case start > end:
		return apperror.ValidationFailed("start", fmt.Sprintf("start %d is after end %d", start, end))
	}
	return nil
}
