package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/service"
)

// AnnotationHandler serves annotations. Anyone who can see a snippet can
// read and add annotations on it. Only the author edits an annotation; the
// author or the snippet owner may delete it.
type AnnotationHandler struct {
	annotations *service.AnnotationService
	snippets    *service.SnippetService
}

func NewAnnotationHandler(annotations *service.AnnotationService, snippets *service.SnippetService) *AnnotationHandler {
	return &AnnotationHandler{annotations: annotations, snippets: snippets}
}

// HandleListBySnippet returns a snippet's annotations ordered by start.
//
// HTTP: GET /api/snippets/{id}/annotations
// Auth: optional
func (h *AnnotationHandler) HandleListBySnippet(w http.ResponseWriter, r *http.Request) {
	snippet, err := readable(r.Context(), h.snippets, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.annotations.GetBySnippet(r.Context(), snippet.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate anchors a new annotation to [start, end) of the snippet.
//
// HTTP: POST /api/snippets/{id}/annotations
// REQUEST BODY: {"data": "typo here", "start": 4, "end": 9}
func (h *AnnotationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Data  string `json:"data"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	snippet, err := readable(r.Context(), h.snippets, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	a, err := h.annotations.Create(r.Context(), snippet.ID, userID, req.Data, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleRemoveBySnippet deletes every annotation on a snippet the caller
// owns.
//
// HTTP: DELETE /api/snippets/{id}/annotations
func (h *AnnotationHandler) HandleRemoveBySnippet(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snippet, err := readable(r.Context(), h.snippets, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if snippet.OwnerID != userID {
		writeError(w, apperror.Forbidden("only the snippet owner can clear its annotations"))
		return
	}

	res, err := h.annotations.RemoveBySnippet(r.Context(), snippet.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAnchors reports annotations that no longer fit the snippet's
// current content.
//
// HTTP: GET /api/snippets/{id}/anchors
// Auth: optional
func (h *AnnotationHandler) HandleAnchors(w http.ResponseWriter, r *http.Request) {
	snippet, err := readable(r.Context(), h.snippets, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	stale, err := h.annotations.ValidateAnchors(r.Context(), snippet.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stale)
}

// HandleGet returns one annotation.
//
// HTTP: GET /api/annotations/{id}
// Auth: optional
func (h *AnnotationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, _, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleUpdate patches an annotation the caller wrote.
//
// HTTP: PATCH /api/annotations/{id}
// REQUEST BODY: {"data": "...", "start": 0, "end": 3}
func (h *AnnotationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var patch model.AnnotationPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	a, _, err := h.load(r)
	if err != nil {
		if isMissing(err) {
			writeJSON(w, http.StatusOK, model.UpdateResult{})
			return
		}
		writeError(w, err)
		return
	}
	if a.CreatedBy != userID {
		writeError(w, apperror.Forbidden("only the author can change this annotation"))
		return
	}

	res, err := h.annotations.Update(r.Context(), a.ID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDelete removes an annotation. Removing one that does not exist
// returns {"deletedCount": 0}.
//
// HTTP: DELETE /api/annotations/{id}
func (h *AnnotationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	a, snippet, err := h.load(r)
	if err != nil {
		if isMissing(err) {
			writeJSON(w, http.StatusOK, model.DeleteResult{})
			return
		}
		writeError(w, err)
		return
	}
	if a.CreatedBy != userID && snippet.OwnerID != userID {
		writeError(w, apperror.Forbidden("only the author or the snippet owner can remove this annotation"))
		return
	}

	res, err := h.annotations.Remove(r.Context(), a.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// load fetches the annotation named in the URL together with its snippet,
// hiding both when the snippet is not visible to the caller.
func (h *AnnotationHandler) load(r *http.Request) (*model.Annotation, *model.Snippet, error) {
	a, err := h.annotations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, nil, err
	}
	snippet, err := readable(r.Context(), h.snippets, a.SnippetID)
	if isMissing(err) {
		return nil, nil, apperror.NotFound("annotation", a.ID)
	}
	if err != nil {
		return nil, nil, err
	}
	return a, snippet, nil
}
