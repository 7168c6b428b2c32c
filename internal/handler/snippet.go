package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/auth"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/service"
)

// SnippetHandler serves snippet CRUD.
//
// Reads by id are open to anyone when the snippet is public; private
// snippets are visible to their owner only and look missing to everybody
// else. Writes are owner-only.
type SnippetHandler struct {
	snippets *service.SnippetService
}

func NewSnippetHandler(snippets *service.SnippetService) *SnippetHandler {
	return &SnippetHandler{snippets: snippets}
}

// HandleList lists the caller's snippets under a folder (the whole tree
// when folder is empty), depth-first in name order. Summaries by default;
// full=1 includes each snippet's content.
//
// HTTP: GET /api/snippets?folder=docs&full=1
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	full, err := parseFlag(q.Get("full"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("full", err.Error()))
		return
	}

	var list any
	if full {
		list, err = h.snippets.ListFullByFolder(r.Context(), userID, q.Get("folder"))
	} else {
		list, err = h.snippets.ListByFolder(r.Context(), userID, q.Get("folder"))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// parseFlag reads an optional boolean query parameter; empty is false.
func parseFlag(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%q is not a boolean", v)
	}
	return b, nil
}

// HandleCreate stores a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY: {"path": "docs", "name": "a.txt", "data": "hello"}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Path string `json:"path"`
		Name string `json:"name"`
		Data string `json:"data"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), userID, req.Path, req.Name, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleGetByPath returns one of the caller's snippets by namespace path.
//
// HTTP: GET /api/snippets/by-path?path=docs/a.txt
func (h *SnippetHandler) HandleGetByPath(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.GetByPath(r.Context(), userID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleGet returns a snippet by id.
//
// HTTP: GET /api/snippets/{id}
// Auth: optional
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := readable(r.Context(), h.snippets, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleUpdate patches a snippet. Renaming moves it within its folder.
//
// HTTP: PATCH /api/snippets/{id}
// REQUEST BODY: {"name": "b.txt", "data": "...", "public": false}
// RESPONSE: {"matchedCount": 1}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch model.SnippetPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}
	if patch.IsEmpty() {
		writeError(w, apperror.ValidationFailed("body", "nothing to update"))
		return
	}

	if err := h.authorizeWrite(r, id); err != nil {
		if isMissing(err) {
			writeJSON(w, http.StatusOK, model.UpdateResult{})
			return
		}
		writeError(w, err)
		return
	}

	res, err := h.snippets.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDelete removes a snippet and its annotations. Deleting a snippet
// that does not exist returns {"deletedCount": 0}.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.authorizeWrite(r, id); err != nil {
		if isMissing(err) {
			writeJSON(w, http.StatusOK, model.DeleteResult{})
			return
		}
		writeError(w, err)
		return
	}

	res, err := h.snippets.Remove(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// authorizeWrite checks that the caller owns snippet id.
func (h *SnippetHandler) authorizeWrite(r *http.Request, id string) error {
	userID, err := callerID(r)
	if err != nil {
		return err
	}
	snippet, err := readable(r.Context(), h.snippets, id)
	if err != nil {
		return err
	}
	if snippet.OwnerID != userID {
		return apperror.Forbidden("only the owner can change this snippet")
	}
	return nil
}

// readable fetches snippet id if the caller in ctx may see it. A private
// snippet of someone else is reported as not found.
func readable(ctx context.Context, snippets *service.SnippetService, id string) (*model.Snippet, error) {
	snippet, err := snippets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snippet.Public {
		return snippet, nil
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok && userID == snippet.OwnerID {
		return snippet, nil
	}
	return nil, apperror.NotFound("snippet", id)
}

// isMissing covers ids that do not exist and snippets hidden from the caller.
func isMissing(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
