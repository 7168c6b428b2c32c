package handler

import (
	"net/http"

	"github.com/sakif/snipspace/internal/service"
)

// FolderHandler exposes the caller's namespace tree. Every route acts on
// the authenticated user's own tree; there is no way to address another
// user's folders.
type FolderHandler struct {
	namespaces *service.NamespaceService
}

func NewFolderHandler(namespaces *service.NamespaceService) *FolderHandler {
	return &FolderHandler{namespaces: namespaces}
}

// HandleTree lists the direct children of a folder, sorted by name.
//
// HTTP: GET /api/tree?path=docs
func (h *FolderHandler) HandleTree(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	children, err := h.namespaces.List(r.Context(), userID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

// HandleResolve returns the node at a path.
//
// HTTP: GET /api/tree/node?path=docs/a.txt
func (h *FolderHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	node, err := h.namespaces.Resolve(r.Context(), userID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// HandleVerify reports broken links between the caller's tree and their
// snippets. An empty list means the two agree.
//
// HTTP: GET /api/tree/verify
func (h *FolderHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.namespaces.Verify(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleCreate creates a folder.
//
// HTTP: POST /api/folders
// REQUEST BODY: {"parentPath": "docs", "name": "drafts"}
func (h *FolderHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ParentPath string `json:"parentPath"`
		Name       string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	folder, err := h.namespaces.CreateFolder(r.Context(), userID, req.ParentPath, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// HandleRemove removes a folder and everything in it.
//
// HTTP: DELETE /api/folders?path=docs
// RESPONSE: {"deletedCount": 3}
func (h *FolderHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.namespaces.RemoveFolder(r.Context(), userID, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleMove moves a folder or snippet into another folder.
//
// HTTP: POST /api/folders/move
// REQUEST BODY: {"from": "docs/a.txt", "toParent": "archive"}
func (h *FolderHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		From     string `json:"from"`
		ToParent string `json:"toParent"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, err := h.namespaces.Move(r.Context(), userID, req.From, req.ToParent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// HandleRename renames a folder.
//
// HTTP: POST /api/folders/rename
// REQUEST BODY: {"path": "docs", "name": "notes"}
func (h *FolderHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, err := h.namespaces.RenameFolder(r.Context(), userID, req.Path, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}
