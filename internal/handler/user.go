package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/auth"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/service"
)

// UserHandler serves signup, login and the caller's own account.
//
//   - HandleSignup  → POST   /api/users
//   - HandleLogin   → POST   /api/sessions
//   - HandleLogout  → DELETE /api/sessions
//   - HandleMe      → GET    /api/me
//   - HandleUpdate  → PATCH  /api/me
//   - HandleDelete  → DELETE /api/me
type UserHandler struct {
	auth   *service.AuthService
	users  *service.UserService
	tokens *auth.TokenService
	secure bool
	logger *zap.Logger
}

// NewUserHandler creates a UserHandler. secure marks the session cookie
// Secure and should be true whenever the server sits behind HTTPS.
func NewUserHandler(authSvc *service.AuthService, users *service.UserService, tokens *auth.TokenService, secure bool, logger *zap.Logger) *UserHandler {
	return &UserHandler{auth: authSvc, users: users, tokens: tokens, secure: secure, logger: logger}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignup creates an account with its root folder and logs it in.
//
// HTTP: POST /api/users
// REQUEST BODY: {"email": "a@example.com", "password": "..."}
// RESPONSE: 201 {"user": {...}, "token": "<jwt>"}
func (h *UserHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusCreated, res)
}

// HandleLogin exchanges credentials for a token.
//
// HTTP: POST /api/sessions
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the session cookie. Tokens are stateless, so one held
// elsewhere stays valid until it expires.
//
// HTTP: DELETE /api/sessions
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setSession(w, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the caller's profile, including their namespace root id.
//
// HTTP: GET /api/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate patches the caller's profile.
//
// HTTP: PATCH /api/me
// REQUEST BODY: {"bio": "..."}
// RESPONSE: {"matchedCount": 1}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var patch model.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.Update(r.Context(), userID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDelete removes the caller's account with every folder, snippet and
// annotation on those snippets, then clears the session cookie.
//
// HTTP: DELETE /api/me
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.users.Remove(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("account deleted", zap.String("userId", userID))
	h.setSession(w, "")
	writeJSON(w, http.StatusOK, res)
}

// setSession stores token in the session cookie; an empty token deletes it.
func (h *UserHandler) setSession(w http.ResponseWriter, token string) {
	maxAge := int(h.tokens.TTL().Seconds())
	if token == "" {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
