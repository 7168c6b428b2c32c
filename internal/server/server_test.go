package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sakif/snipspace/internal/auth"
	"github.com/sakif/snipspace/internal/metrics"
	"github.com/sakif/snipspace/internal/repository/sqlite"
	"github.com/sakif/snipspace/internal/service"
)

const testSecret = "a-test-secret-of-enough-length"

type testClient struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T, health func(context.Context) error) *testClient {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zaptest.NewLogger(t)
	m := metrics.New()
	engine := service.NewEngine(service.Deps{Store: db, Logger: logger, Metrics: m}, auth.NewPasswordService(4))
	tokens, err := auth.NewTokenService(testSecret, 0)
	require.NoError(t, err)

	if health == nil {
		health = db.Ping
	}
	srv := New(Config{Port: 0}, Deps{
		Engine:  engine,
		Tokens:  tokens,
		Metrics: m,
		Logger:  logger,
		Health:  health,
	})
	return &testClient{t: t, handler: srv.Handler()}
}

// do sends body as JSON (unless nil) and decodes the response into out
// (unless nil). It returns the recorder for header checks.
func (c *testClient) do(method, path, token string, body, out any) *httptest.ResponseRecorder {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(rr.Body.Bytes(), out), "body: %s", rr.Body.String())
	}
	return rr
}

type session struct {
	User struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		Namespace string `json:"namespace"`
	} `json:"user"`
	Token string `json:"token"`
}

func (c *testClient) signup(email string) session {
	c.t.Helper()
	var s session
	rr := c.do(http.MethodPost, "/api/users", "", map[string]string{"email": email, "password": "correct horse"}, &s)
	require.Equal(c.t, http.StatusCreated, rr.Code, rr.Body.String())
	return s
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type snippetBody struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Path    string `json:"path"`
	Data    string `json:"data"`
	Public  bool   `json:"public"`
}

func TestHealthz(t *testing.T) {
	c := newTestServer(t, nil)
	rr := c.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	down := newTestServer(t, func(context.Context) error { return errors.New("database is locked") })
	rr = down.do(http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	c := newTestServer(t, nil)
	c.signup("ada@example.com")

	rr := c.do(http.MethodGet, "/metrics", "", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "snipspace_mutations_total")
}

func TestSignupLoginAndMe(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("Ada@Example.com")
	assert.Equal(t, "ada@example.com", s.User.Email)
	assert.NotEmpty(t, s.User.Namespace)
	assert.NotEmpty(t, s.Token)

	var e errorBody
	rr := c.do(http.MethodPost, "/api/users", "", map[string]string{"email": "ada@example.com", "password": "correct horse"}, &e)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "email", e.Field)

	var login session
	rr = c.do(http.MethodPost, "/api/sessions", "", map[string]string{"email": "ada@example.com", "password": "correct horse"}, &login)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, s.User.ID, login.User.ID)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rr = c.do(http.MethodPost, "/api/sessions", "", map[string]string{"email": "ada@example.com", "password": "wrong horse"}, &e)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var me session
	rr = c.do(http.MethodGet, "/api/me", login.Token, nil, &me.User)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, s.User.Namespace, me.User.Namespace)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = c.do(http.MethodGet, "/api/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = c.do(http.MethodGet, "/api/me", "not-a-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCookieAuthentication(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: s.Token})
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTreeAndSnippetLifecycle(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")
	tok := s.Token

	rr := c.do(http.MethodPost, "/api/folders", tok, map[string]string{"parentPath": "", "name": "docs"}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var snip snippetBody
	rr = c.do(http.MethodPost, "/api/snippets", tok, map[string]string{"path": "docs", "name": "a.txt", "data": "hello world"}, &snip)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "docs/a.txt", snip.Path)

	var byPath snippetBody
	rr = c.do(http.MethodGet, "/api/snippets/by-path?path=docs/a.txt", tok, nil, &byPath)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, snip.ID, byPath.ID)

	var children []map[string]any
	rr = c.do(http.MethodGet, "/api/tree?path=docs", tok, nil, &children)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, children, 1)
	assert.Equal(t, "snippet", children[0]["kind"])

	var ann map[string]any
	rr = c.do(http.MethodPost, "/api/snippets/"+snip.ID+"/annotations", tok, map[string]any{"data": "greeting", "start": 0, "end": 5}, &ann)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var e errorBody
	rr = c.do(http.MethodPost, "/api/snippets/"+snip.ID+"/annotations", tok, map[string]any{"data": "x", "start": 0, "end": 50}, &e)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "end", e.Field)

	rr = c.do(http.MethodPost, "/api/folders/rename", tok, map[string]string{"path": "docs", "name": "notes"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = c.do(http.MethodGet, "/api/snippets/"+snip.ID, tok, nil, &byPath)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "notes/a.txt", byPath.Path)

	var report []map[string]any
	rr = c.do(http.MethodGet, "/api/tree/verify", tok, nil, &report)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, report)

	var del struct {
		DeletedCount int `json:"deletedCount"`
	}
	rr = c.do(http.MethodDelete, "/api/folders?path=notes", tok, nil, &del)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, del.DeletedCount)

	rr = c.do(http.MethodGet, "/api/snippets/"+snip.ID, tok, nil, &e)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = c.do(http.MethodGet, "/api/annotations/"+ann["id"].(string), tok, nil, &e)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRootFolderIsProtected(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")

	var e errorBody
	rr := c.do(http.MethodDelete, "/api/folders?path=", s.Token, nil, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "protected", e.Error)
}

func TestMissingIDsReturnZeroCounts(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")

	var upd struct {
		MatchedCount int `json:"matchedCount"`
	}
	rr := c.do(http.MethodPatch, "/api/snippets/missing", s.Token, map[string]string{"data": "x"}, &upd)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, upd.MatchedCount)

	var del struct {
		DeletedCount int `json:"deletedCount"`
	}
	rr = c.do(http.MethodDelete, "/api/snippets/missing", s.Token, nil, &del)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, del.DeletedCount)

	rr = c.do(http.MethodDelete, "/api/annotations/missing", s.Token, nil, &del)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, del.DeletedCount)

	var e errorBody
	rr = c.do(http.MethodPatch, "/api/snippets/missing", s.Token, map[string]string{}, &e)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "an empty patch is rejected")
}

func TestSnippetVisibilityAndOwnership(t *testing.T) {
	c := newTestServer(t, nil)
	ada := c.signup("ada@example.com")
	bob := c.signup("bob@example.com")

	var snip snippetBody
	rr := c.do(http.MethodPost, "/api/snippets", ada.Token, map[string]string{"path": "", "name": "a.txt", "data": "hello"}, &snip)
	require.Equal(t, http.StatusCreated, rr.Code)

	// Public by default: anyone can read and annotate.
	rr = c.do(http.MethodGet, "/api/snippets/"+snip.ID, "", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	var ann map[string]any
	rr = c.do(http.MethodPost, "/api/snippets/"+snip.ID+"/annotations", bob.Token, map[string]any{"data": "nice", "start": 0, "end": 1}, &ann)
	require.Equal(t, http.StatusCreated, rr.Code)

	// Only the owner writes.
	rr = c.do(http.MethodPatch, "/api/snippets/"+snip.ID, bob.Token, map[string]string{"data": "mine now"}, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = c.do(http.MethodDelete, "/api/snippets/"+snip.ID, bob.Token, nil, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = c.do(http.MethodDelete, "/api/snippets/"+snip.ID+"/annotations", bob.Token, nil, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Only the author edits an annotation; the snippet owner may delete it.
	annPath := "/api/annotations/" + ann["id"].(string)
	rr = c.do(http.MethodPatch, annPath, ada.Token, map[string]string{"data": "edited"}, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = c.do(http.MethodPatch, annPath, bob.Token, map[string]string{"data": "edited"}, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Going private hides the snippet and its annotations from everyone else.
	rr = c.do(http.MethodPatch, "/api/snippets/"+snip.ID, ada.Token, map[string]bool{"public": false}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = c.do(http.MethodGet, "/api/snippets/"+snip.ID, bob.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = c.do(http.MethodGet, "/api/snippets/"+snip.ID, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = c.do(http.MethodGet, annPath, bob.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = c.do(http.MethodGet, "/api/snippets/"+snip.ID, ada.Token, nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var del struct {
		DeletedCount int `json:"deletedCount"`
	}
	rr = c.do(http.MethodDelete, annPath, ada.Token, nil, &del)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, del.DeletedCount)
}

func TestAnchorsEndpoint(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")

	var snip snippetBody
	c.do(http.MethodPost, "/api/snippets", s.Token, map[string]string{"path": "", "name": "a.txt", "data": "0123456789"}, &snip)
	rr := c.do(http.MethodPost, "/api/snippets/"+snip.ID+"/annotations", s.Token, map[string]any{"data": "tail", "start": 6, "end": 10}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = c.do(http.MethodPatch, "/api/snippets/"+snip.ID, s.Token, map[string]string{"data": "0123"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var stale []struct {
		ContentLength int `json:"contentLength"`
	}
	rr = c.do(http.MethodGet, "/api/snippets/"+snip.ID+"/anchors", "", nil, &stale)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, stale, 1)
	assert.Equal(t, 4, stale[0].ContentLength)
}

func TestDeleteAccount(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")
	c.do(http.MethodPost, "/api/snippets", s.Token, map[string]string{"path": "", "name": "a.txt", "data": "x"}, nil)

	var del struct {
		DeletedCount int `json:"deletedCount"`
	}
	rr := c.do(http.MethodDelete, "/api/me", s.Token, nil, &del)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, del.DeletedCount)

	rr = c.do(http.MethodGet, "/api/me", s.Token, nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnknownBodyFieldsAreRejected(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")

	var e errorBody
	rr := c.do(http.MethodPost, "/api/folders", s.Token, map[string]string{"name": "docs", "colour": "red"}, &e)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "body", e.Field)
}

func TestListSnippets(t *testing.T) {
	c := newTestServer(t, nil)
	s := c.signup("ada@example.com")
	c.do(http.MethodPost, "/api/folders", s.Token, map[string]string{"parentPath": "", "name": "docs"}, nil)
	c.do(http.MethodPost, "/api/snippets", s.Token, map[string]string{"path": "docs", "name": "a.txt", "data": "hello"}, nil)

	var summaries []map[string]any
	rr := c.do(http.MethodGet, "/api/snippets?folder=docs", s.Token, nil, &summaries)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, summaries, 1)
	assert.NotContains(t, summaries[0], "data")

	var full []snippetBody
	rr = c.do(http.MethodGet, "/api/snippets?folder=docs&full=1", s.Token, nil, &full)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, full, 1)
	assert.Equal(t, "docs/a.txt", full[0].Path)
	assert.Equal(t, "hello", full[0].Data)

	var e errorBody
	rr = c.do(http.MethodGet, "/api/snippets?full=maybe", s.Token, nil, &e)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "full", e.Field)
}
