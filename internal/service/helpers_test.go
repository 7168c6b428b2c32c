package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sakif/snipspace/internal/metrics"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/repository/sqlite"
)

// stepClock returns a clock that advances one millisecond per reading, so
// createdAt and updatedAt values are distinct and ordered.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

// plainHasher stands in for bcrypt, which is too slow for table tests.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }

func (plainHasher) Verify(hash, p string) error {
	if hash != "plain:"+p {
		return errors.New("mismatch")
	}
	return nil
}

type testEnv struct {
	db      *sqlite.DB
	engine  *Engine
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	engine := NewEngine(Deps{
		Store:   db,
		Logger:  zaptest.NewLogger(t),
		Metrics: m,
		Clock:   stepClock(),
	}, plainHasher{})
	return &testEnv{db: db, engine: engine, metrics: m}
}

func (e *testEnv) user(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := e.engine.Users.Create(context.Background(), email, "correct horse")
	require.NoError(t, err)
	return u
}

func (e *testEnv) folder(t *testing.T, userID, parent, name string) *model.Node {
	t.Helper()
	n, err := e.engine.Namespaces.CreateFolder(context.Background(), userID, parent, name)
	require.NoError(t, err)
	return n
}

func (e *testEnv) snippet(t *testing.T, userID, path, name, data string) *model.Snippet {
	t.Helper()
	s, err := e.engine.Snippets.Create(context.Background(), userID, path, name, data)
	require.NoError(t, err)
	return s
}

func (e *testEnv) annotate(t *testing.T, snippetID, by string, start, end int) *model.Annotation {
	t.Helper()
	a, err := e.engine.Annotations.Create(context.Background(), snippetID, by, "note", start, end)
	require.NoError(t, err)
	return a
}

// requireConsistent fails the test when Verify reports anything for userID.
func (e *testEnv) requireConsistent(t *testing.T, userID string) {
	t.Helper()
	report, err := e.engine.Namespaces.Verify(context.Background(), userID)
	require.NoError(t, err)
	require.Empty(t, report)
}
