package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sakif/snipspace/internal/repository"
)

// SnippetRemoved is published inside the transaction that deletes a snippet,
// before the snippet row itself is deleted.
type SnippetRemoved struct {
	SnippetID string
	OwnerID   string
}

// CascadeHandler reacts to a removal using the same transaction. It returns
// the number of dependent records it deleted. Any error aborts the removal.
type CascadeHandler func(ctx context.Context, tx repository.Tx, ev SnippetRemoved) (int, error)

// Cascade is a synchronous, in-transaction event bus. Handlers run in
// subscription order.
type Cascade struct {
	mu       sync.RWMutex
	handlers []namedHandler
}

type namedHandler struct {
	name string
	fn   CascadeHandler
}

func NewCascade() *Cascade {
	return &Cascade{}
}

// Subscribe registers fn under name. The name labels metrics and errors.
func (c *Cascade) Subscribe(name string, fn CascadeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, namedHandler{name: name, fn: fn})
}

// publish runs every handler and returns the deleted counts keyed by handler
// name. It stops at the first error.
func (c *Cascade) publish(ctx context.Context, tx repository.Tx, ev SnippetRemoved) (map[string]int, error) {
	c.mu.RLock()
	handlers := c.handlers
	c.mu.RUnlock()

	counts := make(map[string]int, len(handlers))
	for _, h := range handlers {
		n, err := h.fn(ctx, tx, ev)
		if err != nil {
			return nil, fmt.Errorf("cascade %s for snippet %s: %w", h.name, ev.SnippetID, err)
		}
		counts[h.name] += n
	}
	return counts, nil
}
