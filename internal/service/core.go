// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Here the business layer is a consistency engine. Every user owns a
// namespace tree (nodes) and a flat set of snippet records, and each snippet
// is reachable from both. A mutation that touches both (create, rename,
// move, remove) runs with two guards:
//
//  1. scope.Manager.Do(userID): only one compound mutation per user at a time
//  2. repository.Store.WithTx:  both halves commit together or not at all
//
// Reads that combine the two structures run in Store.View, a read-only
// transaction, so they never observe one half of a mutation.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/metrics"
	"github.com/sakif/snipspace/internal/repository"
	"github.com/sakif/snipspace/internal/scope"
)

// Deps bundles what every service needs. Logger, Metrics and Clock are
// optional.
type Deps struct {
	Store   repository.Store
	Scopes  *scope.Manager
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// core holds the shared plumbing for the services.
type core struct {
	store   repository.Store
	scopes  *scope.Manager
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

func newCore(d Deps) core {
	c := core{
		store:   d.Store,
		scopes:  d.Scopes,
		logger:  d.Logger,
		metrics: d.Metrics,
		clock:   d.Clock,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.scopes == nil {
		c.scopes = scope.New(scope.Config{}, c.logger, c.metrics)
	}
	return c
}

// now returns the current time in UTC.
func (c *core) now() time.Time {
	return c.clock().UTC()
}

// touch returns a timestamp strictly after prev, so updatedAt always moves
// forward even when the clock is coarse or has stepped backwards.
func (c *core) touch(prev time.Time) time.Time {
	now := c.now()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

// mutate runs fn inside userID's scope and a write transaction.
func (c *core) mutate(ctx context.Context, op, userID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	err := c.scopes.Do(ctx, userID, func(ctx context.Context) error {
		return c.store.WithTx(ctx, func(tx repository.Tx) error {
			return fn(ctx, tx)
		})
	})
	err = classify(op, err)
	c.finish(op, userID, err)
	return err
}

// write runs fn in a write transaction without taking a user scope. It is for
// single-structure mutations such as annotation edits.
func (c *core) write(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	err := c.store.WithTx(ctx, func(tx repository.Tx) error {
		return fn(ctx, tx)
	})
	err = classify(op, err)
	c.finish(op, "", err)
	return err
}

// view runs fn in a read-only transaction.
func (c *core) view(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	err := c.store.View(ctx, func(tx repository.Tx) error {
		return fn(ctx, tx)
	})
	return classify(op, err)
}

func (c *core) finish(op, userID string, err error) {
	c.metrics.ObserveMutation(op, err)
	if err == nil || isExpected(err) {
		return
	}
	c.logger.Error("mutation failed",
		zap.String("op", op),
		zap.String("userId", userID),
		zap.Error(err),
	)
}

// classify turns scope and deadline failures into apperror.ErrTransient.
// Errors that already carry a category pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, scope.ErrAcquireTimeout) ||
		errors.Is(err, scope.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return apperror.Transient(op, err)
	}
	return err
}

// isExpected reports whether err is a caller mistake rather than a failure
// worth an error log.
func isExpected(err error) bool {
	return errors.Is(err, apperror.ErrValidation) ||
		errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrConflict) ||
		errors.Is(err, apperror.ErrProtected) ||
		errors.Is(err, apperror.ErrUnauthorized) ||
		errors.Is(err, apperror.ErrForbidden)
}
