// Package cache provides an advice that reuses the results of previous
// executions. Results are keyed by task id and execution id; only successful
// results of tasks that don't disable caching (config "cache": false) are kept.
package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/session"
)

// Advice concludes sessions from the cache and stores new results.
type Advice struct {
	store  Store
	logger *slog.Logger
}

// Option configures the Advice.
type Option func(*Advice)

// WithLogger configures a logger for the Advice.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Advice) {
		a.logger = logger
	}
}

// New creates a caching advice backed by store.
func New(store Store, opts ...Option) *Advice {
	a := &Advice{
		store:  store,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Advice) Name() string { return "cache" }

// Before concludes the session with a cached result if there is one.
func (a *Advice) Before(ctx context.Context, s *session.Session) error {
	task, execution := s.Task(), s.Execution()
	if !task.CacheEnabled() {
		return s.Proceed(ctx)
	}
	result, err := a.store.Load(ctx, task.ID, execution.ID)
	if errors.Is(err, ErrNotFound) {
		a.logger.Debug("cache miss", "task", task.ID, "execution", execution.ID)
		return s.Proceed(ctx)
	}
	if err != nil {
		return err
	}
	a.logger.Info("using cached result", "task", task.ID, "execution", execution.ID)
	return s.Conclude(ctx, result)
}

// After stores a successful result. Existing entries are kept.
func (a *Advice) After(ctx context.Context, s *session.Session) error {
	task, execution, result := s.Task(), s.Execution(), s.Result()
	if task.CacheEnabled() && result.Succeeded() {
		written, err := a.store.Store(ctx, task.ID, execution.ID, result)
		if err != nil {
			return err
		}
		if written {
			a.logger.Debug("stored result", "task", task.ID, "execution", execution.ID)
		}
	}
	return s.Proceed(ctx)
}
