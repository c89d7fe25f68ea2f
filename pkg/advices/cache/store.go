package cache

import (
	"context"
	"errors"

	"github.com/kant-ai/bandsaw/pkg/domain"
)

// ErrNotFound is returned by Load when no result is cached.
var ErrNotFound = errors.New("result not cached")

// Store persists task results keyed by task id and execution id.
type Store interface {
	// Load returns the cached result or ErrNotFound.
	Load(ctx context.Context, taskID, executionID string) (*domain.Result, error)
	// Store saves result unless an entry exists. It reports whether it wrote.
	Store(ctx context.Context, taskID, executionID string, result *domain.Result) (bool, error)
	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, taskID, executionID string) error
}
