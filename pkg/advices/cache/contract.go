package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs a suite of tests to verify that a Store
// implementation adheres to the defined interface contract.
func RunStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	taskID := "contract-task"
	executionID := fmt.Sprintf("execution-%d", time.Now().UnixNano())

	t.Run("Load Missing", func(t *testing.T) {
		_, err := store.Load(ctx, taskID, "missing-"+executionID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Store and Load", func(t *testing.T) {
		written, err := store.Store(ctx, taskID, executionID, domain.Success("My result"))
		require.NoError(t, err)
		assert.True(t, written)

		loaded, err := store.Load(ctx, taskID, executionID)
		require.NoError(t, err)
		assert.Equal(t, "My result", loaded.Value)
		assert.True(t, loaded.Succeeded())
	})

	t.Run("No Overwrite", func(t *testing.T) {
		written, err := store.Store(ctx, taskID, executionID, domain.Success("My other result"))
		require.NoError(t, err)
		assert.False(t, written)

		loaded, err := store.Load(ctx, taskID, executionID)
		require.NoError(t, err)
		assert.Equal(t, "My result", loaded.Value)
	})

	t.Run("Structured Values", func(t *testing.T) {
		id := executionID + "-structured"
		value := map[string]any{"count": 3, "items": []any{"a", 1.5}}
		_, err := store.Store(ctx, taskID, id, domain.Success(value))
		require.NoError(t, err)

		loaded, err := store.Load(ctx, taskID, id)
		require.NoError(t, err)
		assert.Equal(t, value, loaded.Value)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, taskID, executionID))
		_, err := store.Load(ctx, taskID, executionID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, store.Delete(ctx, taskID, executionID))
	})
}
