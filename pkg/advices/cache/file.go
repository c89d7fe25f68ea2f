package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/serialization"
)

// FileStore keeps results as files at <dir>/<task-id>/<execution-id>.
type FileStore struct {
	BasePath   string
	serializer serialization.Serializer
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithSerializer sets the format of the result files. Defaults to JSON.
func WithSerializer(s serialization.Serializer) FileOption {
	return func(f *FileStore) {
		f.serializer = s
	}
}

// NewFileStore creates a store in basePath.
// If basePath is empty, it defaults to ".bandsaw/cache".
func NewFileStore(basePath string, opts ...FileOption) *FileStore {
	if basePath == "" {
		basePath = filepath.Join(".bandsaw", "cache")
	}
	f := &FileStore{BasePath: basePath, serializer: serialization.NewJSON()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the location of the entry for taskID and executionID.
func (f *FileStore) Path(taskID, executionID string) string {
	return filepath.Join(f.BasePath, url.PathEscape(taskID), url.PathEscape(executionID))
}

func (f *FileStore) Load(_ context.Context, taskID, executionID string) (*domain.Result, error) {
	file, err := os.Open(f.Path(taskID, executionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open cache entry: %w", err)
	}
	defer file.Close()

	var result domain.Result
	if err := f.serializer.Deserialize(file, &result); err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &result, nil
}

// Store writes the entry atomically: the data goes to a synced temp file in
// the same directory which is then hard-linked to its final name. Linking
// fails when the entry exists, so an entry is never overwritten.
func (f *FileStore) Store(_ context.Context, taskID, executionID string, result *domain.Result) (bool, error) {
	if taskID == "" || executionID == "" {
		return false, fmt.Errorf("task id and execution id cannot be empty")
	}
	destPath := f.Path(taskID, executionID)
	if _, err := os.Stat(destPath); err == nil {
		return false, nil
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to ensure cache directory: %w", err)
	}

	var buf bytes.Buffer
	if err := f.serializer.Serialize(&buf, result); err != nil {
		return false, fmt.Errorf("failed to marshal result: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(buf.Bytes()); err != nil {
		return false, fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return false, fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return false, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Link(tmpPath, destPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to publish cache entry: %w", err)
	}
	return true, nil
}

func (f *FileStore) Delete(_ context.Context, taskID, executionID string) error {
	err := os.Remove(f.Path(taskID, executionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}
