package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/session"
)

// Options of a single continuation.
type Options struct {
	Input  string
	Output string
	RunID  string
	Holder *run.Holder
	Logger *slog.Logger
}

// Continue restores the session from opts.Input, proceeds it and saves the
// result to opts.Output.
func Continue(ctx context.Context, opts Options) error {
	if opts.Input == "" || opts.Output == "" {
		return errors.New("input and output are required")
	}
	holder := opts.Holder
	if holder == nil {
		holder = run.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.RunID != "" {
		if err := holder.SetID(opts.RunID); err != nil && holder.ID() != opts.RunID {
			return err
		}
	}

	in, err := os.Open(opts.Input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	s := session.Empty(session.WithRunHolder(holder), session.WithLogger(logger))
	logger.Info("restoring session", "input", opts.Input)
	if err := s.Restore(in); err != nil {
		return err
	}
	logger.Info("proceeding session", "task", s.Task().Name, "execution", s.Execution().ID, "pid", os.Getpid())
	if err := s.Proceed(ctx); err != nil {
		return err
	}
	return save(s, opts.Output)
}

// save writes the snapshot next to its destination and renames it, so a
// reader never sees a partial file.
func save(s *session.Session, output string) error {
	dir := filepath.Dir(output)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-"+filepath.Base(output)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := s.Save(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
