package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kant-ai/bandsaw/pkg/domain"
)

// LocalBackend treats the local machine as the remote. Copies are file
// copies and programs run as local child processes. It moves sessions into
// another process on the same host.
type LocalBackend struct {
	run CommandRunner
	// Env is appended to the environment of executed programs.
	Env []string
}

func NewLocalBackend(env ...string) *LocalBackend {
	return &LocalBackend{Env: env}
}

func (b *LocalBackend) CopyToRemote(_ context.Context, r Remote, localPath, remotePath string) error {
	if err := copyFile(localPath, remotePath); err != nil {
		return &domain.TransportError{Op: "copy", Host: r.Host, ExitCode: -1, Err: err}
	}
	return nil
}

func (b *LocalBackend) CopyFromRemote(_ context.Context, r Remote, remotePath, localPath string) error {
	if err := copyFile(remotePath, localPath); err != nil {
		return &domain.TransportError{Op: "copy", Host: r.Host, ExitCode: -1, Err: err}
	}
	return nil
}

func (b *LocalBackend) ExecuteRemote(ctx context.Context, r Remote, executable string, args ...string) error {
	run := b.run
	if run == nil {
		run = envRunner(b.Env)
	}
	code, stderr, err := run(ctx, executable, args...)
	if err != nil {
		return &domain.TransportError{Op: "execute", Host: r.Host, ExitCode: -1, Err: err}
	}
	if code != 0 {
		return &domain.TransportError{Op: "execute", Host: r.Host, ExitCode: code, Err: fmt.Errorf("stderr: %s", stderr)}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
