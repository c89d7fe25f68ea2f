// Package remote provides an advice that continues sessions on other
// machines.
//
// Before the task runs, the advice saves the session, copies the bundle and
// the snapshot to the remote, and runs the bundle there with
//
//	<bundle> --input <in> --output <out> --run-id <id>
//
// The remote process continues the chain up to the After step of the
// advice and writes the snapshot back. The advice then restores the local
// session from it and proceeds with the remaining After steps.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/session"
)

// DefaultRemote is the name AddRemote uses for the first remote.
const DefaultRemote = "default"

// Advice runs the rest of a session's chain on a remote.
type Advice struct {
	backend    Backend
	directory  string
	remoteName string
	logger     *slog.Logger

	mu            sync.Mutex
	ownsDirectory bool
	remotes       map[string]Remote
	defaultRemote string
	bundles       map[string]bool // host+directory+bundle already copied
}

// Option configures the Advice.
type Option func(*Advice)

// WithBackend replaces the default CommandLineBackend.
func WithBackend(b Backend) Option {
	return func(a *Advice) {
		a.backend = b
	}
}

// WithDirectory sets the local directory for exchanged snapshots.
// Defaults to a temporary directory created on first use and removed by Close.
func WithDirectory(dir string) Option {
	return func(a *Advice) {
		a.directory = dir
	}
}

// WithRemoteName selects the remote sessions are sent to.
func WithRemoteName(name string) Option {
	return func(a *Advice) {
		a.remoteName = name
	}
}

// WithLogger configures a logger for the Advice.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Advice) {
		a.logger = logger
	}
}

// New creates the advice. It fails if the directory given with WithDirectory
// can't be created.
func New(opts ...Option) (*Advice, error) {
	a := &Advice{
		remotes: make(map[string]Remote),
		bundles: make(map[string]bool),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.backend == nil {
		a.backend = NewCommandLineBackend(WithBackendLogger(a.logger))
	}
	if a.directory != "" {
		if err := os.MkdirAll(a.directory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create exchange directory: %w", err)
		}
	}
	return a, nil
}

// Directory returns the local exchange directory, or "" if the temporary
// one wasn't created yet.
func (a *Advice) Directory() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.directory
}

func (a *Advice) exchangeDir() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.directory == "" {
		dir, err := os.MkdirTemp("", "bandsaw-")
		if err != nil {
			return "", fmt.Errorf("failed to create exchange directory: %w", err)
		}
		a.directory = dir
		a.ownsDirectory = true
		a.logger.Info("using directory for exchange data", "directory", dir)
	}
	return a.directory, nil
}

// Close removes the temporary exchange directory. A directory set with
// WithDirectory is left alone. The advice stays usable.
func (a *Advice) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ownsDirectory {
		return nil
	}
	dir := a.directory
	a.directory = ""
	a.ownsDirectory = false
	return os.RemoveAll(dir)
}

func (a *Advice) Name() string { return "remote" }

// AddRemote registers a remote under name. The first remote, or the one
// named "default", is used unless WithRemoteName picked another.
func (a *Advice) AddRemote(name string, r Remote) (*Advice, error) {
	r, err := r.WithDefaults()
	if err != nil {
		return nil, fmt.Errorf("remote %q: %w", name, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remotes[name] = r
	if a.defaultRemote == "" || name == DefaultRemote {
		a.defaultRemote = name
	}
	return a, nil
}

func (a *Advice) remote() (Remote, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := a.remoteName
	if name == "" {
		name = a.defaultRemote
	}
	r, ok := a.remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("remote %q is not defined", name)
	}
	return r, nil
}

func (a *Advice) Before(ctx context.Context, s *session.Session) error {
	r, err := a.remote()
	if err != nil {
		return err
	}
	executionID := s.Execution().ID
	ext := s.Serializer().Extension()

	dir, err := a.exchangeDir()
	if err != nil {
		return err
	}
	inPath, err := tempPath(dir, "in-"+executionID+"-*."+ext, s)
	if err != nil {
		return err
	}
	defer os.Remove(inPath)
	outPath := filepath.Join(dir, "out-"+filepath.Base(inPath)[len("in-"):])
	defer os.Remove(outPath)

	bundle, err := a.ensureBundle(ctx, s, r)
	if err != nil {
		return err
	}

	remoteIn := path.Join(r.Directory, filepath.Base(inPath))
	remoteOut := path.Join(r.Directory, filepath.Base(outPath))
	a.logger.Info("copying session to remote", "host", r.Host, "path", remoteIn)
	if err := a.backend.CopyToRemote(ctx, r, inPath, remoteIn); err != nil {
		return err
	}

	executable, args := bundle, []string{"--input", remoteIn, "--output", remoteOut, "--run-id", s.RunID()}
	if r.Executable != "" {
		executable, args = r.Executable, append([]string{bundle}, args...)
	}
	a.logger.Info("running remote process", "host", r.Host, "executable", executable)
	if err := a.backend.ExecuteRemote(ctx, r, executable, args...); err != nil {
		return err
	}
	a.logger.Info("remote process exited", "host", r.Host)

	if err := a.backend.CopyFromRemote(ctx, r, remoteOut, outPath); err != nil {
		return err
	}
	out, err := os.Open(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	a.logger.Info("restoring local session", "path", outPath)
	if err := s.Restore(out); err != nil {
		return err
	}
	return s.Proceed(ctx)
}

// tempPath writes the session to a new file in the exchange directory.
func tempPath(dir, pattern string, s *session.Session) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create session file: %w", err)
	}
	if err := s.Save(f); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// ensureBundle copies the distribution once per remote host and directory.
func (a *Advice) ensureBundle(ctx context.Context, s *session.Session, r Remote) (string, error) {
	local, err := s.Distribution().Path()
	if err != nil {
		return "", err
	}
	remotePath := path.Join(r.Directory, filepath.Base(local))
	key := r.Login() + ":" + remotePath

	a.mu.Lock()
	copied := a.bundles[key]
	a.mu.Unlock()
	if copied {
		return remotePath, nil
	}

	a.logger.Info("copying bundle to remote", "host", r.Host, "path", remotePath)
	if err := a.backend.CopyToRemote(ctx, r, local, remotePath); err != nil {
		return "", err
	}
	a.mu.Lock()
	a.bundles[key] = true
	a.mu.Unlock()
	return remotePath, nil
}

// After runs on the remote. It ends the remote part of the chain; the local
// session continues once the snapshot is back.
func (a *Advice) After(_ context.Context, s *session.Session) error {
	a.logger.Info("remote chain returning", "pid", os.Getpid(), "succeeded", s.Result().Succeeded())
	return nil
}
