package remote

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/domain"
)

// Backend moves files to and from a remote and executes programs there.
// Failures are reported as *domain.TransportError.
type Backend interface {
	CopyToRemote(ctx context.Context, remote Remote, localPath, remotePath string) error
	CopyFromRemote(ctx context.Context, remote Remote, remotePath, localPath string) error
	ExecuteRemote(ctx context.Context, remote Remote, executable string, args ...string) error
}

// CommandRunner runs a local command and returns its exit status and
// captured stderr. err is only set when the command could not run at all.
type CommandRunner func(ctx context.Context, name string, args ...string) (exitCode int, stderr string, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) (int, string, error) {
	return runCommand(ctx, nil, name, args)
}

func envRunner(env []string) CommandRunner {
	return func(ctx context.Context, name string, args ...string) (int, string, error) {
		return runCommand(ctx, env, name, args)
	}
}

func runCommand(ctx context.Context, env []string, name string, args []string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stderr.String(), nil
	}
	if err != nil {
		return -1, stderr.String(), err
	}
	return 0, stderr.String(), nil
}

// CommandLineBackend uses the scp and ssh command line clients.
type CommandLineBackend struct {
	scp    string
	ssh    string
	run    CommandRunner
	logger *slog.Logger
}

// CommandLineOption configures a CommandLineBackend.
type CommandLineOption func(*CommandLineBackend)

// WithCommands sets the scp and ssh programs.
func WithCommands(scp, ssh string) CommandLineOption {
	return func(b *CommandLineBackend) {
		b.scp = scp
		b.ssh = ssh
	}
}

// WithCommandRunner replaces ExecRunner.
func WithCommandRunner(run CommandRunner) CommandLineOption {
	return func(b *CommandLineBackend) {
		b.run = run
	}
}

// WithBackendLogger configures a logger for the backend.
func WithBackendLogger(logger *slog.Logger) CommandLineOption {
	return func(b *CommandLineBackend) {
		b.logger = logger
	}
}

func NewCommandLineBackend(opts ...CommandLineOption) *CommandLineBackend {
	b := &CommandLineBackend{
		scp:    "scp",
		ssh:    "ssh",
		run:    ExecRunner,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func keyFileOption(r Remote) []string {
	if r.KeyFile == "" {
		return nil
	}
	return []string{"-i", r.KeyFile}
}

func (b *CommandLineBackend) CopyToRemote(ctx context.Context, r Remote, localPath, remotePath string) error {
	args := append([]string{"-P", strconv.Itoa(r.Port)}, keyFileOption(r)...)
	args = append(args, localPath, r.Login()+":"+remotePath)
	return b.exec(ctx, "copy", r, b.scp, args)
}

func (b *CommandLineBackend) CopyFromRemote(ctx context.Context, r Remote, remotePath, localPath string) error {
	args := append([]string{"-P", strconv.Itoa(r.Port)}, keyFileOption(r)...)
	args = append(args, r.Login()+":"+remotePath, localPath)
	return b.exec(ctx, "copy", r, b.scp, args)
}

func (b *CommandLineBackend) ExecuteRemote(ctx context.Context, r Remote, executable string, arguments ...string) error {
	args := append([]string{"-p", strconv.Itoa(r.Port)}, keyFileOption(r)...)
	args = append(args, r.Login(), executable)
	args = append(args, arguments...)
	return b.exec(ctx, "execute", r, b.ssh, args)
}

func (b *CommandLineBackend) exec(ctx context.Context, op string, r Remote, name string, args []string) error {
	b.logger.Debug("running command", "command", name, "args", strings.Join(args, " "))
	code, stderr, err := b.run(ctx, name, args...)
	if err != nil {
		return &domain.TransportError{Op: op, Host: r.Host, ExitCode: -1, Err: err}
	}
	if code != 0 {
		b.logger.Warn("command failed", "command", name, "exit_code", code, "stderr", strings.TrimSpace(stderr))
		return &domain.TransportError{Op: op, Host: r.Host, ExitCode: code}
	}
	return nil
}
