package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/kant-ai/bandsaw/pkg/advices/remote"
	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

func recordingRunner(calls *[]call, exitCode int) remote.CommandRunner {
	return func(_ context.Context, name string, args ...string) (int, string, error) {
		*calls = append(*calls, call{name: name, args: args})
		return exitCode, "boom", nil
	}
}

func TestCommandLineBackend_Commands(t *testing.T) {
	var calls []call
	b := remote.NewCommandLineBackend(
		remote.WithCommandRunner(recordingRunner(&calls, 0)),
		remote.WithCommands("my-scp", "my-ssh"))
	r := remote.Remote{Host: "gpu", Port: 2222, User: "alice", KeyFile: "/keys/id", Directory: "/work"}
	ctx := context.Background()

	require.NoError(t, b.CopyToRemote(ctx, r, "local.json", "/work/in.json"))
	require.NoError(t, b.CopyFromRemote(ctx, r, "/work/out.json", "out.json"))
	require.NoError(t, b.ExecuteRemote(ctx, r, "/work/bundle", "--input", "/work/in.json"))

	assert.Equal(t, []call{
		{name: "my-scp", args: []string{"-P", "2222", "-i", "/keys/id", "local.json", "alice@gpu:/work/in.json"}},
		{name: "my-scp", args: []string{"-P", "2222", "-i", "/keys/id", "alice@gpu:/work/out.json", "out.json"}},
		{name: "my-ssh", args: []string{"-p", "2222", "-i", "/keys/id", "alice@gpu", "/work/bundle", "--input", "/work/in.json"}},
	}, calls)
}

func TestCommandLineBackend_NoKeyFile(t *testing.T) {
	var calls []call
	b := remote.NewCommandLineBackend(remote.WithCommandRunner(recordingRunner(&calls, 0)))
	r := remote.Remote{Host: "gpu", Port: 22, User: "alice"}

	require.NoError(t, b.ExecuteRemote(context.Background(), r, "bundle"))
	require.Len(t, calls, 1)
	assert.Equal(t, "ssh", calls[0].name)
	assert.Equal(t, []string{"-p", "22", "alice@gpu", "bundle"}, calls[0].args)
}

func TestCommandLineBackend_NonZeroExit(t *testing.T) {
	var calls []call
	b := remote.NewCommandLineBackend(remote.WithCommandRunner(recordingRunner(&calls, 255)))
	r := remote.Remote{Host: "gpu", Port: 22, User: "alice"}

	err := b.ExecuteRemote(context.Background(), r, "bundle")
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "execute", transportErr.Op)
	assert.Equal(t, "gpu", transportErr.Host)
	assert.Equal(t, 255, transportErr.ExitCode)

	err = b.CopyToRemote(context.Background(), r, "a", "b")
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "copy", transportErr.Op)
}

func TestExecRunner(t *testing.T) {
	code, _, err := remote.ExecRunner(context.Background(), "true")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, _, err = remote.ExecRunner(context.Background(), "false")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	_, _, err = remote.ExecRunner(context.Background(), "bandsaw-command-that-does-not-exist")
	assert.Error(t, err)
}

func TestLocalBackend_CopyKeepsMode(t *testing.T) {
	src := filepath.Join(t.TempDir(), "bundle")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))
	dst := filepath.Join(t.TempDir(), "nested", "bundle")

	b := remote.NewLocalBackend()
	r := remote.Remote{Host: "localhost"}
	require.NoError(t, b.CopyToRemote(context.Background(), r, src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	err = b.CopyFromRemote(context.Background(), r, filepath.Join(t.TempDir(), "missing"), dst)
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, -1, transportErr.ExitCode)
}

func httpRemote(t *testing.T, srv *httptest.Server) remote.Remote {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return remote.Remote{Host: u.Hostname(), Port: port, User: "agent", Directory: "work"}
}

func TestHTTPBackend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		http.Error(w, "path escapes root", http.StatusForbidden)
	}))
	defer srv.Close()

	b := remote.NewHTTPBackend(remote.WithHTTPClient(srv.Client()))
	err := b.CopyFromRemote(context.Background(), httpRemote(t, srv), "../etc/passwd", filepath.Join(t.TempDir(), "x"))
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "copy", transportErr.Op)
	assert.ErrorContains(t, err, "path escapes root")
}

func TestHTTPBackend_ExecExitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exec", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"exit_code":3,"stderr":"bad input"}`))
	}))
	defer srv.Close()

	b := remote.NewHTTPBackend(remote.WithHTTPClient(srv.Client()))
	err := b.ExecuteRemote(context.Background(), httpRemote(t, srv), "work/bundle", "--input", "work/in.json")
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 3, transportErr.ExitCode)
	assert.ErrorContains(t, err, "bad input")
}
