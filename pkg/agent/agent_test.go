package agent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/kant-ai/bandsaw/pkg/advices/remote"
	"github.com/kant-ai/bandsaw/pkg/agent"
	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/registry"
	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/runner"
	"github.com/kant-ai/bandsaw/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configName = "agent-test"

var remoteAdvice *remote.Advice

// TestMain doubles as the bundle: the agent executes this test binary with
// the runner flags.
func TestMain(m *testing.M) {
	tasks := registry.NewRegistry()
	tasks.Register("pid", func(context.Context, ...any) (any, error) {
		return os.Getpid(), nil
	})

	var err error
	remoteAdvice, err = remote.New(remote.WithBackend(remote.NewHTTPBackend()))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := session.NewConfiguration(configName,
		session.WithTaskRegistry(tasks),
		session.WithAdviceChain(session.DefaultChain, remoteAdvice))
	if err := session.Register(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if runner.Requested(os.Args[1:]) {
		os.Exit(runner.Main(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func newServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	h, err := agent.NewHandler(root)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, root
}

func remoteFor(t *testing.T, srv *httptest.Server) remote.Remote {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return remote.Remote{Host: u.Hostname(), Port: port, User: "agent", Directory: "work"}
}

func TestAgent_SessionRoundTrip(t *testing.T) {
	srv, _ := newServer(t)
	_, err := remoteAdvice.AddRemote(remote.DefaultRemote, remoteFor(t, srv))
	require.NoError(t, err)

	cfg, err := session.Lookup(configName)
	require.NoError(t, err)
	s, err := session.New(domain.NewTask("pid", nil), domain.NewExecution(), cfg,
		session.WithRunHolder(&run.Holder{}))
	require.NoError(t, err)

	value, err := s.Initiate(context.Background())
	require.NoError(t, err)
	require.IsType(t, 0, value)
	assert.NotEqual(t, os.Getpid(), value)
}

func TestAgent_FileRoundTrip(t *testing.T) {
	srv, root := newServer(t)
	r := remoteFor(t, srv)
	b := remote.NewHTTPBackend(remote.WithHTTPClient(srv.Client()))
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\necho hi\n"), 0o750))
	require.NoError(t, b.CopyToRemote(ctx, r, src, "work/script.sh"))

	info, err := os.Stat(filepath.Join(root, "work", "script.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())

	dst := filepath.Join(t.TempDir(), "copy.sh")
	require.NoError(t, b.CopyFromRemote(ctx, r, "work/script.sh", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(data))

	err = b.CopyFromRemote(ctx, r, "work/missing", dst)
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorContains(t, err, "404")
}

func TestAgent_ExecExitCode(t *testing.T) {
	srv, root := newServer(t)
	script := "#!/bin/sh\necho \"$PWD\" > pwd.txt\necho failing >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "fail.sh"), []byte(script), 0o755))

	b := remote.NewHTTPBackend(remote.WithHTTPClient(srv.Client()))
	err := b.ExecuteRemote(context.Background(), remoteFor(t, srv), "fail.sh")
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 3, transportErr.ExitCode)
	assert.ErrorContains(t, err, "failing")

	pwd, err := os.ReadFile(filepath.Join(root, "pwd.txt"))
	require.NoError(t, err)
	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Contains(t, []string{root, resolvedRoot}, strings.TrimSpace(string(pwd)))
}

func TestAgent_RejectsPathsOutsideRoot(t *testing.T) {
	srv, _ := newServer(t)

	body, err := json.Marshal(remote.ExecRequest{Executable: "/bin/sh", Args: []string{"-c", "true"}})
	require.NoError(t, err)
	resp, err := srv.Client().Post(srv.URL+"/exec", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body, err = json.Marshal(remote.ExecRequest{Executable: "../bin/sh"})
	require.NoError(t, err)
	resp, err = srv.Client().Post(srv.URL+"/exec", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAgent_ExecutableNotFound(t *testing.T) {
	srv, _ := newServer(t)
	body, err := json.Marshal(remote.ExecRequest{Executable: "missing"})
	require.NoError(t, err)
	resp, err := srv.Client().Post(srv.URL+"/exec", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgent_HealthAndMetrics(t *testing.T) {
	srv, root := newServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	b := remote.NewHTTPBackend(remote.WithHTTPClient(srv.Client()))
	require.NoError(t, b.ExecuteRemote(context.Background(), remoteFor(t, srv), "ok.sh"))

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bandsaw_agent_executions_total{exit_code="0"} 1`)
}
