package bandsaw_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kant-ai/bandsaw"
	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/extensions/timestamps"
	"github.com/kant-ai/bandsaw/pkg/registry"
	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bandsaw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClient_Execute(t *testing.T) {
	tasks := registry.NewRegistry()
	tasks.Register("add", func(_ context.Context, args ...any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	})
	cfg := session.NewConfiguration(t.Name(), session.WithTaskRegistry(tasks))

	value, err := bandsaw.New(cfg, bandsaw.WithRunHolder(&run.Holder{})).Execute(context.Background(), "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, value)
}

func TestClient_UnknownChain(t *testing.T) {
	cfg := session.NewConfiguration(t.Name())
	_, err := bandsaw.New(cfg, bandsaw.WithChain("missing")).Execute(context.Background(), "add")
	var chainErr *domain.ChainNotFoundError
	assert.ErrorAs(t, err, &chainErr)
}

func TestLoadConfiguration_CacheAndGoroutine(t *testing.T) {
	cacheDir := t.TempDir()
	path := writeSettings(t, `
serializer: yaml
chain: [cache, goroutine]
extensions: [timestamps, metrics]
cache:
  dir: `+cacheDir+`
`)
	var calls atomic.Int32
	tasks := registry.NewRegistry()
	tasks.Register("answer", func(context.Context, ...any) (any, error) {
		calls.Add(1)
		return 42, nil
	})

	cfg, err := bandsaw.LoadConfiguration(t.Name(), path,
		bandsaw.WithTasks(tasks),
		bandsaw.WithMetricsRegisterer(prometheus.NewRegistry()),
		bandsaw.WithSettingsLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { session.Unregister(t.Name()) })
	assert.Equal(t, "yaml", cfg.Serializer().Extension())
	assert.Len(t, cfg.Extensions(), 2)

	client := bandsaw.New(cfg, bandsaw.WithRunHolder(&run.Holder{}))
	task := domain.NewTask("answer", nil)
	execution := domain.Execution{ID: "fixed"}
	for i := 0; i < 2; i++ {
		value, err := client.ExecuteTask(context.Background(), task, execution)
		require.NoError(t, err)
		assert.Equal(t, 42, value)
	}
	assert.Equal(t, int32(1), calls.Load())

	entries, err := os.ReadDir(filepath.Join(cacheDir, "answer"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadConfiguration_TimestampsInContext(t *testing.T) {
	path := writeSettings(t, "extensions: [timestamps]\n")
	tasks := registry.NewRegistry()
	tasks.Register("noop", func(context.Context, ...any) (any, error) { return nil, nil })
	cfg, err := bandsaw.LoadConfiguration(t.Name(), path, bandsaw.WithTasks(tasks))
	require.NoError(t, err)
	t.Cleanup(func() { session.Unregister(t.Name()) })

	s, err := session.New(domain.NewTask("noop", nil), domain.NewExecution(), cfg, session.WithRunHolder(&run.Holder{}))
	require.NoError(t, err)
	_, err = s.Initiate(context.Background())
	require.NoError(t, err)
	assert.Len(t, timestamps.Of(s.Context()), 4)
}

func TestLoadConfiguration_RemoteAdvice(t *testing.T) {
	path := writeSettings(t, `
chain: [remote]
transport: local
remote_name: gpu
remotes:
  gpu:
    host: localhost
    directory: `+t.TempDir()+`
`)
	cfg, err := bandsaw.LoadConfiguration(t.Name(), path)
	require.NoError(t, err)
	t.Cleanup(func() { session.Unregister(t.Name()) })
	advices, err := cfg.Chain(session.DefaultChain)
	require.NoError(t, err)
	require.Len(t, advices, 1)
	assert.Equal(t, "remote", session.AdviceName(advices[0]))
}

func TestLoadConfiguration_Errors(t *testing.T) {
	for name, content := range map[string]string{
		"advice":     "chain: [teleport]\n",
		"extension":  "extensions: [telepathy]\n",
		"transport":  "chain: [remote]\ntransport: pigeon\n",
		"serializer": "serializer: xml\n",
		"log level":  "log_level: loud\n",
		"cache key":  "chain: [cache]\ncache:\n  encryption_key: c2hvcnQ=\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := bandsaw.LoadConfiguration("broken", writeSettings(t, content))
			assert.Error(t, err)
			_, lookupErr := session.Lookup("broken")
			assert.True(t, errors.As(lookupErr, new(*domain.ConfigurationNotFoundError)))
		})
	}
}
