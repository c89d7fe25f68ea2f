package session_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/registry"
	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/serialization"
	"github.com/kant-ai/bandsaw/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTask = errors.New("task failed")

func testTasks() *registry.Registry {
	r := registry.NewRegistry()
	r.Register("echo", func(_ context.Context, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, nil
		}
		return args[0], nil
	})
	r.Register("fail", func(context.Context, ...any) (any, error) {
		return nil, errTask
	})
	return r
}

// newConfig registers a configuration named after the test.
func newConfig(t *testing.T, opts ...session.ConfigOption) *session.Configuration {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	opts = append([]session.ConfigOption{session.WithTaskRegistry(testTasks())}, opts...)
	cfg := session.NewConfiguration(name, opts...)
	require.NoError(t, session.Register(cfg))
	t.Cleanup(func() { session.Unregister(name) })
	return cfg
}

func newSession(t *testing.T, cfg *session.Configuration, task string, args ...any) *session.Session {
	t.Helper()
	s, err := session.New(domain.NewTask(task, nil), domain.NewExecution(args...), cfg,
		session.WithRunHolder(&run.Holder{}))
	require.NoError(t, err)
	return s
}

// recorder logs the hooks of named advices.
type recorder struct {
	calls []string
}

func (r *recorder) advice(name string) session.Advice {
	return &session.AdviceFuncs{
		Label: name,
		BeforeFunc: func(ctx context.Context, s *session.Session) error {
			r.calls = append(r.calls, "before:"+name)
			return s.Proceed(ctx)
		},
		AfterFunc: func(ctx context.Context, s *session.Session) error {
			r.calls = append(r.calls, "after:"+name)
			return s.Proceed(ctx)
		},
	}
}

func TestSession_EmptyChain(t *testing.T) {
	cfg := newConfig(t)
	s := newSession(t, cfg, "echo", "hello")

	value, err := s.Initiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", value)

	m := s.Moderator()
	assert.Equal(t, 0, m.BeforeCalled)
	assert.Equal(t, 0, m.AfterCalled)
	assert.True(t, m.TaskCalled)
	assert.True(t, m.Finished)
}

func TestSession_ChainRunsAroundTask(t *testing.T) {
	rec := &recorder{}
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain,
		rec.advice("a"), rec.advice("b"), rec.advice("c")))
	s := newSession(t, cfg, "echo", 42)

	value, err := s.Initiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, []string{
		"before:a", "before:b", "before:c", "after:c", "after:b", "after:a",
	}, rec.calls)

	m := s.Moderator()
	assert.Equal(t, 3, m.BeforeCalled)
	assert.Equal(t, 3, m.AfterCalled)
	assert.True(t, m.TaskCalled)
	assert.True(t, m.Finished)
	assert.Nil(t, m.Current())
}

func TestSession_BaseAdviceProceeds(t *testing.T) {
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain, session.BaseAdvice{}, session.BaseAdvice{}))
	value, err := newSession(t, cfg, "echo", "x").Initiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", value)
}

func TestSession_AdviceNotProceeding(t *testing.T) {
	rec := &recorder{}
	stuck := &session.AdviceFuncs{
		Label:      "stuck",
		BeforeFunc: func(context.Context, *session.Session) error { return nil },
	}
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain, rec.advice("a"), stuck, rec.advice("c")))
	s := newSession(t, cfg, "echo", 1)

	_, err := s.Initiate(context.Background())
	var notProceeded *domain.AdviceNotProceededError
	require.ErrorAs(t, err, &notProceeded)
	assert.Equal(t, "stuck", notProceeded.Advice)
	assert.Equal(t, "before", notProceeded.Phase)
	assert.Contains(t, err.Error(), "stuck")
	assert.Equal(t, []string{"before:a"}, rec.calls)
	assert.False(t, s.Moderator().TaskCalled)
}

func TestSession_AfterNotProceeding(t *testing.T) {
	stuck := &session.AdviceFuncs{
		Label:     "stuck-after",
		AfterFunc: func(context.Context, *session.Session) error { return nil },
	}
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain, session.BaseAdvice{}, stuck))

	_, err := newSession(t, cfg, "echo", 1).Initiate(context.Background())
	var notProceeded *domain.AdviceNotProceededError
	require.ErrorAs(t, err, &notProceeded)
	assert.Equal(t, "stuck-after", notProceeded.Advice)
	assert.Equal(t, "after", notProceeded.Phase)
}

func TestSession_DoubleProceed(t *testing.T) {
	twice := &session.AdviceFuncs{
		Label: "twice",
		BeforeFunc: func(ctx context.Context, s *session.Session) error {
			if err := s.Proceed(ctx); err != nil {
				return err
			}
			_ = s.Proceed(ctx) // error dropped on purpose
			return nil
		},
	}
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain, twice))

	_, err := newSession(t, cfg, "echo", 1).Initiate(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionFinished)
	assert.EqualError(t, err, "session already finished")
}

func TestSession_ProceedAfterFinish(t *testing.T) {
	cfg := newConfig(t)
	s := newSession(t, cfg, "echo", 1)
	_, err := s.Initiate(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Proceed(context.Background()), domain.ErrSessionFinished)
}

func TestSession_TaskFailureRunsAfterSteps(t *testing.T) {
	rec := &recorder{}
	var observed *domain.Result
	observer := &session.AdviceFuncs{
		Label: "observer",
		AfterFunc: func(ctx context.Context, s *session.Session) error {
			observed = s.Result()
			return s.Proceed(ctx)
		},
	}
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain, rec.advice("a"), observer))

	_, err := newSession(t, cfg, "fail").Initiate(context.Background())
	assert.ErrorIs(t, err, errTask)
	assert.Equal(t, []string{"before:a", "after:a"}, rec.calls)
	require.NotNil(t, observed)
	assert.False(t, observed.Succeeded())
	assert.Equal(t, "task failed", observed.Failure.Message)
}

func TestSession_UnknownTask(t *testing.T) {
	cfg := newConfig(t)
	_, err := newSession(t, cfg, "missing").Initiate(context.Background())
	var notFound *domain.TaskNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestSession_ChainNotFound(t *testing.T) {
	cfg := newConfig(t)
	_, err := session.New(domain.NewTask("echo", nil), domain.NewExecution(), cfg, session.WithChain("other"))
	var notFound *domain.ChainNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "other", notFound.Chain)
}

func TestSession_NamedChain(t *testing.T) {
	rec := &recorder{}
	cfg := newConfig(t, session.WithAdviceChain("traced", rec.advice("t")))
	s, err := session.New(domain.NewTask("echo", nil), domain.NewExecution("v"), cfg, session.WithChain("traced"))
	require.NoError(t, err)

	_, err = s.Initiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "traced", s.Chain())
	assert.Equal(t, []string{"before:t", "after:t"}, rec.calls)
}

func TestSession_SaveRestoreUnstarted(t *testing.T) {
	for _, ser := range []serialization.Serializer{serialization.NewJSON(), serialization.NewYAML()} {
		t.Run(ser.Extension(), func(t *testing.T) {
			cfg := newConfig(t, session.WithSerializer(ser), session.WithAdviceChain("chain", session.BaseAdvice{}))
			s, err := session.New(domain.NewTask("echo", map[string]any{"cache": false}),
				domain.NewExecution(1, "two", 3.5), cfg, session.WithChain("chain"))
			require.NoError(t, err)
			require.NoError(t, s.Context().Set("key", "value"))
			require.NoError(t, s.Context().Get("nested").(*domain.Context).Set("n", 1))

			var buf bytes.Buffer
			require.NoError(t, s.Save(&buf))

			restored := session.Empty()
			require.NoError(t, restored.Restore(&buf))
			assert.Equal(t, s.Chain(), restored.Chain())
			assert.Same(t, cfg, restored.Configuration())
			assert.True(t, s.Context().Equal(restored.Context()))
			assert.Equal(t, s.Task(), restored.Task())
			assert.Equal(t, s.Execution(), restored.Execution())
			assert.Equal(t, s.RunID(), restored.RunID())
			assert.Equal(t, s.Moderator().Serialized(), restored.Moderator().Serialized())
			assert.Nil(t, restored.Result())
		})
	}
}

func TestSession_RestoreFailures(t *testing.T) {
	cfg := newConfig(t, session.WithAdviceChain("chain"))
	s, err := session.New(domain.NewTask("echo", nil), domain.NewExecution(), cfg, session.WithChain("chain"))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.Save(&buf))
	snapshot := buf.String()

	t.Run("configuration not registered", func(t *testing.T) {
		doc := strings.Replace(snapshot, `"configuration": "`+cfg.Name()+`"`, `"configuration": "unknown"`, 1)
		err := session.Empty().Restore(strings.NewReader(doc))
		var notFound *domain.ConfigurationNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "unknown", notFound.Name)
	})

	t.Run("chain not found", func(t *testing.T) {
		doc := strings.Replace(snapshot, `"advice_chain": "chain"`, `"advice_chain": "gone"`, 1)
		err := session.Empty().Restore(strings.NewReader(doc))
		var notFound *domain.ChainNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("garbage", func(t *testing.T) {
		assert.Error(t, session.Empty().Restore(strings.NewReader("{")))
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		doc := strings.Replace(snapshot, `"version": 1`, `"version": 1, "future": {"x": 1}`, 1)
		assert.NoError(t, session.Empty().Restore(strings.NewReader(doc)))
	})
}

// relocating moves the rest of the chain into a second Session instance,
// the same way the goroutine and remote advices do across boundaries.
type relocating struct {
	out bytes.Buffer
}

func (a *relocating) Before(ctx context.Context, s *session.Session) error {
	var in bytes.Buffer
	if err := s.Save(&in); err != nil {
		return err
	}
	other := session.Empty()
	if err := other.Restore(&in); err != nil {
		return err
	}
	if err := other.Proceed(ctx); err != nil {
		return err
	}
	if err := s.Restore(&a.out); err != nil {
		return err
	}
	return s.Proceed(ctx)
}

func (a *relocating) After(_ context.Context, s *session.Session) error {
	a.out.Reset()
	if err := s.Context().Set("relocated", true); err != nil {
		return err
	}
	return s.Save(&a.out)
}

func TestSession_RelocatedContinuation(t *testing.T) {
	rec := &recorder{}
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain,
		rec.advice("outer"), &relocating{}, rec.advice("inner")))
	s := newSession(t, cfg, "echo", "moved")

	value, err := s.Initiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "moved", value)
	assert.Equal(t, []string{"before:outer", "before:inner", "after:inner", "after:outer"}, rec.calls)

	relocated, ok := s.Context().Lookup("relocated")
	assert.True(t, ok)
	assert.Equal(t, true, relocated)
	assert.True(t, s.Moderator().Finished)
}

func TestSession_RelocatedTaskFailure(t *testing.T) {
	cfg := newConfig(t, session.WithAdviceChain(session.DefaultChain, &relocating{}))

	_, err := newSession(t, cfg, "fail").Initiate(context.Background())
	var taskErr *domain.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "task failed", taskErr.Message)
}

func TestSession_Conclude(t *testing.T) {
	rec := &recorder{}
	concluding := &session.AdviceFuncs{
		Label: "concluding",
		BeforeFunc: func(ctx context.Context, s *session.Session) error {
			rec.calls = append(rec.calls, "before:concluding")
			return s.Conclude(ctx, domain.Success("from cache"))
		},
		AfterFunc: func(ctx context.Context, s *session.Session) error {
			rec.calls = append(rec.calls, "after:concluding")
			return s.Proceed(ctx)
		},
	}
	tasks := registry.NewRegistry()
	executed := false
	tasks.Register("echo", func(context.Context, ...any) (any, error) {
		executed = true
		return "computed", nil
	})
	cfg := newConfig(t, session.WithTaskRegistry(tasks), session.WithAdviceChain(session.DefaultChain,
		rec.advice("a"), concluding, rec.advice("c")))

	value, err := newSession(t, cfg, "echo").Initiate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from cache", value)
	assert.False(t, executed)
	assert.Equal(t, []string{"before:a", "before:concluding", "after:concluding", "after:a"}, rec.calls)
}

func TestSession_EmptyIsNotConfigured(t *testing.T) {
	s := session.Empty()
	assert.ErrorIs(t, s.Proceed(context.Background()), session.ErrNotConfigured)
	_, err := s.Initiate(context.Background())
	assert.ErrorIs(t, err, session.ErrNotConfigured)
	assert.ErrorIs(t, s.Save(&bytes.Buffer{}), session.ErrNotConfigured)
	assert.Equal(t, "json", s.Serializer().Extension())
}

type closingAdvice struct {
	session.AdviceFuncs
	closed int
	err    error
}

func (a *closingAdvice) Close() error {
	a.closed++
	return a.err
}

func TestConfiguration_Close(t *testing.T) {
	shared := &closingAdvice{}
	failing := &closingAdvice{err: errors.New("busy")}
	ext := &closingAdvice{}
	cfg := session.NewConfiguration(t.Name(),
		session.WithAdviceChain(session.DefaultChain, shared, &session.AdviceFuncs{}),
		session.WithAdviceChain("other", shared, failing),
		session.WithExtension(ext))

	err := cfg.Close()
	assert.ErrorContains(t, err, "busy")
	assert.Equal(t, 2, shared.closed)
	assert.Equal(t, 1, failing.closed)
	assert.Equal(t, 1, ext.closed)
}
