package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/distribution"
	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/serialization"
)

// ErrNotConfigured is returned by operations on an empty session that was
// never restored.
var ErrNotConfigured = errors.New("session has no configuration")

// Session is the unit of continuation: a task, its execution, the shared
// context, the chain position and eventually the result. A session is driven
// by one goroutine at a time; advices relocate it by saving and restoring.
type Session struct {
	task      domain.Task
	execution domain.Execution
	runID     string
	config    *Configuration
	chain     string
	context   *domain.Context
	moderator *Moderator
	result    *domain.Result

	holder     *run.Holder
	logger     *slog.Logger
	serializer serialization.Serializer

	// contractErr remembers a Proceed on a finished session, even when the
	// calling advice dropped the error.
	contractErr error
}

// Option configures a Session.
type Option func(*Session)

// WithChain selects the advice chain. Defaults to DefaultChain.
func WithChain(name string) Option {
	return func(s *Session) {
		s.chain = name
	}
}

// WithRunHolder sets the holder of the run id. Defaults to run.Default.
func WithRunHolder(h *run.Holder) Option {
	return func(s *Session) {
		s.holder = h
	}
}

// WithLogger configures a logger for the Session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithSnapshotSerializer sets the format Restore reads on a session without
// configuration. By default the format is detected from the content.
func WithSnapshotSerializer(ser serialization.Serializer) Option {
	return func(s *Session) {
		s.serializer = ser
	}
}

func newSession(opts []Option) *Session {
	s := &Session{
		chain:   DefaultChain,
		context: domain.NewContext(),
		holder:  run.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Empty returns a session without task or configuration, to be filled by Restore.
func Empty(opts ...Option) *Session {
	s := newSession(opts)
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	return s
}

// New creates a session for executing task with execution under cfg.
// The logger defaults to the configuration's logger.
func New(task domain.Task, execution domain.Execution, cfg *Configuration, opts ...Option) (*Session, error) {
	s := newSession(opts)
	if s.logger == nil {
		s.logger = cfg.Logger()
	}
	advices, err := cfg.Chain(s.chain)
	if err != nil {
		return nil, err
	}
	s.task = task
	s.execution = execution
	s.config = cfg
	s.moderator = NewModerator(advices)
	s.runID = s.holder.ID()
	return s, nil
}

// Initiate runs the session from the start of its chain and returns the
// value of the task, or the task's error.
func (s *Session) Initiate(ctx context.Context) (any, error) {
	if s.config == nil {
		return nil, ErrNotConfigured
	}
	s.contractErr = nil
	if err := s.notifySessionCreated(ctx); err != nil {
		return nil, err
	}
	s.logger.Debug("session initiated", "task", s.task.Name, "execution", s.execution.ID, "chain", s.chain)

	if err := s.Proceed(ctx); err != nil {
		return nil, err
	}
	if s.contractErr != nil {
		return nil, s.contractErr
	}
	if !s.moderator.Finished {
		return nil, &domain.AdviceNotProceededError{
			Advice: AdviceName(s.moderator.Current()),
			Phase:  s.moderator.Phase(),
		}
	}

	if err := s.notifySessionFinished(ctx); err != nil {
		return nil, err
	}
	s.logger.Debug("session finished", "task", s.task.Name, "execution", s.execution.ID)
	if s.result == nil {
		return nil, nil
	}
	return s.result.Value, s.result.Err()
}

// Proceed executes the next unit of the chain: a Before hook, the task, an
// After hook, or finishing the session.
func (s *Session) Proceed(ctx context.Context) error {
	if s.moderator == nil {
		return ErrNotConfigured
	}
	if s.moderator.Finished {
		s.contractErr = domain.ErrSessionFinished
		return domain.ErrSessionFinished
	}

	step, advice := s.moderator.Advance()
	switch step {
	case StepBefore:
		if err := s.notifyBeforeAdvice(ctx); err != nil {
			return err
		}
		s.logger.Debug("calling advice", "advice", AdviceName(advice), "phase", step.String())
		return advice.Before(ctx, s)
	case StepTask:
		if err := s.executeTask(ctx); err != nil {
			return err
		}
		return s.Proceed(ctx)
	case StepAfter:
		if err := s.notifyAfterAdvice(ctx); err != nil {
			return err
		}
		s.logger.Debug("calling advice", "advice", AdviceName(advice), "phase", step.String())
		return advice.After(ctx, s)
	}
	return nil
}

func (s *Session) executeTask(ctx context.Context) error {
	fn, err := s.config.Tasks().Lookup(s.task.Name)
	if err != nil {
		return err
	}
	if err := s.notifyBeforeTask(ctx); err != nil {
		return err
	}
	s.logger.Debug("executing task", "task", s.task.Name, "execution", s.execution.ID)
	value, err := fn(ctx, s.execution.Args...)
	if err != nil {
		s.logger.Debug("task failed", "task", s.task.Name, "error", err)
		s.result = domain.Failed(err)
	} else {
		s.result = domain.Success(value)
	}
	return s.notifyAfterTask(ctx)
}

// Conclude sets the result without running the task and continues with the
// After step of the calling advice. It is meant to be called from a Before
// hook, e.g. by a cache.
func (s *Session) Conclude(ctx context.Context, result *domain.Result) error {
	if s.moderator == nil {
		return ErrNotConfigured
	}
	if s.moderator.Finished {
		s.contractErr = domain.ErrSessionFinished
		return domain.ErrSessionFinished
	}
	s.result = result
	s.moderator.Conclude()
	return s.Proceed(ctx)
}

// Save writes a snapshot of the session with the configuration's serializer.
func (s *Session) Save(w io.Writer) error {
	if s.config == nil {
		return ErrNotConfigured
	}
	if err := s.Serializer().Serialize(w, s.snapshot()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Restore replaces the state of s with the snapshot read from r. The
// configuration and the advice chain are resolved by name.
func (s *Session) Restore(r io.Reader) error {
	ser := s.serializer
	if s.config != nil {
		ser = s.config.Serializer()
	}
	snap, err := ReadSnapshot(r, ser)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	cfg, err := Lookup(snap.Configuration)
	if err != nil {
		return err
	}
	chain := snap.AdviceChain
	if chain == "" {
		chain = DefaultChain
	}
	advices, err := cfg.Chain(chain)
	if err != nil {
		return err
	}
	task, err := domain.TaskFromSerialized(snap.Task)
	if err != nil {
		return fmt.Errorf("failed to restore task: %w", err)
	}
	moderator, err := ModeratorFromSerialized(snap.Moderator, advices)
	if err != nil {
		return fmt.Errorf("failed to restore moderator: %w", err)
	}

	s.config = cfg
	s.chain = chain
	s.task = task
	s.execution = snap.Execution
	s.runID = snap.RunID
	s.context = snap.Context
	s.moderator = moderator
	s.result = snap.Result
	s.logger.Debug("session restored", "task", s.task.Name, "execution", s.execution.ID,
		"before_called", moderator.BeforeCalled, "after_called", moderator.AfterCalled)
	return nil
}

// Serializer returns the codec of the active configuration, JSON if none.
func (s *Session) Serializer() serialization.Serializer {
	if s.config != nil {
		return s.config.Serializer()
	}
	if s.serializer != nil {
		return s.serializer
	}
	return serialization.NewJSON()
}

func (s *Session) Task() domain.Task { return s.task }

func (s *Session) Execution() domain.Execution { return s.execution }

func (s *Session) RunID() string { return s.runID }

// Run returns the metadata of the run this process belongs to.
func (s *Session) Run() *run.Run { return s.holder.Run() }

func (s *Session) RunHolder() *run.Holder { return s.holder }

func (s *Session) Context() *domain.Context { return s.context }

func (s *Session) Result() *domain.Result { return s.result }

// SetResult replaces the result, e.g. from an After hook.
func (s *Session) SetResult(r *domain.Result) { s.result = r }

func (s *Session) Configuration() *Configuration { return s.config }

func (s *Session) Chain() string { return s.chain }

func (s *Session) Moderator() *Moderator { return s.moderator }

func (s *Session) Logger() *slog.Logger { return s.logger }

// Distribution is the bundle of the active configuration.
func (s *Session) Distribution() distribution.Distribution {
	if s.config == nil {
		return distribution.Executable()
	}
	return s.config.Distribution()
}
