package session

import (
	"context"

	"github.com/kant-ai/bandsaw/pkg/domain"
)

// Extension observes the lifecycle of all sessions of a configuration.
// It implements any subset of the observer interfaces below; hooks are called
// in registration order and their errors abort the session.
type Extension any

// InitObserver is notified when its configuration is registered.
type InitObserver interface {
	OnInit(cfg *Configuration) error
}

// SessionCreatedObserver is notified when Initiate starts a session.
type SessionCreatedObserver interface {
	OnSessionCreated(ctx context.Context, s *Session) error
}

// SessionFinishedObserver is notified when Initiate completed the chain.
type SessionFinishedObserver interface {
	OnSessionFinished(ctx context.Context, s *Session) error
}

// BeforeTaskObserver is notified right before the task runs.
type BeforeTaskObserver interface {
	OnBeforeTaskExecuted(ctx context.Context, s *Session) error
}

// AfterTaskObserver is notified right after the task ran, with the result set.
type AfterTaskObserver interface {
	OnAfterTaskExecuted(ctx context.Context, s *Session) error
}

// BeforeAdviceObserver is notified before every Before hook.
type BeforeAdviceObserver interface {
	OnBeforeAdvice(ctx context.Context, task domain.Task, runID string, c *domain.Context) error
}

// AfterAdviceObserver is notified before every After hook.
type AfterAdviceObserver interface {
	OnAfterAdvice(ctx context.Context, task domain.Task, runID string, c *domain.Context, result *domain.Result) error
}

func (s *Session) notifySessionCreated(ctx context.Context) error {
	for _, ext := range s.config.Extensions() {
		if o, ok := ext.(SessionCreatedObserver); ok {
			if err := o.OnSessionCreated(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) notifySessionFinished(ctx context.Context) error {
	for _, ext := range s.config.Extensions() {
		if o, ok := ext.(SessionFinishedObserver); ok {
			if err := o.OnSessionFinished(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) notifyBeforeTask(ctx context.Context) error {
	for _, ext := range s.config.Extensions() {
		if o, ok := ext.(BeforeTaskObserver); ok {
			if err := o.OnBeforeTaskExecuted(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) notifyAfterTask(ctx context.Context) error {
	for _, ext := range s.config.Extensions() {
		if o, ok := ext.(AfterTaskObserver); ok {
			if err := o.OnAfterTaskExecuted(ctx, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) notifyBeforeAdvice(ctx context.Context) error {
	for _, ext := range s.config.Extensions() {
		if o, ok := ext.(BeforeAdviceObserver); ok {
			if err := o.OnBeforeAdvice(ctx, s.task, s.runID, s.context); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) notifyAfterAdvice(ctx context.Context) error {
	for _, ext := range s.config.Extensions() {
		if o, ok := ext.(AfterAdviceObserver); ok {
			if err := o.OnAfterAdvice(ctx, s.task, s.runID, s.context, s.result); err != nil {
				return err
			}
		}
	}
	return nil
}
