// Package timestamps records when the stages of a session happened.
//
// The values are stored in the session Context under "timestamps":
//
//	timestamps:
//	  session_created: 2024-05-01T12:00:00.000+00:00
//	  before_task:     ...
//	  after_task:      ...
//	  session_finished: ...
//
// Because the Context travels with the session, the task timestamps are the
// ones of the process that actually ran the task.
package timestamps

import (
	"context"
	"time"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/session"
)

// ContextKey is the Context entry holding the timestamps.
const ContextKey = "timestamps"

const (
	SessionCreated  = "session_created"
	SessionFinished = "session_finished"
	BeforeTask      = "before_task"
	AfterTask       = "after_task"
)

type Extension struct {
	now func() time.Time
}

// Option configures the Extension.
type Option func(*Extension)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Extension) {
		e.now = now
	}
}

func New(opts ...Option) *Extension {
	e := &Extension{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) record(s *session.Session, name string) error {
	stamps, err := s.Context().Child(ContextKey)
	if err != nil {
		return err
	}
	return stamps.Set(name, run.FormatTimestamp(e.now()))
}

func (e *Extension) OnSessionCreated(_ context.Context, s *session.Session) error {
	return e.record(s, SessionCreated)
}

func (e *Extension) OnSessionFinished(_ context.Context, s *session.Session) error {
	return e.record(s, SessionFinished)
}

func (e *Extension) OnBeforeTaskExecuted(_ context.Context, s *session.Session) error {
	return e.record(s, BeforeTask)
}

func (e *Extension) OnAfterTaskExecuted(_ context.Context, s *session.Session) error {
	return e.record(s, AfterTask)
}

// Of returns the timestamps recorded in c, keyed by stage.
func Of(c *domain.Context) map[string]string {
	out := make(map[string]string)
	v, ok := c.Lookup(ContextKey)
	if !ok {
		return out
	}
	stamps, ok := v.(*domain.Context)
	if !ok {
		return out
	}
	stamps.Range(func(key string, value any) bool {
		if s, ok := value.(string); ok {
			out[key] = s
		}
		return true
	})
	return out
}
