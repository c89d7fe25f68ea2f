package session

import "github.com/kant-ai/bandsaw/pkg/serialization"

// Step is the kind of work the moderator hands out next.
type Step int

const (
	StepBefore Step = iota + 1
	StepTask
	StepAfter
	StepFinished
)

func (s Step) String() string {
	switch s {
	case StepBefore:
		return "before"
	case StepTask:
		return "task"
	case StepAfter:
		return "after"
	case StepFinished:
		return "finished"
	}
	return "unknown"
}

// Moderator tracks the position of a session in its advice chain.
// The counters are the complete resumable state. The advices are bound
// from the configuration by chain name and never serialized.
type Moderator struct {
	BeforeCalled int  `mapstructure:"before_called"`
	AfterCalled  int  `mapstructure:"after_called"`
	TaskCalled   bool `mapstructure:"task_called"`
	Finished     bool `mapstructure:"finished"`

	advices []Advice
}

// NewModerator returns a moderator at the start of the chain.
func NewModerator(advices []Advice) *Moderator {
	return &Moderator{advices: advices}
}

// Advices returns the bound chain.
func (m *Moderator) Advices() []Advice { return m.advices }

// Current returns the advice whose step is active, or nil when no step is.
func (m *Moderator) Current() Advice {
	n := len(m.advices)
	if n == 0 || m.Finished {
		return nil
	}
	if !m.TaskCalled {
		if m.BeforeCalled == 0 {
			return nil
		}
		return m.advices[m.BeforeCalled-1]
	}
	if m.AfterCalled == 0 {
		return nil
	}
	return m.advices[n-m.AfterCalled]
}

// Phase is "before" until the task was invoked and "after" afterwards.
func (m *Moderator) Phase() string {
	if m.TaskCalled {
		return StepAfter.String()
	}
	return StepBefore.String()
}

// Advance enters the next step and returns it. Steps are counted when they
// are entered, so a snapshot taken inside a step resumes after it.
func (m *Moderator) Advance() (Step, Advice) {
	n := len(m.advices)
	switch {
	case m.Finished:
		return StepFinished, nil
	case m.BeforeCalled < n:
		m.BeforeCalled++
		return StepBefore, m.advices[m.BeforeCalled-1]
	case !m.TaskCalled:
		m.TaskCalled = true
		return StepTask, nil
	case m.AfterCalled < n:
		m.AfterCalled++
		return StepAfter, m.advices[n-m.AfterCalled]
	}
	m.Finished = true
	return StepFinished, nil
}

// Conclude skips the task and the before steps of the remaining advices.
// The next step is the After of the currently active advice.
func (m *Moderator) Conclude() {
	n := len(m.advices)
	m.TaskCalled = true
	m.AfterCalled = n - m.BeforeCalled
	m.BeforeCalled = n
}

func (m *Moderator) Serialized() map[string]any {
	return map[string]any{
		"before_called": m.BeforeCalled,
		"after_called":  m.AfterCalled,
		"task_called":   m.TaskCalled,
		"finished":      m.Finished,
	}
}

// ModeratorFromSerialized rebuilds the counters and binds them to advices.
func ModeratorFromSerialized(values map[string]any, advices []Advice) (*Moderator, error) {
	m := NewModerator(advices)
	if err := serialization.Decode(values, m); err != nil {
		return nil, err
	}
	return m, nil
}
