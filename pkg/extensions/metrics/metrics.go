// Package metrics exports Prometheus metrics about sessions.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bandsaw"

// Extension counts sessions and advice steps and measures task durations.
// Task durations are measured in the process that runs the task.
type Extension struct {
	SessionsCreated  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	AdviceSteps      *prometheus.CounterVec

	now     func() time.Time
	mu      sync.Mutex
	started map[string]time.Time
}

// New creates the extension and registers its collectors with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Extension, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e := &Extension{
		SessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total sessions initiated, labelled by task.",
		}, []string{"task"}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "finished_total",
			Help:      "Total sessions that completed their advice chain, labelled by task and status.",
		}, []string{"task", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Task execution time in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"task"}),
		AdviceSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "advice",
			Name:      "steps_total",
			Help:      "Total advice hooks called, labelled by task and phase.",
		}, []string{"task", "phase"}),
		now:     time.Now,
		started: make(map[string]time.Time),
	}
	for _, c := range []prometheus.Collector{e.SessionsCreated, e.SessionsFinished, e.TaskDuration, e.AdviceSteps} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return e, nil
}

func status(r *domain.Result) string {
	if r.Succeeded() {
		return "success"
	}
	return "failure"
}

func (e *Extension) OnSessionCreated(_ context.Context, s *session.Session) error {
	e.SessionsCreated.WithLabelValues(s.Task().Name).Inc()
	return nil
}

func (e *Extension) OnSessionFinished(_ context.Context, s *session.Session) error {
	e.SessionsFinished.WithLabelValues(s.Task().Name, status(s.Result())).Inc()
	return nil
}

func (e *Extension) OnBeforeTaskExecuted(_ context.Context, s *session.Session) error {
	e.mu.Lock()
	e.started[s.Execution().ID] = e.now()
	e.mu.Unlock()
	return nil
}

func (e *Extension) OnAfterTaskExecuted(_ context.Context, s *session.Session) error {
	e.mu.Lock()
	start, ok := e.started[s.Execution().ID]
	delete(e.started, s.Execution().ID)
	e.mu.Unlock()
	if ok {
		e.TaskDuration.WithLabelValues(s.Task().Name).Observe(e.now().Sub(start).Seconds())
	}
	return nil
}

func (e *Extension) OnBeforeAdvice(_ context.Context, task domain.Task, _ string, _ *domain.Context) error {
	e.AdviceSteps.WithLabelValues(task.Name, "before").Inc()
	return nil
}

func (e *Extension) OnAfterAdvice(_ context.Context, task domain.Task, _ string, _ *domain.Context, _ *domain.Result) error {
	e.AdviceSteps.WithLabelValues(task.Name, "after").Inc()
	return nil
}
