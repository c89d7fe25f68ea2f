// Package tracing records OpenTelemetry spans for sessions.
//
// A span covers a session from Initiate until its chain finished. The task
// start and end are events on that span, and failed tasks set an error
// status. When the task runs in another process, the trace context travels
// in the session Context and the task gets its own span, parented to the
// session span.
package tracing

import (
	"context"
	"sync"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ContextKey is the Context entry carrying the trace context.
const ContextKey = "tracing"

const instrumentationName = "github.com/kant-ai/bandsaw"

type Extension struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	mu    sync.Mutex
	spans map[string]*sessionSpan
}

type sessionSpan struct {
	span trace.Span
	// owned is set for task spans opened in a process that did not
	// initiate the session.
	owned bool
}

// Option configures the Extension.
type Option func(*Extension)

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Extension) {
		e.tracer = tp.Tracer(instrumentationName)
	}
}

func New(opts ...Option) *Extension {
	e := &Extension{
		propagator: propagation.TraceContext{},
		spans:      make(map[string]*sessionSpan),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return e
}

func attributes(s *session.Session) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("bandsaw.task.name", s.Task().Name),
		attribute.String("bandsaw.task.id", s.Task().ID),
		attribute.String("bandsaw.execution.id", s.Execution().ID),
		attribute.String("bandsaw.run.id", s.RunID()),
		attribute.String("bandsaw.configuration", s.Configuration().Name()),
	}
}

func (e *Extension) OnSessionCreated(ctx context.Context, s *session.Session) error {
	ctx, span := e.tracer.Start(ctx, "bandsaw.session", trace.WithAttributes(attributes(s)...))

	carrier := propagation.MapCarrier{}
	e.propagator.Inject(ctx, carrier)
	if len(carrier) > 0 {
		tc, err := s.Context().Child(ContextKey)
		if err != nil {
			span.End()
			return err
		}
		for _, k := range carrier.Keys() {
			if _, exists := tc.Lookup(k); exists {
				continue
			}
			if err := tc.Set(k, carrier.Get(k)); err != nil {
				span.End()
				return err
			}
		}
	}

	e.mu.Lock()
	e.spans[s.Execution().ID] = &sessionSpan{span: span}
	e.mu.Unlock()
	return nil
}

// remoteContext restores the trace context stored in c.
func (e *Extension) remoteContext(ctx context.Context, c *domain.Context) context.Context {
	v, ok := c.Lookup(ContextKey)
	if !ok {
		return ctx
	}
	tc, ok := v.(*domain.Context)
	if !ok {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	tc.Range(func(key string, value any) bool {
		if s, ok := value.(string); ok {
			carrier.Set(key, s)
		}
		return true
	})
	return e.propagator.Extract(ctx, carrier)
}

func (e *Extension) OnBeforeTaskExecuted(ctx context.Context, s *session.Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ss, ok := e.spans[s.Execution().ID]; ok {
		ss.span.AddEvent("task.start")
		return nil
	}
	_, span := e.tracer.Start(e.remoteContext(ctx, s.Context()), "bandsaw.task", trace.WithAttributes(attributes(s)...))
	span.AddEvent("task.start")
	e.spans[s.Execution().ID] = &sessionSpan{span: span, owned: true}
	return nil
}

func (e *Extension) OnAfterTaskExecuted(_ context.Context, s *session.Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ss, ok := e.spans[s.Execution().ID]
	if !ok {
		return nil
	}
	ss.span.AddEvent("task.end")
	if r := s.Result(); r != nil && !r.Succeeded() {
		ss.span.RecordError(r.Err())
		ss.span.SetStatus(codes.Error, r.Failure.Message)
	}
	if ss.owned {
		ss.span.End()
		delete(e.spans, s.Execution().ID)
	}
	return nil
}

func (e *Extension) OnSessionFinished(_ context.Context, s *session.Session) error {
	e.mu.Lock()
	ss, ok := e.spans[s.Execution().ID]
	delete(e.spans, s.Execution().ID)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	if r := s.Result(); r != nil && !r.Succeeded() {
		ss.span.SetStatus(codes.Error, r.Failure.Message)
	}
	ss.span.End()
	return nil
}
