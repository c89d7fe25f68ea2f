package session

import (
	"context"
	"fmt"
)

// Advice intercepts a session before and after its task runs.
//
// Both hooks are responsible for continuing the chain by calling
// s.Proceed(ctx). An advice may call Proceed in another goroutine, process or
// host after restoring a snapshot of s there. A Before hook that returns
// without the chain moving on makes Initiate fail with an
// AdviceNotProceededError.
type Advice interface {
	Before(ctx context.Context, s *Session) error
	After(ctx context.Context, s *Session) error
}

// Named is implemented by advices that report a name in errors and logs.
type Named interface {
	Name() string
}

// BaseAdvice proceeds in both hooks. Embed it to implement only one of them.
type BaseAdvice struct{}

func (BaseAdvice) Before(ctx context.Context, s *Session) error { return s.Proceed(ctx) }

func (BaseAdvice) After(ctx context.Context, s *Session) error { return s.Proceed(ctx) }

// AdviceFuncs adapts plain functions to an Advice. A nil hook proceeds.
type AdviceFuncs struct {
	Label      string
	BeforeFunc func(ctx context.Context, s *Session) error
	AfterFunc  func(ctx context.Context, s *Session) error
}

func (a *AdviceFuncs) Before(ctx context.Context, s *Session) error {
	if a.BeforeFunc == nil {
		return s.Proceed(ctx)
	}
	return a.BeforeFunc(ctx, s)
}

func (a *AdviceFuncs) After(ctx context.Context, s *Session) error {
	if a.AfterFunc == nil {
		return s.Proceed(ctx)
	}
	return a.AfterFunc(ctx, s)
}

func (a *AdviceFuncs) Name() string {
	if a.Label == "" {
		return "advice"
	}
	return a.Label
}

// AdviceName returns the name of an advice, falling back to its type.
func AdviceName(a Advice) string {
	if a == nil {
		return "<none>"
	}
	if n, ok := a.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", a)
}
