// Package concurrent provides an advice that continues a session in a new
// goroutine. The goroutine works on its own Session restored from a
// snapshot, the same way a remote process would.
package concurrent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/session"
)

// ErrNoHandback is returned when the goroutine ended without reaching the
// After step of the advice, e.g. because an inner advice didn't proceed.
var ErrNoHandback = errors.New("goroutine ended without handing back the session")

// Advice moves the rest of the chain into a goroutine and waits for it.
type Advice struct {
	logger *slog.Logger

	mu sync.Mutex
	// handback is keyed by the session restored in the goroutine, which is
	// unique per Before call even when execution ids repeat.
	handback map[*session.Session]*bytes.Buffer
}

// Option configures the Advice.
type Option func(*Advice)

// WithLogger configures a logger for the Advice.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Advice) {
		a.logger = logger
	}
}

func New(opts ...Option) *Advice {
	a := &Advice{
		logger:   logging.NewNop(),
		handback: make(map[*session.Session]*bytes.Buffer),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Advice) Name() string { return "goroutine" }

func (a *Advice) Before(ctx context.Context, s *session.Session) error {
	var in bytes.Buffer
	if err := s.Save(&in); err != nil {
		return err
	}
	executionID := s.Execution().ID

	continued := session.Empty(session.WithRunHolder(s.RunHolder()), session.WithLogger(s.Logger()))
	defer a.take(continued)

	errc := make(chan error, 1)
	go func() {
		if err := continued.Restore(&in); err != nil {
			errc <- err
			return
		}
		errc <- continued.Proceed(ctx)
	}()
	a.logger.Debug("continuing in goroutine", "execution", executionID)
	if err := <-errc; err != nil {
		return fmt.Errorf("goroutine failed: %w", err)
	}

	out := a.take(continued)
	if out == nil {
		return ErrNoHandback
	}
	if err := s.Restore(out); err != nil {
		return err
	}
	return s.Proceed(ctx)
}

// After runs inside the goroutine. It hands the session back and ends the
// goroutine's part of the chain.
func (a *Advice) After(_ context.Context, s *session.Session) error {
	var out bytes.Buffer
	if err := s.Save(&out); err != nil {
		return err
	}
	a.mu.Lock()
	a.handback[s] = &out
	a.mu.Unlock()
	return nil
}

func (a *Advice) take(s *session.Session) *bytes.Buffer {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.handback[s]
	delete(a.handback, s)
	return out
}
