package bandsaw

import (
	"context"
	"log/slog"
	"os"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/registry"
	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/runner"
	"github.com/kant-ai/bandsaw/pkg/session"
)

// Client executes tasks under one configuration.
type Client struct {
	config *session.Configuration
	chain  string
	holder *run.Holder
	logger *slog.Logger
}

// Option defines a functional option for configuring the Client.
type Option func(*Client)

// WithChain selects the advice chain used for executions.
func WithChain(name string) Option {
	return func(c *Client) {
		c.chain = name
	}
}

// WithRunHolder replaces run.Default, mostly for tests.
func WithRunHolder(h *run.Holder) Option {
	return func(c *Client) {
		c.holder = h
	}
}

// WithLogger sets a structured logger for the sessions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(cfg *session.Configuration, opts ...Option) *Client {
	c := &Client{
		config: cfg,
		chain:  session.DefaultChain,
		holder: run.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = cfg.Logger()
	}
	return c
}

// Execute runs the task registered under name with args as a new execution.
func (c *Client) Execute(ctx context.Context, name string, args ...any) (any, error) {
	return c.ExecuteTask(ctx, domain.NewTask(name, nil), domain.NewExecution(args...))
}

// ExecuteTask runs task with an explicit execution. Task.Config and a
// stable execution id make results cacheable across runs.
func (c *Client) ExecuteTask(ctx context.Context, task domain.Task, execution domain.Execution) (any, error) {
	s, err := session.New(task, execution, c.config,
		session.WithChain(c.chain),
		session.WithRunHolder(c.holder),
		session.WithLogger(c.logger.With("task", task.Name)))
	if err != nil {
		return nil, err
	}
	return s.Initiate(ctx)
}

// Close releases resources held by the configuration's advices and
// extensions.
func (c *Client) Close() error {
	return c.config.Close()
}

// Task registers fn under name in the default task registry.
func Task(name string, fn registry.TaskFunc) {
	registry.Register(name, fn)
}

// ContinueIfRequested turns the running binary into a bundle: when it was
// started with the runner flags, it continues the session and exits.
func ContinueIfRequested() {
	args := os.Args[1:]
	if runner.Requested(args) {
		os.Exit(runner.Main(args))
	}
}
