package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/distribution"
	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/registry"
	"github.com/kant-ai/bandsaw/pkg/serialization"
)

// DefaultChain is the name of the chain used when a session doesn't pick one.
const DefaultChain = "default"

// Configuration owns the named advice chains, the extensions and the
// collaborators of a set of sessions. Snapshots refer to it by name, so every
// process that continues a session must register an equivalent configuration.
type Configuration struct {
	name         string
	chains       map[string][]Advice
	extensions   []Extension
	serializer   serialization.Serializer
	distribution distribution.Distribution
	tasks        *registry.Registry
	logger       *slog.Logger
}

// ConfigOption configures a Configuration.
type ConfigOption func(*Configuration)

// WithAdviceChain adds a named chain of advices.
func WithAdviceChain(name string, advices ...Advice) ConfigOption {
	return func(c *Configuration) {
		c.AddAdviceChain(name, advices...)
	}
}

// WithExtension appends an extension.
func WithExtension(ext Extension) ConfigOption {
	return func(c *Configuration) {
		c.AddExtension(ext)
	}
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer(s serialization.Serializer) ConfigOption {
	return func(c *Configuration) {
		c.serializer = s
	}
}

// WithDistribution sets the bundle shipped to other hosts.
func WithDistribution(d distribution.Distribution) ConfigOption {
	return func(c *Configuration) {
		c.distribution = d
	}
}

// WithTaskRegistry sets the registry tasks are resolved in.
func WithTaskRegistry(r *registry.Registry) ConfigOption {
	return func(c *Configuration) {
		c.tasks = r
	}
}

// WithConfigLogger sets the logger handed to sessions of this configuration.
func WithConfigLogger(logger *slog.Logger) ConfigOption {
	return func(c *Configuration) {
		c.logger = logger
	}
}

// NewConfiguration creates a configuration with an empty default chain,
// JSON serialization, the running executable as distribution and the
// default task registry.
func NewConfiguration(name string, opts ...ConfigOption) *Configuration {
	c := &Configuration{
		name:         name,
		chains:       map[string][]Advice{DefaultChain: nil},
		serializer:   serialization.NewJSON(),
		distribution: distribution.Executable(),
		tasks:        registry.Default,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Configuration) Name() string { return c.name }

// AddAdviceChain registers advices under name, replacing an existing chain.
func (c *Configuration) AddAdviceChain(name string, advices ...Advice) *Configuration {
	c.chains[name] = append([]Advice(nil), advices...)
	return c
}

// AddExtension appends an extension.
func (c *Configuration) AddExtension(ext Extension) *Configuration {
	c.extensions = append(c.extensions, ext)
	return c
}

// Chain returns the advices registered under name.
func (c *Configuration) Chain(name string) ([]Advice, error) {
	advices, ok := c.chains[name]
	if !ok {
		return nil, &domain.ChainNotFoundError{Configuration: c.name, Chain: name}
	}
	return advices, nil
}

// ChainNames lists the chains in sorted order.
func (c *Configuration) ChainNames() []string {
	names := make([]string, 0, len(c.chains))
	for name := range c.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Configuration) Extensions() []Extension { return c.extensions }

// Close closes every advice and extension that implements io.Closer, e.g.
// to remove exchange directories. Closers must tolerate repeated calls since
// an advice can be part of several chains.
func (c *Configuration) Close() error {
	var errs []error
	for _, name := range c.ChainNames() {
		for _, advice := range c.chains[name] {
			if closer, ok := advice.(io.Closer); ok {
				errs = append(errs, closer.Close())
			}
		}
	}
	for _, ext := range c.extensions {
		if closer, ok := ext.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

func (c *Configuration) Serializer() serialization.Serializer { return c.serializer }

func (c *Configuration) Distribution() distribution.Distribution { return c.distribution }

func (c *Configuration) Tasks() *registry.Registry { return c.tasks }

func (c *Configuration) Logger() *slog.Logger { return c.logger }

var configurations = struct {
	mu sync.RWMutex
	m  map[string]*Configuration
}{m: make(map[string]*Configuration)}

// Register notifies the configuration's InitObservers and makes it
// available to Restore under its name. Registering a name again replaces
// the previous configuration.
func Register(cfg *Configuration) error {
	for _, ext := range cfg.extensions {
		if o, ok := ext.(InitObserver); ok {
			if err := o.OnInit(cfg); err != nil {
				return fmt.Errorf("failed to initialize extension %T: %w", ext, err)
			}
		}
	}
	configurations.mu.Lock()
	defer configurations.mu.Unlock()
	configurations.m[cfg.name] = cfg
	return nil
}

// Lookup returns the configuration registered under name.
func Lookup(name string) (*Configuration, error) {
	configurations.mu.RLock()
	defer configurations.mu.RUnlock()
	cfg, ok := configurations.m[name]
	if !ok {
		return nil, &domain.ConfigurationNotFoundError{Name: name}
	}
	return cfg, nil
}

// Unregister removes a configuration. Mostly useful in tests.
func Unregister(name string) {
	configurations.mu.Lock()
	defer configurations.mu.Unlock()
	delete(configurations.m, name)
}
