package bandsaw

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kant-ai/bandsaw/internal/config"
	"github.com/kant-ai/bandsaw/internal/logging"
	"github.com/kant-ai/bandsaw/pkg/advices/cache"
	"github.com/kant-ai/bandsaw/pkg/advices/concurrent"
	"github.com/kant-ai/bandsaw/pkg/advices/remote"
	"github.com/kant-ai/bandsaw/pkg/extensions/metrics"
	"github.com/kant-ai/bandsaw/pkg/extensions/timestamps"
	"github.com/kant-ai/bandsaw/pkg/extensions/tracing"
	"github.com/kant-ai/bandsaw/pkg/registry"
	"github.com/kant-ai/bandsaw/pkg/serialization"
	"github.com/kant-ai/bandsaw/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// SettingsOption adjusts how LoadConfiguration builds a configuration.
type SettingsOption func(*settings)

type settings struct {
	registerer prometheus.Registerer
	tasks      *registry.Registry
	logger     *slog.Logger
}

// WithMetricsRegisterer is where the metrics extension registers its
// collectors. Defaults to prometheus.DefaultRegisterer.
func WithMetricsRegisterer(reg prometheus.Registerer) SettingsOption {
	return func(s *settings) {
		s.registerer = reg
	}
}

// WithTasks replaces the default task registry.
func WithTasks(r *registry.Registry) SettingsOption {
	return func(s *settings) {
		s.tasks = r
	}
}

// WithSettingsLogger replaces the logger built from log_level.
func WithSettingsLogger(logger *slog.Logger) SettingsOption {
	return func(s *settings) {
		s.logger = logger
	}
}

// LoadConfiguration builds the configuration name from the settings file at
// path (bandsaw.yaml is searched when empty) and registers it. Example:
//
//	serializer: json
//	chain: [cache, remote]
//	extensions: [timestamps, metrics]
//	transport: ssh
//	remotes:
//	  gpu: {host: gpu.example.com, user: ml, directory: /scratch}
//	cache:
//	  dir: .bandsaw/cache
func LoadConfiguration(name, path string, opts ...SettingsOption) (*session.Configuration, error) {
	v := config.New()
	if err := config.ReadFile(v, path); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	return buildConfiguration(name, cfg, opts...)
}

func buildConfiguration(name string, cfg config.Config, opts ...SettingsOption) (*session.Configuration, error) {
	s := settings{tasks: registry.Default}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		s.logger = logging.New(level)
	}

	serializer, err := serialization.ForName(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	var advices []session.Advice
	for _, adviceName := range cfg.Chain {
		advice, err := buildAdvice(adviceName, cfg, serializer, s.logger)
		if err != nil {
			return nil, err
		}
		advices = append(advices, advice)
	}

	configOpts := []session.ConfigOption{
		session.WithSerializer(serializer),
		session.WithTaskRegistry(s.tasks),
		session.WithConfigLogger(s.logger),
		session.WithAdviceChain(session.DefaultChain, advices...),
	}
	for _, extName := range cfg.Extensions {
		ext, err := buildExtension(extName, s)
		if err != nil {
			return nil, err
		}
		configOpts = append(configOpts, session.WithExtension(ext))
	}

	c := session.NewConfiguration(name, configOpts...)
	if err := session.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func encryptStore(store cache.Store, cfg config.Cache) (cache.Store, error) {
	active, err := cache.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("cache.encryption_key: %w", err)
	}
	enc := cache.EncryptionConfig{ActiveKey: active}
	for i, k := range cfg.FallbackKeys {
		key, err := cache.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("cache.fallback_keys[%d]: %w", i, err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	encrypted, err := cache.NewEncryptedStore(store, enc)
	if err != nil {
		return nil, err
	}
	return encrypted, nil
}

func buildAdvice(name string, cfg config.Config, serializer serialization.Serializer, logger *slog.Logger) (session.Advice, error) {
	switch strings.ToLower(name) {
	case "cache":
		var store cache.Store
		if cfg.Cache.RedisAddr != "" {
			store = cache.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB,
				cache.WithPrefix(cfg.Cache.Prefix), cache.WithTTL(cfg.Cache.TTL))
		} else {
			store = cache.NewFileStore(cfg.Cache.Dir, cache.WithSerializer(serializer))
		}
		if cfg.Cache.EncryptionKey != "" {
			encrypted, err := encryptStore(store, cfg.Cache)
			if err != nil {
				return nil, err
			}
			store = encrypted
		}
		return cache.New(store, cache.WithLogger(logger)), nil
	case "goroutine", "concurrent":
		return concurrent.New(concurrent.WithLogger(logger)), nil
	case "remote":
		backend, err := buildBackend(cfg.Transport, logger)
		if err != nil {
			return nil, err
		}
		a, err := remote.New(remote.WithBackend(backend), remote.WithRemoteName(cfg.RemoteName), remote.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		for _, remoteName := range cfg.RemoteNames() {
			if _, err := a.AddRemote(remoteName, cfg.Remotes[remoteName]); err != nil {
				return nil, err
			}
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown advice: %q", name)
}

func buildBackend(transport string, logger *slog.Logger) (remote.Backend, error) {
	switch strings.ToLower(transport) {
	case "", "ssh":
		return remote.NewCommandLineBackend(remote.WithBackendLogger(logger)), nil
	case "http":
		return remote.NewHTTPBackend(), nil
	case "https":
		return remote.NewHTTPBackend(remote.WithTLS()), nil
	case "local":
		return remote.NewLocalBackend(), nil
	}
	return nil, fmt.Errorf("unknown transport: %q", transport)
}

func buildExtension(name string, s settings) (session.Extension, error) {
	switch strings.ToLower(name) {
	case "timestamps":
		return timestamps.New(), nil
	case "metrics":
		return metrics.New(s.registerer)
	case "tracing":
		return tracing.New(), nil
	}
	return nil, fmt.Errorf("unknown extension: %q", name)
}
