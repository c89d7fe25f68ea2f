// Package config loads the bandsaw settings from bandsaw.yaml, BANDSAW_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kant-ai/bandsaw/pkg/advices/remote"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variables, e.g. BANDSAW_LOG_LEVEL.
const EnvPrefix = "BANDSAW"

// FileName is the configuration file searched for without an explicit path.
const FileName = "bandsaw"

// Config holds typed configuration.
type Config struct {
	LogLevel   string
	Serializer string
	// Chain lists the advices of the default chain in order:
	// cache, goroutine or remote.
	Chain []string
	// Extensions lists enabled extensions: timestamps, metrics or tracing.
	Extensions []string
	// Transport selects the remote backend: ssh, http or local.
	Transport  string
	RemoteName string
	Remotes    map[string]remote.Remote
	Cache      Cache
	Agent      Agent
}

type Cache struct {
	Dir       string
	RedisAddr string
	Password  string
	DB        int
	Prefix    string
	TTL       time.Duration
	// EncryptionKey is a base64 AES-256 key. Entries are stored in clear
	// when empty.
	EncryptionKey string
	FallbackKeys  []string
}

type Agent struct {
	Addr string
	Root string
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log_level", "info")
	v.SetDefault("serializer", "json")
	v.SetDefault("transport", "ssh")
	v.SetDefault("cache.dir", ".bandsaw/cache")
	v.SetDefault("cache.prefix", "bandsaw:cache:")
	v.SetDefault("agent.addr", ":8750")
	v.SetDefault("agent.root", ".bandsaw/agent")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads path into v. An empty path searches bandsaw.yaml in the
// working directory and ~/.bandsaw; a missing file is not an error then.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.bandsaw")
		}
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		LogLevel:   v.GetString("log_level"),
		Serializer: v.GetString("serializer"),
		Chain:      v.GetStringSlice("chain"),
		Extensions: v.GetStringSlice("extensions"),
		Transport:  v.GetString("transport"),
		RemoteName: v.GetString("remote_name"),
		Remotes:    make(map[string]remote.Remote),
		Cache: Cache{
			Dir:       v.GetString("cache.dir"),
			RedisAddr: v.GetString("cache.redis_addr"),
			Password:  v.GetString("cache.password"),
			DB:        v.GetInt("cache.db"),
			Prefix:    v.GetString("cache.prefix"),
			TTL:       v.GetDuration("cache.ttl"),

			EncryptionKey: v.GetString("cache.encryption_key"),
			FallbackKeys:  v.GetStringSlice("cache.fallback_keys"),
		},
		Agent: Agent{
			Addr: v.GetString("agent.addr"),
			Root: v.GetString("agent.root"),
		},
	}

	var raw map[string]map[string]any
	if err := v.UnmarshalKey("remotes", &raw); err != nil {
		return Config{}, fmt.Errorf("invalid remotes: %w", err)
	}
	for name, values := range raw {
		r, err := remote.FromMap(values)
		if err != nil {
			return Config{}, fmt.Errorf("remote %q: %w", name, err)
		}
		cfg.Remotes[name] = r
	}
	return cfg, nil
}

// RemoteNames returns the names of the configured remotes, sorted.
func (c Config) RemoteNames() []string {
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
