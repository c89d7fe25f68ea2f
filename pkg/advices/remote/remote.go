package remote

import (
	"fmt"

	"github.com/kant-ai/bandsaw/pkg/run"
	"github.com/kant-ai/bandsaw/pkg/serialization"
)

const (
	DefaultPort      = 22
	DefaultDirectory = "/tmp"
)

// Remote is a machine sessions can be moved to.
type Remote struct {
	Host string `mapstructure:"host" json:"host" yaml:"host"`
	// Port of the ssh daemon. Defaults to 22.
	Port int `mapstructure:"port" json:"port" yaml:"port"`
	// User to log in as. Defaults to the current user.
	User    string `mapstructure:"user" json:"user" yaml:"user"`
	KeyFile string `mapstructure:"key_file" json:"key_file,omitempty" yaml:"key_file,omitempty"`
	// Directory on the remote where the bundle and snapshots are stored.
	// Defaults to /tmp.
	Directory string `mapstructure:"directory" json:"directory" yaml:"directory"`
	// Executable is an optional program the bundle is started with, e.g. a
	// wrapper that sets up the environment. Empty runs the bundle directly.
	Executable string `mapstructure:"executable" json:"executable,omitempty" yaml:"executable,omitempty"`
}

// WithDefaults fills unset optional fields and validates the remote.
func (r Remote) WithDefaults() (Remote, error) {
	if r.Host == "" {
		return Remote{}, fmt.Errorf("remote needs a host")
	}
	if r.Port == 0 {
		r.Port = DefaultPort
	}
	if r.User == "" {
		r.User = run.CurrentUser()
	}
	if r.Directory == "" {
		r.Directory = DefaultDirectory
	}
	return r, nil
}

// Login is the destination in the form <user>@<host>.
func (r Remote) Login() string {
	if r.User == "" {
		return r.Host
	}
	return r.User + "@" + r.Host
}

// FromMap decodes a remote from configuration values.
func FromMap(values map[string]any) (Remote, error) {
	var r Remote
	if err := serialization.Decode(values, &r); err != nil {
		return Remote{}, err
	}
	return r.WithDefaults()
}
