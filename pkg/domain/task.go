package domain

import "github.com/kant-ai/bandsaw/pkg/serialization"

// Task identifies a unit of work. Name resolves the function in the task
// registry, ID is the stable identity used for keying results (defaults to Name).
type Task struct {
	ID     string         `json:"id" yaml:"id" mapstructure:"id"`
	Name   string         `json:"name" yaml:"name" mapstructure:"name"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
}

// NewTask returns a task for the registered function name.
func NewTask(name string, config map[string]any) Task {
	return Task{ID: name, Name: name, Config: config}
}

// CacheEnabled is false only when the task was configured with cache: false.
func (t Task) CacheEnabled() bool {
	if v, ok := t.Config["cache"].(bool); ok {
		return v
	}
	return true
}

func (t Task) Serialized() map[string]any {
	cfg := t.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return map[string]any{
		"id":     t.ID,
		"name":   t.Name,
		"config": cfg,
	}
}

// TaskFromSerialized rebuilds a Task from the output of Serialized.
func TaskFromSerialized(values map[string]any) (Task, error) {
	var t Task
	if err := serialization.Decode(values, &t); err != nil {
		return Task{}, err
	}
	if t.ID == "" {
		t.ID = t.Name
	}
	return t, nil
}
