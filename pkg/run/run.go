package run

import (
	"encoding/json"
	"os"
	"strings"
)

// Run describes one top-level run of a process: everything that happens under
// a single run id, possibly across several hosts.
type Run struct {
	ID        string            `json:"id"`
	StartDate string            `json:"start_date"`
	User      string            `json:"user"`
	Command   []string          `json:"command"`
	Env       map[string]string `json:"env"`
	Meta      map[string]any    `json:"meta"`
}

// New describes a run of the current process.
func New(id string) *Run {
	return &Run{
		ID:        id,
		StartDate: CurrentTimestamp(),
		User:      CurrentUser(),
		Command:   append([]string(nil), os.Args...),
		Env:       environ(),
		Meta:      map[string]any{},
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env
}

// ToJSON returns the JSON document of the run.
func (r *Run) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a run previously written by ToJSON.
func FromJSON(data []byte) (*Run, error) {
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
