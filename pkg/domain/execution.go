package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Execution is one invocation of a task with concrete arguments.
type Execution struct {
	ID   string `json:"id" yaml:"id"`
	Args []any  `json:"args" yaml:"args"`
}

// NewExecution creates an execution with a random id.
func NewExecution(args ...any) Execution {
	return Execution{ID: uuid.NewString(), Args: args}
}

func (e Execution) Serialized() map[string]any {
	args := e.Args
	if args == nil {
		args = []any{}
	}
	return map[string]any{"id": e.ID, "args": args}
}

func (e Execution) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Serialized())
}

func (e *Execution) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSONValue(data)
	if err != nil {
		return err
	}
	return e.fromValue(v)
}

func (e Execution) MarshalYAML() (any, error) {
	return e.Serialized(), nil
}

func (e *Execution) UnmarshalYAML(node *yaml.Node) error {
	v, err := DecodeYAMLValue(node)
	if err != nil {
		return err
	}
	return e.fromValue(v)
}

func (e *Execution) fromValue(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("execution must be a mapping, got %T", v)
	}
	id, _ := m["id"].(string)
	if id == "" {
		return fmt.Errorf("execution is missing its id")
	}
	*e = Execution{ID: id}
	switch args := m["args"].(type) {
	case nil:
	case []any:
		e.Args = args
	default:
		return fmt.Errorf("execution args must be a list, got %T", args)
	}
	return nil
}
