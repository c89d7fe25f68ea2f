package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Failure describes a failed task in a form that survives serialization.
type Failure struct {
	Type    string `json:"type" yaml:"type"`
	Message string `json:"message" yaml:"message"`
}

// Result is the outcome of a task: a value or a failure.
type Result struct {
	Value   any
	Failure *Failure

	// err is the original error while the result stays in-process.
	err error
}

// Success wraps a task value.
func Success(value any) *Result {
	return &Result{Value: value}
}

// Failed wraps a task error.
func Failed(err error) *Result {
	return &Result{
		Failure: &Failure{Type: strings.TrimPrefix(fmt.Sprintf("%T", err), "*"), Message: err.Error()},
		err:     err,
	}
}

func (r *Result) Succeeded() bool { return r != nil && r.Failure == nil }

// Err returns the task error, or nil on success. After a result traveled
// through a snapshot only a *TaskError is available.
func (r *Result) Err() error {
	if r == nil || r.Failure == nil {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return &TaskError{Type: r.Failure.Type, Message: r.Failure.Message}
}

func (r *Result) Serialized() map[string]any {
	if r.Failure != nil {
		return map[string]any{"failure": map[string]any{
			"type":    r.Failure.Type,
			"message": r.Failure.Message,
		}}
	}
	return map[string]any{"value": r.Value}
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Serialized())
}

func (r *Result) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSONValue(data)
	if err != nil {
		return err
	}
	return r.fromValue(v)
}

func (r *Result) MarshalYAML() (any, error) {
	return r.Serialized(), nil
}

func (r *Result) UnmarshalYAML(node *yaml.Node) error {
	v, err := DecodeYAMLValue(node)
	if err != nil {
		return err
	}
	return r.fromValue(v)
}

func (r *Result) fromValue(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("result must be a mapping, got %T", v)
	}
	*r = Result{}
	if f, ok := m["failure"].(map[string]any); ok {
		typ, _ := f["type"].(string)
		msg, _ := f["message"].(string)
		r.Failure = &Failure{Type: typ, Message: msg}
		return nil
	}
	r.Value = m["value"]
	return nil
}
