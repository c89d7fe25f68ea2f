package domain

import (
	"errors"
	"fmt"
)

// ErrSessionFinished is returned when Proceed is called on a session whose chain already finished.
var ErrSessionFinished = errors.New("session already finished")

// ErrContextOverwrite is returned when a Context key that already holds a value is assigned again.
var ErrContextOverwrite = errors.New("overwriting values in Context is not supported")

// ErrContextDelete is returned for every attempt to delete a Context key.
var ErrContextDelete = errors.New("deleting values from Context is not supported")

// ContextWriteError reports a violation of the write-once rule of a Context.
type ContextWriteError struct {
	Key string
	Err error
}

func (e *ContextWriteError) Error() string {
	return fmt.Sprintf("context key %q: %v", e.Key, e.Err)
}

func (e *ContextWriteError) Unwrap() error { return e.Err }

// AdviceNotProceededError is a chain-contract violation: the named advice
// returned from one of its hooks without the chain moving on.
type AdviceNotProceededError struct {
	Advice string
	Phase  string // "before" or "after"
}

func (e *AdviceNotProceededError) Error() string {
	return fmt.Sprintf("not all advices proceeded: advice %s did not call proceed in its %s step", e.Advice, e.Phase)
}

// ConfigurationNotFoundError is returned when a snapshot references a configuration
// that is not registered in this process.
type ConfigurationNotFoundError struct {
	Name string
}

func (e *ConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("configuration not registered: %q", e.Name)
}

// ChainNotFoundError is returned when an advice chain name cannot be resolved.
type ChainNotFoundError struct {
	Configuration string
	Chain         string
}

func (e *ChainNotFoundError) Error() string {
	return fmt.Sprintf("advice chain %q not found in configuration %q", e.Chain, e.Configuration)
}

// TaskNotFoundError is returned when no function is registered for a task name.
type TaskNotFoundError struct {
	Name string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not registered: %q", e.Name)
}

// TransportError is returned when copying to/from or executing on a remote fails.
// ExitCode is -1 when the transport did not report a status.
type TransportError struct {
	Op       string
	Host     string
	ExitCode int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport %s on %s failed with exit status %d: %v", e.Op, e.Host, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("transport %s on %s failed with exit status %d", e.Op, e.Host, e.ExitCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TaskError is the failure of a task that was executed in another process.
// Only the type name and message of the original error survive the snapshot.
type TaskError struct {
	Type    string
	Message string
}

func (e *TaskError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}
