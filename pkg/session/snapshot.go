package session

import (
	"bytes"
	"fmt"
	"io"

	"github.com/kant-ai/bandsaw/pkg/domain"
	"github.com/kant-ai/bandsaw/pkg/serialization"
)

// SnapshotVersion is written into every snapshot. Readers ignore unknown
// fields, so newer writers stay readable by older runners.
const SnapshotVersion = 1

// Snapshot is the persisted form of a session.
type Snapshot struct {
	Version       int              `json:"version" yaml:"version"`
	Configuration string           `json:"configuration" yaml:"configuration"`
	AdviceChain   string           `json:"advice_chain" yaml:"advice_chain"`
	RunID         string           `json:"run_id" yaml:"run_id"`
	Task          map[string]any   `json:"task" yaml:"task"`
	Execution     domain.Execution `json:"execution" yaml:"execution"`
	Context       *domain.Context  `json:"context" yaml:"context"`
	Moderator     map[string]any   `json:"moderator" yaml:"moderator"`
	Result        *domain.Result   `json:"result,omitempty" yaml:"result,omitempty"`
}

func (s *Session) snapshot() *Snapshot {
	return &Snapshot{
		Version:       SnapshotVersion,
		Configuration: s.config.Name(),
		AdviceChain:   s.chain,
		RunID:         s.runID,
		Task:          s.task.Serialized(),
		Execution:     s.execution,
		Context:       s.context,
		Moderator:     s.moderator.Serialized(),
		Result:        s.result,
	}
}

// ReadSnapshot decodes a snapshot. With a nil serializer the format is
// detected from the content: a document starting with '{' is JSON, anything
// else YAML.
func ReadSnapshot(r io.Reader, serializer serialization.Serializer) (*Snapshot, error) {
	if serializer == nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			serializer = serialization.NewJSON()
		} else {
			serializer = serialization.NewYAML()
		}
		r = bytes.NewReader(data)
	}
	var snap Snapshot
	if err := serializer.Deserialize(r, &snap); err != nil {
		return nil, err
	}
	if snap.Context == nil {
		snap.Context = domain.NewContext()
	}
	return &snap, nil
}
