package serialization

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serializer writes values to and reads them from byte streams.
type Serializer interface {
	Serialize(w io.Writer, v any) error
	Deserialize(r io.Reader, v any) error
	// Extension is the file extension used for files in this format, without dot.
	Extension() string
}

// JSON is the default serializer.
type JSON struct {
	// Indent is used for nested levels. Empty means compact output.
	Indent string
}

// NewJSON returns a JSON serializer with two-space indentation.
func NewJSON() *JSON {
	return &JSON{Indent: "  "}
}

func (s *JSON) Serialize(w io.Writer, v any) error {
	if value, ok := v.(Value); ok {
		v = value.Serialized()
	}
	enc := json.NewEncoder(w)
	if s.Indent != "" {
		enc.SetIndent("", s.Indent)
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

func (s *JSON) Deserialize(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}

func (s *JSON) Extension() string { return "json" }

// YAML serializes with gopkg.in/yaml.v3.
type YAML struct{}

func NewYAML() *YAML { return &YAML{} }

func (s *YAML) Serialize(w io.Writer, v any) error {
	if value, ok := v.(Value); ok {
		v = value.Serialized()
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func (s *YAML) Deserialize(r io.Reader, v any) error {
	if err := yaml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode yaml: %w", err)
	}
	return nil
}

func (s *YAML) Extension() string { return "yaml" }

// ForName returns the serializer registered under a format name ("json", "yaml").
func ForName(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return NewJSON(), nil
	case "yaml", "yml":
		return NewYAML(), nil
	}
	return nil, fmt.Errorf("unknown serialization format: %q", name)
}
