package serialization

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Value is implemented by types that describe themselves as a plain map.
// The map must only contain data the active Serializer can represent.
type Value interface {
	Serialized() map[string]any
}

// Decode fills out from a serialized map. Field names follow `mapstructure`
// tags; numbers and strings are converted weakly so that values decoded by
// any codec (float64 from JSON, int from YAML) are accepted.
func Decode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to decode %T: %w", out, err)
	}
	return nil
}
