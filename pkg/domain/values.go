package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Values restored from a snapshot are plain data: strings, bools, nil,
// int (integral numbers), float64, []any and map[string]any. Inside a Context,
// nested mappings come back as *Context instead of map[string]any.

func newJSONDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

// DecodeJSONValue decodes a single JSON document into plain data.
func DecodeJSONValue(data []byte) (any, error) {
	return readJSONValue(newJSONDecoder(data), false)
}

func readJSONValue(dec *json.Decoder, contexts bool) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return readJSONToken(dec, tok, contexts)
}

func readJSONToken(dec *json.Decoder, tok json.Token, contexts bool) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			if contexts {
				c := NewContext()
				if err := c.readJSONObject(dec); err != nil {
					return nil, err
				}
				return c, nil
			}
			m := make(map[string]any)
			for dec.More() {
				key, err := readJSONKey(dec)
				if err != nil {
					return nil, err
				}
				v, err := readJSONValue(dec, false)
				if err != nil {
					return nil, err
				}
				m[key] = v
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			list := make([]any, 0)
			for dec.More() {
				v, err := readJSONValue(dec, false)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected JSON delimiter %q", t)
	case json.Number:
		return normalizeNumber(t), nil
	default:
		return t, nil
	}
}

func readJSONKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		return i
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return f
}

// DecodeYAMLValue converts a YAML node into plain data.
func DecodeYAMLValue(n *yaml.Node) (any, error) {
	return decodeYAMLNode(n, false)
}

func decodeYAMLNode(n *yaml.Node, contexts bool) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decodeYAMLNode(n.Content[0], contexts)
	case yaml.AliasNode:
		return decodeYAMLNode(n.Alias, contexts)
	case yaml.MappingNode:
		if contexts {
			c := NewContext()
			if err := c.readYAMLMapping(n); err != nil {
				return nil, err
			}
			return c, nil
		}
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := decodeYAMLNode(n.Content[i+1], false)
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := decodeYAMLNode(item, false)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
