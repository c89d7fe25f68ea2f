package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Context is an insertion-ordered, write-once mapping that advices and
// extensions use to share data along a session. It travels with the session
// snapshot, so values should be plain data.
//
// Reading a missing key with Get creates an empty child Context under that key,
// which lets callers write nested values without checking for existence:
//
//	ctx.Get("timestamps").(*Context).Set("started", now)
type Context struct {
	keys   []string
	values map[string]any
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

func (c *Context) init() {
	if c.values == nil {
		c.values = make(map[string]any)
	}
}

// Get returns the value stored under key. A missing key is populated with a
// fresh empty *Context, which is returned and kept for subsequent calls.
func (c *Context) Get(key string) any {
	c.init()
	if v, ok := c.values[key]; ok {
		return v
	}
	child := NewContext()
	c.keys = append(c.keys, key)
	c.values[key] = child
	return child
}

// Child is Get for callers that expect a nested Context.
func (c *Context) Child(key string) (*Context, error) {
	v := c.Get(key)
	child, ok := v.(*Context)
	if !ok {
		return nil, fmt.Errorf("context key %q holds %T, not a context", key, v)
	}
	return child, nil
}

// Lookup reads key without creating it.
func (c *Context) Lookup(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set stores value under key. Keys can only be written once.
func (c *Context) Set(key string, value any) error {
	c.init()
	if _, ok := c.values[key]; ok {
		return &ContextWriteError{Key: key, Err: ErrContextOverwrite}
	}
	c.keys = append(c.keys, key)
	c.values[key] = value
	return nil
}

// Delete always fails; values can't be removed from a Context.
func (c *Context) Delete(key string) error {
	return &ContextWriteError{Key: key, Err: ErrContextDelete}
}

// Keys returns the keys in insertion order.
func (c *Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

func (c *Context) Len() int { return len(c.keys) }

// Range calls fn for every entry in insertion order until fn returns false.
func (c *Context) Range(fn func(key string, value any) bool) {
	for _, k := range c.keys {
		if !fn(k, c.values[k]) {
			return
		}
	}
}

// Attributes returns a plain map copy. Nested contexts are converted as well.
func (c *Context) Attributes() map[string]any {
	out := make(map[string]any, len(c.keys))
	for _, k := range c.keys {
		v := c.values[k]
		if child, ok := v.(*Context); ok {
			out[k] = child.Attributes()
			continue
		}
		out[k] = v
	}
	return out
}

// Equal reports whether other is a *Context holding the same attributes.
// A Context is never equal to a value of any other type.
func (c *Context) Equal(other any) bool {
	o, ok := other.(*Context)
	if !ok || o == nil || c == nil {
		return ok && o == c
	}
	if len(c.keys) != len(o.keys) {
		return false
	}
	for _, k := range c.keys {
		ov, exists := o.values[k]
		if !exists {
			return false
		}
		v := c.values[k]
		if child, ok := v.(*Context); ok {
			if !child.Equal(ov) {
				return false
			}
			continue
		}
		if _, ok := ov.(*Context); ok {
			return false
		}
		if !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

func (c *Context) String() string {
	return fmt.Sprintf("Context%v", c.Attributes())
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (c *Context) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c.values[k])
		if err != nil {
			return nil, fmt.Errorf("context key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the contents with the decoded object.
// Nested objects become nested contexts.
func (c *Context) UnmarshalJSON(data []byte) error {
	dec := newJSONDecoder(data)
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = Context{values: make(map[string]any)}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("context must be a JSON object, got %v", tok)
	}
	*c = Context{values: make(map[string]any)}
	return c.readJSONObject(dec)
}

// readJSONObject reads entries up to and including the closing brace.
func (c *Context) readJSONObject(dec *json.Decoder) error {
	for dec.More() {
		key, err := readJSONKey(dec)
		if err != nil {
			return err
		}
		v, err := readJSONValue(dec, true)
		if err != nil {
			return err
		}
		if err := c.Set(key, v); err != nil {
			return err
		}
	}
	_, err := dec.Token()
	return err
}

// MarshalYAML returns an ordered mapping node.
func (c *Context) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range c.keys {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		valNode := &yaml.Node{}
		if err := valNode.Encode(c.values[k]); err != nil {
			return nil, fmt.Errorf("context key %q: %w", k, err)
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// UnmarshalYAML replaces the contents with the decoded mapping.
func (c *Context) UnmarshalYAML(value *yaml.Node) error {
	*c = Context{values: make(map[string]any)}
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		return nil
	}
	return c.readYAMLMapping(value)
}

func (c *Context) readYAMLMapping(n *yaml.Node) error {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("context must be a YAML mapping, line %d", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		v, err := decodeYAMLNode(n.Content[i+1], true)
		if err != nil {
			return err
		}
		if err := c.Set(n.Content[i].Value, v); err != nil {
			return err
		}
	}
	return nil
}
