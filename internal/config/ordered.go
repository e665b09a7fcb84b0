package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"

	"gopkg.in/yaml.v3"
)

// OrderedMap is a string-keyed mapping that remembers declaration order.
//
// Pipeline documents rely on key order: the first dependency of a stage is
// what $< expands to, and prerequisites are emitted in declared order. Go maps
// lose that, so mappings in the document decode into OrderedMap instead.
// Keys declared more than once are kept at their first position and reported
// by Duplicates.
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
	dups   []string
}

// NewOrderedMap builds a map from parallel key and value slices.
func NewOrderedMap[V any](keys []string, values []V) OrderedMap[V] {
	var m OrderedMap[V]
	for i, k := range keys {
		m.add(k, values[i])
	}
	return m
}

// Len returns the number of distinct keys.
func (m OrderedMap[V]) Len() int { return len(m.keys) }

// IsZero reports whether the map is empty. encoding/json (omitzero) and
// yaml.v3 (omitempty) consult it.
func (m OrderedMap[V]) IsZero() bool { return len(m.keys) == 0 }

// Keys returns the keys in declaration order.
func (m OrderedMap[V]) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored for key.
func (m OrderedMap[V]) Get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m OrderedMap[V]) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// All iterates the entries in declaration order.
func (m OrderedMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// Duplicates returns keys that were declared more than once, in the order the
// repeats were seen.
func (m OrderedMap[V]) Duplicates() []string {
	out := make([]string, len(m.dups))
	copy(out, m.dups)
	return out
}

// Set inserts or replaces key. A new key is appended at the end.
func (m *OrderedMap[V]) Set(key string, v V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// add is Set for decoding: a repeated key is recorded, not overwritten.
func (m *OrderedMap[V]) add(key string, v V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; ok {
		m.dups = append(m.dups, key)
		return
	}
	m.keys = append(m.keys, key)
	m.values[key] = v
}

// UnmarshalJSON decodes a JSON object, keeping member order.
func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	*m = OrderedMap[V]{}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", keyTok)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
		m.add(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the map as a JSON object in declaration order.
func (m OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a YAML mapping, keeping key order.
func (m *OrderedMap[V]) UnmarshalYAML(node *yaml.Node) error {
	*m = OrderedMap[V]{}

	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var v V
		if err := valNode.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %q: %w", valNode.Line, keyNode.Value, err)
		}
		m.add(keyNode.Value, v)
	}
	return nil
}

// MarshalYAML encodes the map as a YAML mapping in declaration order.
func (m OrderedMap[V]) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		var val yaml.Node
		if err := val.Encode(m.values[k]); err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val,
		)
	}
	return node, nil
}
