package domain

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when a YAML document decodes to something other
// than a mapping (a list or a bare scalar).
var ErrNotMapping = errors.New("document is not a mapping")

// Document is a decoded YAML mapping that keeps the order its top-level keys
// appeared in the source. Group membership is derived from that order, so a
// plain Go map is not enough.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument returns an empty document
func NewDocument() *Document {
	return &Document{values: make(map[string]any)}
}

// ParseDocument decodes raw YAML. Empty and null documents decode to an
// empty Document.
func ParseDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	doc := NewDocument()
	if err := doc.UnmarshalYAML(&root); err != nil {
		return nil, err
	}
	return doc, nil
}

// Keys returns the top-level keys in source order
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

// Get returns the value stored under key
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Len returns the number of top-level keys
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Map returns a shallow copy of the top-level mapping
func (d *Document) Map() map[string]any {
	out := make(map[string]any, d.Len())
	if d == nil {
		return out
	}
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Document) UnmarshalYAML(value *yaml.Node) error {
	d.keys = nil
	d.values = make(map[string]any)

	node := value
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		node = node.Content[0]
	}
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}

	switch node.Kind {
	case 0:
		return nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		return ErrNotMapping
	case yaml.MappingNode:
	default:
		return ErrNotMapping
	}

	// Decoding the whole mapping first resolves merge keys and aliases.
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}

	seen := make(map[string]bool, len(raw))
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, ok := raw[key]; !ok || seen[key] {
			continue
		}
		seen[key] = true
		d.keys = append(d.keys, key)
	}

	var merged []string
	for key := range raw {
		if !seen[key] {
			merged = append(merged, key)
		}
	}
	sort.Strings(merged)
	d.keys = append(d.keys, merged...)

	for key, v := range raw {
		d.values[key] = Normalize(v)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler, preserving key order
func (d *Document) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range d.keys {
		var kn, vn yaml.Node
		if err := kn.Encode(key); err != nil {
			return nil, err
		}
		if err := vn.Encode(d.values[key]); err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", key, err)
		}
		node.Content = append(node.Content, &kn, &vn)
	}
	return node, nil
}

// Normalize converts nested map[interface{}]interface{} values produced by
// the YAML decoder into map[string]any so they can be JSON encoded.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	default:
		return v
	}
}
