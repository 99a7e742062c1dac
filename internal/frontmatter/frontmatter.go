// Package frontmatter reads and writes the YAML metadata block at the head of
// a Markdown note.
//
// Keys keep their order and each value is held as a yaml.Node, so keys the
// program does not understand are written back exactly as they were read.
package frontmatter

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Map is an ordered map of frontmatter keys to YAML values.
// The zero value is an empty map ready to use.
type Map struct {
	keys  []string
	nodes map[string]*yaml.Node
}

// New returns an empty Map.
func New() *Map {
	return &Map{}
}

// FromPairs builds a Map from alternating keys and values.
// It panics on a non-string key or a value that cannot be encoded; it is
// meant for literals.
func FromPairs(kv ...any) *Map {
	m := New()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("frontmatter: key %v is not a string", kv[i]))
		}
		if err := m.Set(key, kv[i+1]); err != nil {
			panic(err)
		}
	}
	return m
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Has reports whether key is present, even with a null value.
func (m *Map) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.nodes[key]
	return ok
}

// Lookup decodes the value under key into a plain Go value
// (string, int, float64, bool, []any, map[string]any or nil).
func (m *Map) Lookup(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	n, ok := m.nodes[key]
	if !ok {
		return nil, false
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return n.Value, true
	}
	return v, true
}

// Node returns the YAML node stored under key.
func (m *Map) Node(key string) (*yaml.Node, bool) {
	if m == nil {
		return nil, false
	}
	n, ok := m.nodes[key]
	return n, ok
}

// Set encodes v and stores it under key. New keys are appended; existing
// keys keep their position.
func (m *Map) Set(key string, v any) error {
	n := new(yaml.Node)
	if err := n.Encode(v); err != nil {
		return fmt.Errorf("frontmatter: encode %q: %w", key, err)
	}
	m.SetNode(key, n)
	return nil
}

// SetNode stores n under key verbatim.
func (m *Map) SetNode(key string, n *yaml.Node) {
	if m.nodes == nil {
		m.nodes = make(map[string]*yaml.Node)
	}
	if _, ok := m.nodes[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.nodes[key] = n
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if _, ok := m.nodes[key]; !ok {
		return
	}
	delete(m.nodes, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Clear removes every key.
func (m *Map) Clear() {
	m.keys = nil
	m.nodes = nil
}

// Clone returns a copy sharing no key list with m. Nodes are shared; they are
// never mutated in place.
func (m *Map) Clone() *Map {
	c := New()
	for _, k := range m.Keys() {
		c.SetNode(k, m.nodes[k])
	}
	return c
}

// ToMap decodes every value into a plain map.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, m.Len())
	for _, k := range m.Keys() {
		out[k], _ = m.Lookup(k)
	}
	return out
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Map) UnmarshalYAML(n *yaml.Node) error {
	m.Clear()
	return m.fromNode(n)
}

func (m *Map) fromNode(n *yaml.Node) error {
	switch n.Kind {
	case 0:
		// empty block
		return nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return m.fromNode(n.Content[0])
	case yaml.ScalarNode:
		if n.Tag == "!!null" || n.Value == "" {
			return nil
		}
		return fmt.Errorf("frontmatter: expected a mapping, got scalar %q", n.Value)
	case yaml.MappingNode:
	default:
		return fmt.Errorf("frontmatter: expected a mapping at line %d", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return fmt.Errorf("frontmatter: non-scalar key at line %d", k.Line)
		}
		m.SetNode(k.Value, v)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m *Map) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.Keys() {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			m.nodes[k],
		)
	}
	return root, nil
}

// Document is a note split into its metadata block and the text after it.
type Document struct {
	Meta *Map
	Body []byte
}

// Parse splits content into its frontmatter and body. Content without a
// leading "---" line has an empty Meta and is entirely Body.
func Parse(content []byte) (*Document, error) {
	block, body, ok := split(content)
	doc := &Document{Meta: New(), Body: body}
	if !ok {
		return doc, nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(block, &root); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	if err := doc.Meta.fromNode(&root); err != nil {
		return nil, err
	}
	return doc, nil
}

// Bytes renders the document back to note content. The body is written
// untouched; an empty Meta produces no frontmatter block.
func (d *Document) Bytes() ([]byte, error) {
	if d.Meta.Len() == 0 {
		return append([]byte(nil), d.Body...), nil
	}
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.Meta); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	buf.WriteString(delimiter + "\n")
	buf.Write(d.Body)
	return buf.Bytes(), nil
}

// split finds a "---" opening line and the matching "---" or "..." closing
// line. An unterminated block is treated as no frontmatter at all.
func split(content []byte) (block, body []byte, ok bool) {
	first, rest, _ := cutLine(content)
	if string(trimCR(first)) != delimiter {
		return nil, content, false
	}
	offset := len(content) - len(rest)
	for len(rest) > 0 {
		line, next, _ := cutLine(rest)
		l := string(trimCR(line))
		if l == delimiter || l == "..." {
			end := len(content) - len(rest)
			return content[offset:end], next, true
		}
		rest = next
	}
	return nil, content, false
}

func cutLine(b []byte) (line, rest []byte, found bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil, false
	}
	return b[:i], b[i+1:], true
}

func trimCR(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte("\r"))
}
