// Package yamlfile reads and writes YAML translation files.
//
// The expected file format is a YAML map with scalar leaves, flat or nested:
//
//	greeting: Hello
//	nav:
//	  home: Home
//	  about: About
//
// Nested maps are read into dot-joined keys (nav.home) in document order and
// written back nested. Numbers and booleans are read as their literal text,
// null as "". Sequences are rejected.
package yamlfile

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/i18ncms/keypath"
)

// File is a parsed YAML translation file.
type File struct {
	keys   []string
	values map[string]string
}

// New returns a file holding keys in order with their values.
func New(keys []string, values map[string]string) *File {
	f := &File{values: make(map[string]string, len(keys))}
	for _, k := range keys {
		f.set(k, values[k])
	}
	return f
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse parses YAML data into a File.
func Parse(data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	f := &File{values: make(map[string]string)}

	// yaml.Unmarshal wraps the document in a DocumentNode.
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return f, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return f, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("YAML root must be a mapping, got kind %d", root.Kind)
	}
	if err := f.collect(root, ""); err != nil {
		return nil, err
	}
	return f, nil
}

// collect walks a mapping node and records its leaves.
func (f *File) collect(node *yaml.Node, prefix string) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		path := keypath.Join(prefix, keyNode.Value)

		if valNode.Kind == yaml.AliasNode {
			valNode = valNode.Alias
		}
		switch valNode.Kind {
		case yaml.MappingNode:
			if err := f.collect(valNode, path); err != nil {
				return err
			}
		case yaml.ScalarNode:
			if valNode.Tag == "!!null" {
				f.set(path, "")
				continue
			}
			f.set(path, valNode.Value)
		default:
			return fmt.Errorf("unsupported YAML value for key %q at line %d", path, valNode.Line)
		}
	}
	return nil
}

func (f *File) set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// ---------------------------------------------------------------------------
// Querying
// ---------------------------------------------------------------------------

// Keys returns all entry paths in document order.
func (f *File) Keys() []string { return f.keys }

// Get returns the current value for the given path.
func (f *File) Get(path string) (string, bool) {
	v, ok := f.values[path]
	return v, ok
}

// Values returns the path → value map. Callers must not modify it.
func (f *File) Values() map[string]string { return f.values }

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Marshal serialises the file as nested YAML with 2-space indentation.
// Every leaf is written as a string.
func (f *File) Marshal() ([]byte, error) {
	root, err := keypath.Build(f.keys, f.values)
	if err != nil {
		return nil, err
	}
	if len(root.Children) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toNode(root)); err != nil {
		return nil, fmt.Errorf("marshaling YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshaling YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func toNode(n *keypath.Node) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, c := range n.Children {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Name}
		var val *yaml.Node
		if c.IsLeaf() {
			// The explicit tag makes the encoder quote values like "true" or "12".
			val = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Value}
		} else {
			val = toNode(c)
		}
		m.Content = append(m.Content, key, val)
	}
	return m
}
