// Package keypath handles dot-separated translation keys: "nav.home.title"
// names the value at nav → home → title when a file is stored nested.
package keypath

import (
	"fmt"
	"strings"
)

// Sep separates key segments.
const Sep = "."

// Split returns the segments of key.
func Split(key string) []string {
	return strings.Split(key, Sep)
}

// Join appends key to prefix.
func Join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Sep + key
}

// IsNested reports whether key has more than one segment.
func IsNested(key string) bool {
	return strings.Contains(key, Sep)
}

// Prefixes returns the proper ancestor paths of key, shortest first:
// "a.b.c" gives ["a", "a.b"]. A key without separators has none.
func Prefixes(key string) []string {
	segs := Split(key)
	if len(segs) < 2 {
		return nil
	}
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], Sep))
	}
	return out
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// Node is a nested key. A leaf carries Value; an inner node has Children in
// the order their first key appeared.
type Node struct {
	Name     string
	Value    string
	Children []*Node
	leaf     bool
}

// IsLeaf reports whether n holds a value.
func (n *Node) IsLeaf() bool { return n.leaf }

// ConflictError reports a key that cannot be nested next to another one,
// such as "a" and "a.b" both holding values.
type ConflictError struct {
	Key  string
	With string
}

func (e *ConflictError) Error() string {
	if e.Key == e.With {
		return fmt.Sprintf("duplicate key %q", e.Key)
	}
	return fmt.Sprintf("key %q conflicts with %q", e.Key, e.With)
}

// Build nests flat keys under an unnamed root, keeping first-appearance
// order at every level.
func Build(keys []string, values map[string]string) (*Node, error) {
	root := &Node{}
	index := map[string]*Node{"": root}

	for _, key := range keys {
		segs := Split(key)
		parent := root
		path := ""
		for i, seg := range segs {
			path = Join(path, seg)
			last := i == len(segs)-1

			n, ok := index[path]
			if !ok {
				n = &Node{Name: seg}
				parent.Children = append(parent.Children, n)
				index[path] = n
			}
			switch {
			case last && n.leaf:
				return nil, &ConflictError{Key: key, With: path}
			case last && len(n.Children) > 0:
				return nil, &ConflictError{Key: key, With: firstLeaf(n, path)}
			case last:
				n.leaf = true
				n.Value = values[key]
			case n.leaf:
				return nil, &ConflictError{Key: key, With: path}
			}
			parent = n
		}
	}
	return root, nil
}

func firstLeaf(n *Node, path string) string {
	for len(n.Children) > 0 && !n.leaf {
		n = n.Children[0]
		path = Join(path, n.Name)
	}
	return path
}
