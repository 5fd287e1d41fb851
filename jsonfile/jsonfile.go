// Package jsonfile reads and writes JSON translation files.
//
// Files may be flat or nested; both are read into dot-separated keys in
// document order:
//
//	{
//	    "title": "Hello",
//	    "nav": { "home": "Home", "about": "About" }
//	}
//
// yields the keys title, nav.home, nav.about. Output is always nested with
// 2-space indentation, so "nav.home" is written inside a "nav" object.
// Numbers and booleans are read as their literal text, null as "".
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/minios-linux/i18ncms/keypath"
)

// File is a parsed translation file.
type File struct {
	keys   []string
	values map[string]string
}

// New returns a file holding keys in order with their values. Keys missing
// from values are written as "".
func New(keys []string, values map[string]string) *File {
	f := &File{values: make(map[string]string, len(keys))}
	for _, k := range keys {
		f.set(k, values[k])
	}
	return f
}

func (f *File) set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Keys returns the keys in document order.
func (f *File) Keys() []string { return f.keys }

// Get returns the value for key and whether it exists.
func (f *File) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Values returns the key → value map. Callers must not modify it.
func (f *File) Values() map[string]string { return f.values }

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse reads JSON data. Empty input is an empty file.
func Parse(data []byte) (*File, error) {
	f := &File{values: make(map[string]string)}
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	t, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parsing JSON: expected {, got %v", t)
	}
	if err := f.readObject(dec, ""); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing JSON: unexpected data after top-level object")
	}
	return f, nil
}

// readObject reads members up to and including the closing brace of an
// object whose opening brace was already consumed.
func (f *File) readObject(dec *json.Decoder, prefix string) error {
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %T", kt)
		}
		path := keypath.Join(prefix, key)

		vt, err := dec.Token()
		if err != nil {
			return err
		}
		switch v := vt.(type) {
		case json.Delim:
			if v != '{' {
				return fmt.Errorf("unsupported array value for key %q", path)
			}
			if err := f.readObject(dec, path); err != nil {
				return err
			}
		case string:
			f.set(path, v)
		case json.Number:
			f.set(path, v.String())
		case bool:
			f.set(path, strconv.FormatBool(v))
		case nil:
			f.set(path, "")
		default:
			return fmt.Errorf("unexpected value %v for key %q", vt, path)
		}
	}
	_, err := dec.Token() // closing '}'
	return err
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal writes the file nested, in key order. Keys that cannot be nested
// together fail with *keypath.ConflictError.
func (f *File) Marshal() ([]byte, error) {
	root, err := keypath.Build(f.keys, f.values)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeObject(&buf, root, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeObject(buf *bytes.Buffer, n *keypath.Node, depth int) error {
	if len(n.Children) == 0 {
		buf.WriteString("{}")
		return nil
	}
	buf.WriteString("{\n")
	for i, c := range n.Children {
		indent(buf, depth+1)
		if err := writeString(buf, c.Name); err != nil {
			return err
		}
		buf.WriteString(": ")
		var err error
		if c.IsLeaf() {
			err = writeString(buf, c.Value)
		} else {
			err = writeObject(buf, c, depth+1)
		}
		if err != nil {
			return err
		}
		if i < len(n.Children)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	indent(buf, depth)
	buf.WriteByte('}')
	return nil
}

func indent(buf *bytes.Buffer, depth int) {
	for range depth {
		buf.WriteString("  ")
	}
}

// writeString writes s as a JSON string without HTML escaping, so that
// values like "<b>{{name}}</b>" stay readable in diffs.
func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
