// Package propfile reads and writes Java .properties translation files.
//
// Format: key=value pairs, one per line, with '=' or ':' as separator.
// Lines starting with '#' or '!' are comments and are skipped on read.
// Keys are stored flat: "nav.home=Home" is the key nav.home. Values may
// carry the escapes \n, \t, \r and \; line continuations are not supported.
//
// Each language is a separate file:
//
//	locales/en/common.properties
//	locales/ru/common.properties
package propfile

import (
	"bytes"
	"fmt"
	"strings"
)

// File is a parsed .properties file.
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

// Parse parses .properties content.
func Parse(data []byte) (*File, error) {
	f := &File{values: make(map[string]string)}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for n, raw := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			continue
		}
		k, v := splitKeyValue(trimmed)
		if k == "" {
			return nil, fmt.Errorf("line %d: missing key", n+1)
		}
		// A repeated key keeps its first position and the last value.
		f.set(unescape(k), unescape(v))
	}
	return f, nil
}

// splitKeyValue splits "key = value" or "key=value" into key and value.
// The separator is the first unescaped '=' or ':'.
func splitKeyValue(s string) (key, value string) {
	escaped := false
	for i, ch := range s {
		switch {
		case escaped:
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '=' || ch == ':':
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		}
	}
	// No separator: the whole line is a key with an empty value.
	return strings.TrimSpace(s), ""
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, ch := range s {
		if !escaped {
			if ch == '\\' {
				escaped = true
				continue
			}
			b.WriteRune(ch)
			continue
		}
		escaped = false
		switch ch {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

var keyEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "\r", `\r`,
	"=", `\=`, ":", `\:`, " ", `\ `)

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (f *File) set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Keys returns all keys in document order.
func (f *File) Keys() []string { return f.keys }

// Get returns the value for key and whether it was found.
func (f *File) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Values returns the key → value map. Callers must not modify it.
func (f *File) Values() map[string]string { return f.values }

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// Marshal serialises the file as key=value lines in key order.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	for _, k := range f.keys {
		buf.WriteString(keyEscaper.Replace(k))
		buf.WriteByte('=')
		buf.WriteString(valueEscaper.Replace(f.values[k]))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
