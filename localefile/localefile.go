// Package localefile maps a repository's configured file type to the codec
// that reads and writes one language file of one namespace.
package localefile

import (
	"fmt"
	"strings"

	"github.com/minios-linux/i18ncms/jsonfile"
	"github.com/minios-linux/i18ncms/propfile"
	"github.com/minios-linux/i18ncms/yamlfile"
)

// FileType identifies a translation file format.
type FileType string

const (
	JSON       FileType = "json"
	YAML       FileType = "yaml"
	Properties FileType = "properties"
)

// FileTypes lists the supported formats.
var FileTypes = []FileType{JSON, YAML, Properties}

// ParseFileType parses a configured file type. "yml" is accepted for YAML.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "properties":
		return Properties, nil
	}
	return "", fmt.Errorf("unsupported file type %q (supported: json, yaml, properties)", s)
}

// Ext returns the file extension including the dot.
func (t FileType) Ext() string {
	switch t {
	case YAML:
		return ".yaml"
	case Properties:
		return ".properties"
	default:
		return ".json"
	}
}

// Table is the content of one language file: keys in file order and their
// values.
type Table struct {
	Keys   []string
	Values map[string]string
}

// Decode parses data as a file of type t.
func Decode(t FileType, data []byte) (Table, error) {
	var (
		keys   []string
		values map[string]string
	)
	switch t {
	case JSON:
		f, err := jsonfile.Parse(data)
		if err != nil {
			return Table{}, err
		}
		keys, values = f.Keys(), f.Values()
	case YAML:
		f, err := yamlfile.Parse(data)
		if err != nil {
			return Table{}, err
		}
		keys, values = f.Keys(), f.Values()
	case Properties:
		f, err := propfile.Parse(data)
		if err != nil {
			return Table{}, err
		}
		keys, values = f.Keys(), f.Values()
	default:
		return Table{}, fmt.Errorf("unsupported file type %q", t)
	}
	return Table{Keys: keys, Values: values}, nil
}

// Encode serialises tbl as a file of type t. JSON and YAML nest dotted keys;
// properties files keep them flat.
func Encode(t FileType, tbl Table) ([]byte, error) {
	switch t {
	case JSON:
		return jsonfile.New(tbl.Keys, tbl.Values).Marshal()
	case YAML:
		return yamlfile.New(tbl.Keys, tbl.Values).Marshal()
	case Properties:
		return propfile.New(tbl.Keys, tbl.Values).Marshal()
	}
	return nil, fmt.Errorf("unsupported file type %q", t)
}
