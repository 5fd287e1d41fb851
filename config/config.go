// Package config handles the repository configuration file that tells
// i18ncms where translation files live and how they are encoded.
//
// The file is stored in the edited repository at .i18n-cms/config.json:
//
//	{
//	  "fileType": "json",
//	  "pattern": "locales/:lng/:ns",
//	  "defaultLanguage": "en",
//	  "languages": ["en", "fr"]
//	}
//
// pattern is a path template without extension. :lng is replaced by a
// language code and :ns by a namespace; the extension comes from fileType.
// When useCustomPath is set together with namespaces and languages, those
// lists are used as is and the repository tree is not scanned.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/i18ncms/localefile"
)

// Path is the repository path of the configuration file.
const Path = ".i18n-cms/config.json"

// DefaultPattern is used when the file does not declare a pattern.
const DefaultPattern = ":lng/:ns"

// ErrInvalidConfig is returned for a configuration that decodes but cannot
// be used.
var ErrInvalidConfig = errors.New("invalid repository config")

// RepoConfig is the decoded configuration file. It is immutable once loaded
// for a branch.
type RepoConfig struct {
	FileType        localefile.FileType `yaml:"fileType" json:"fileType"`
	Pattern         string              `yaml:"pattern" json:"pattern"`
	DefaultLanguage string              `yaml:"defaultLanguage" json:"defaultLanguage"`
	Languages       []string            `yaml:"languages" json:"languages"`
	TargetPattern   string              `yaml:"targetPattern,omitempty" json:"targetPattern,omitempty"`
	UseCustomPath   bool                `yaml:"useCustomPath,omitempty" json:"useCustomPath,omitempty"`
	Namespaces      []string            `yaml:"namespaces,omitempty" json:"namespaces,omitempty"`
}

// Decode parses the configuration file content, applies defaults and
// validates the result.
func Decode(data []byte) (*RepoConfig, error) {
	var c RepoConfig
	// JSON is valid YAML flow syntax, so one decoder reads both.
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", Path, err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Encode serialises c as indented JSON, the on-repository format.
func Encode(c *RepoConfig) ([]byte, error) {
	n := *c
	if err := n.normalize(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(&n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", Path, err)
	}
	return append(data, '\n'), nil
}

func (c *RepoConfig) normalize() error {
	if c.FileType == "" {
		c.FileType = localefile.JSON
	}
	ft, err := localefile.ParseFileType(string(c.FileType))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.FileType = ft

	c.Pattern = strings.Trim(strings.TrimSpace(c.Pattern), "/")
	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if err := checkPattern(c.Pattern); err != nil {
		return fmt.Errorf("%w: pattern: %v", ErrInvalidConfig, err)
	}
	c.TargetPattern = strings.Trim(strings.TrimSpace(c.TargetPattern), "/")
	if c.TargetPattern != "" {
		if err := checkPattern(c.TargetPattern); err != nil {
			return fmt.Errorf("%w: targetPattern: %v", ErrInvalidConfig, err)
		}
	}

	c.Languages = dedupe(c.Languages)
	for _, lng := range c.Languages {
		if err := ValidateLanguage(lng); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.DefaultLanguage == "" {
		if len(c.Languages) == 0 {
			return fmt.Errorf("%w: defaultLanguage is required", ErrInvalidConfig)
		}
		c.DefaultLanguage = c.Languages[0]
	}
	if err := ValidateLanguage(c.DefaultLanguage); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Namespaces = dedupe(c.Namespaces)
	return nil
}

// HasExplicitLists reports whether namespaces and languages come from the
// file rather than from scanning the repository tree.
func (c *RepoConfig) HasExplicitLists() bool {
	return c.UseCustomPath && len(c.Namespaces) > 0 && len(c.Languages) > 0
}

// SourcePattern returns the pattern used to read translation files.
func (c *RepoConfig) SourcePattern() Pattern {
	return Pattern{Template: c.Pattern, Ext: c.FileType.Ext()}
}

// WritePattern returns the pattern used to write translation files:
// targetPattern when set, pattern otherwise.
func (c *RepoConfig) WritePattern() Pattern {
	if c.TargetPattern != "" {
		return Pattern{Template: c.TargetPattern, Ext: c.FileType.Ext()}
	}
	return c.SourcePattern()
}

// ValidateLanguage checks that code is a well-formed BCP 47 tag.
func ValidateLanguage(code string) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("empty language code")
	}
	if strings.Contains(code, "/") {
		return fmt.Errorf("language code %q must not contain '/'", code)
	}
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("language code %q: %w", code, err)
	}
	return nil
}

// dedupe trims, drops empty entries and repeats, keeping first-seen order.
func dedupe(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}
