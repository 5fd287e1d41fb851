// Package langmeta provides language display metadata (native names and
// emoji flags) for the CLI.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes language display metadata.
type Meta struct {
	Code string
	Name string // native name, or the code when unknown
	Flag string
}

// Canonicalize normalizes a language code: "pt_br" becomes "pt-BR". Codes
// that do not parse are returned trimmed.
func Canonicalize(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return code
	}
	return tag.String()
}

// Resolve returns the metadata of code.
func Resolve(code string) Meta {
	m := Meta{Code: Canonicalize(code)}
	tag, err := language.Parse(m.Code)
	if err != nil {
		m.Name = m.Code
		return m
	}
	m.Name = display.Self.Name(tag)
	if m.Name == "" {
		m.Name = m.Code
	}
	if region, conf := tag.Region(); conf != language.No {
		m.Flag = FlagFromRegion(region.String())
	}
	return m
}

// FlagFromRegion converts a two-letter region code to its emoji flag.
func FlagFromRegion(region string) string {
	if len(region) != 2 {
		return ""
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(region) {
		if r < 'A' || r > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + r - 'A')
	}
	return b.String()
}
