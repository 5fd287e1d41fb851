package config

import (
	"errors"
	"regexp"
	"strings"
)

// Placeholders recognised in a path pattern.
const (
	LanguagePlaceholder  = ":lng"
	NamespacePlaceholder = ":ns"
)

// Pattern maps (language, namespace) pairs to repository paths and back.
type Pattern struct {
	// Template is the path without extension, e.g. "locales/:lng/:ns".
	Template string
	// Ext is appended to every path, including the dot.
	Ext string
}

func checkPattern(tmpl string) error {
	if !strings.Contains(tmpl, NamespacePlaceholder) {
		return errors.New("missing " + NamespacePlaceholder)
	}
	if !strings.Contains(tmpl, LanguagePlaceholder) {
		return errors.New("missing " + LanguagePlaceholder)
	}
	return nil
}

// Path returns the file path for a language and namespace.
func (p Pattern) Path(lng, ns string) string {
	r := strings.NewReplacer(LanguagePlaceholder, lng, NamespacePlaceholder, ns)
	return r.Replace(p.Template) + p.Ext
}

// Prefix returns the fixed leading part of the pattern once lng is
// substituted (an empty lng leaves :lng in place), up to the first remaining
// placeholder. It is the tree listing prefix for namespace discovery.
func (p Pattern) Prefix(lng string) string {
	tmpl := p.Template
	if lng != "" {
		tmpl = strings.ReplaceAll(tmpl, LanguagePlaceholder, lng)
	}
	end := len(tmpl)
	for _, ph := range []string{LanguagePlaceholder, NamespacePlaceholder} {
		if i := strings.Index(tmpl, ph); i >= 0 && i < end {
			end = i
		}
	}
	return tmpl[:end]
}

// Matcher returns a matcher for paths produced by p. If lng is non-empty the
// language part must equal it.
func (p Pattern) Matcher(lng string) *Matcher {
	var b strings.Builder
	b.WriteByte('^')
	tmpl := p.Template
	lngIdx, nsIdx := 0, 0
	group := 0
	for tmpl != "" {
		switch {
		case strings.HasPrefix(tmpl, LanguagePlaceholder):
			if lng != "" {
				b.WriteString(regexp.QuoteMeta(lng))
			} else {
				group++
				if lngIdx == 0 {
					lngIdx = group
				}
				b.WriteString(`([^/]+)`)
			}
			tmpl = tmpl[len(LanguagePlaceholder):]
		case strings.HasPrefix(tmpl, NamespacePlaceholder):
			group++
			if nsIdx == 0 {
				nsIdx = group
			}
			b.WriteString(`(.+)`)
			tmpl = tmpl[len(NamespacePlaceholder):]
		default:
			b.WriteString(regexp.QuoteMeta(tmpl[:1]))
			tmpl = tmpl[1:]
		}
	}
	b.WriteString(regexp.QuoteMeta(p.Ext))
	b.WriteByte('$')
	return &Matcher{re: regexp.MustCompile(b.String()), lng: lng, lngIdx: lngIdx, nsIdx: nsIdx}
}

// Matcher extracts the language and namespace from a path.
type Matcher struct {
	re     *regexp.Regexp
	lng    string
	lngIdx int
	nsIdx  int
}

// Match returns the language and namespace encoded in path. When a
// placeholder appears more than once, its first occurrence wins.
func (m *Matcher) Match(path string) (lng, ns string, ok bool) {
	sub := m.re.FindStringSubmatch(path)
	if sub == nil {
		return "", "", false
	}
	lng = m.lng
	if m.lngIdx > 0 {
		lng = sub[m.lngIdx]
	}
	ns = sub[m.nsIdx]
	if ns == "" || lng == "" {
		return "", "", false
	}
	return lng, ns, true
}
