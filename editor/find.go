package editor

import (
	"regexp"
	"strings"
)

// Match is a row of the selected namespace that contains the find query.
type Match struct {
	ID  string
	Row int
}

type findState struct {
	text     string
	matches  []Match
	selected *selectedMatch
}

type selectedMatch struct {
	index int
	text  string
	Match
}

// SetFindText sets the query and recomputes matches over the selected
// namespace. Matching is case-insensitive over each row's key and its
// values in visible languages, in row order. An empty query clears the
// matches.
func (s *Store) SetFindText(text string) {
	s.lock()
	defer s.unlock()

	s.find.text = text
	if text == "" {
		s.find.matches = nil
		s.find.selected = nil
		return
	}
	s.refind()
}

// FindText returns the current query.
func (s *Store) FindText() string {
	s.lock()
	defer s.unlock()
	return s.find.text
}

// Matches returns the current match list.
func (s *Store) Matches() []Match {
	s.lock()
	defer s.unlock()
	return append([]Match(nil), s.find.matches...)
}

// SelectedMatch returns the selected match and its position in the match
// list.
func (s *Store) SelectedMatch() (Match, int, bool) {
	s.lock()
	defer s.unlock()
	if s.find.selected == nil {
		return Match{}, -1, false
	}
	return s.find.selected.Match, s.find.selected.index, true
}

// NextMatch selects the following match, wrapping to the first.
func (s *Store) NextMatch() { s.step(1) }

// PrevMatch selects the preceding match, wrapping to the last.
func (s *Store) PrevMatch() { s.step(-1) }

func (s *Store) step(delta int) {
	s.lock()
	defer s.unlock()

	n := len(s.find.matches)
	if n == 0 {
		return
	}
	index := delta
	if s.find.selected != nil {
		index += s.find.selected.index
	}
	if index >= n {
		index = 0
	}
	if index < 0 {
		index = n - 1
	}
	s.selectMatch(index)
	s.scrollTo(s.find.matches[index].Row, AlignSmart)
}

func (s *Store) selectMatch(index int) {
	s.find.selected = &selectedMatch{index: index, text: s.find.text, Match: s.find.matches[index]}
}

// refind recomputes the matches after the query or the data changed. The
// selection follows its row: it stays at the same index if that still holds
// the same row, moves to the row's new index if it is still matched, and
// otherwise falls back to the previous index minus one. A new query selects
// the first match and scrolls to it.
func (s *Store) refind() {
	if s.find.text == "" {
		return
	}
	matches := s.scan()
	s.find.matches = matches
	if len(matches) == 0 {
		s.find.selected = nil
		return
	}

	prev := s.find.selected
	index := 0
	switch {
	case prev == nil || prev.text != s.find.text:
		// A mutation that already asked for a scroll keeps its own hint.
		if len(s.pending) == 0 {
			s.scrollTo(matches[0].Row, AlignSmart)
		}
	case prev.index < len(matches) && matches[prev.index].ID == prev.ID:
		index = prev.index
	default:
		index = max(0, prev.index-1)
		for i, m := range matches {
			if m.ID == prev.ID {
				index = i
				break
			}
		}
		index = min(index, len(matches)-1)
	}
	s.selectMatch(index)
}

func (s *Store) scan() []Match {
	st, err := s.current()
	if err != nil {
		return nil
	}
	query := strings.ToLower(s.find.text)
	langs := s.visibleLanguages()

	var out []Match
	for i, id := range st.order {
		row := st.rows[id]
		if rowContains(row, langs, query) {
			out = append(out, Match{ID: id, Row: i})
		}
	}
	return out
}

func rowContains(row *Row, langs []string, query string) bool {
	if strings.Contains(strings.ToLower(row.Key), query) {
		return true
	}
	for _, lng := range langs {
		if v, ok := row.Values[lng]; ok && strings.Contains(strings.ToLower(v), query) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Replace
// ---------------------------------------------------------------------------

// ReplaceCurrent replaces the query in the visible-language values of the
// selected match's row and returns the number of values changed. Keys are
// never rewritten.
func (s *Store) ReplaceCurrent(replacement string) int {
	s.lock()
	defer s.unlock()

	if s.find.selected == nil {
		return 0
	}
	st, err := s.current()
	if err != nil {
		return 0
	}
	row, ok := st.rows[s.find.selected.ID]
	if !ok {
		return 0
	}
	n := s.replaceIn(row, replacement)
	s.refind()
	return n
}

// ReplaceAll replaces the query in every matched row and returns the number
// of values changed.
func (s *Store) ReplaceAll(replacement string) int {
	s.lock()
	defer s.unlock()

	st, err := s.current()
	if err != nil || s.find.text == "" {
		return 0
	}
	n := 0
	for _, m := range s.find.matches {
		if row, ok := st.rows[m.ID]; ok {
			n += s.replaceIn(row, replacement)
		}
	}
	s.refind()
	return n
}

func (s *Store) replaceIn(row *Row, replacement string) int {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(s.find.text))
	n := 0
	for _, lng := range s.visibleLanguages() {
		v, ok := row.Values[lng]
		if !ok || !re.MatchString(v) {
			continue
		}
		row.Values[lng] = re.ReplaceAllLiteralString(v, replacement)
		n++
	}
	return n
}
