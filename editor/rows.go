package editor

import (
	"fmt"
	"slices"
)

// SetValue sets the value of lng for a row of the selected namespace.
func (s *Store) SetValue(lng, id, value string) error {
	s.lock()
	defer s.unlock()

	st, err := s.current()
	if err != nil {
		return err
	}
	if !slices.Contains(s.languages, lng) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lng)
	}
	row, ok := st.rows[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRow, id)
	}
	row.Values[lng] = value
	s.refind()
	return nil
}

// SetKey changes the key text of a row of the selected namespace.
func (s *Store) SetKey(id, key string) error {
	s.lock()
	defer s.unlock()

	st, err := s.current()
	if err != nil {
		return err
	}
	row, ok := st.rows[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRow, id)
	}
	row.Key = key
	s.refind()
	return nil
}

// InsertAfter inserts an empty row right after index; -1 inserts at the
// top. The new row's key is its id. The UI is asked to scroll to the new
// row.
func (s *Store) InsertAfter(index int) (string, error) {
	s.lock()
	defer s.unlock()

	st, err := s.current()
	if err != nil {
		return "", err
	}
	if index < -1 || index >= len(st.order) {
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return s.insert(st, index+1), nil
}

// Append adds an empty row at the end of the selected namespace.
func (s *Store) Append() (string, error) {
	s.lock()
	defer s.unlock()

	st, err := s.current()
	if err != nil {
		return "", err
	}
	return s.insert(st, len(st.order)), nil
}

func (s *Store) insert(st *namespaceState, at int) string {
	id := s.newID(s.selected)
	st.rows[id] = &Row{ID: id, Key: id, Values: make(map[string]string)}
	st.order = slices.Insert(st.order, at, id)
	s.scrollTo(at, AlignAuto)
	s.refind()
	return id
}

// DeleteRow removes the row at index of the selected namespace.
func (s *Store) DeleteRow(index int) error {
	s.lock()
	defer s.unlock()

	st, err := s.current()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(st.order) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	delete(st.rows, st.order[index])
	st.order = slices.Delete(st.order, index, index+1)
	s.refind()
	return nil
}

// Move moves the row at from to index to. Rows strictly between the two
// positions shift by one; ids are unchanged. The UI is asked to scroll to
// the row's new position.
func (s *Store) Move(from, to int) error {
	s.lock()
	defer s.unlock()

	st, err := s.current()
	if err != nil {
		return err
	}
	n := len(st.order)
	if from < 0 || from >= n {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, from)
	}
	if to < 0 || to >= n {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, to)
	}
	if from == to {
		return nil
	}
	id := st.order[from]
	st.order = slices.Delete(st.order, from, from+1)
	st.order = slices.Insert(st.order, to, id)
	s.scrollTo(to, AlignAuto)
	s.refind()
	return nil
}

// ---------------------------------------------------------------------------
// Namespaces and languages
// ---------------------------------------------------------------------------

// AddNamespace appends a new namespace holding one empty row and selects it.
func (s *Store) AddNamespace(ns string) error {
	s.lock()
	defer s.unlock()

	if err := validNamespace(ns); err != nil {
		return err
	}
	if slices.Contains(s.namespaces, ns) {
		return fmt.Errorf("%w: %q", ErrNamespaceExists, ns)
	}
	s.namespaces = append(s.namespaces, ns)
	id := s.newID(ns)
	s.data[ns] = &namespaceState{
		order: []string{id},
		rows:  map[string]*Row{id: {ID: id, Key: id, Values: make(map[string]string)}},
	}
	s.status[ns] = Loaded
	s.selected = ns
	s.find = findState{}
	return nil
}

// RemoveNamespace drops ns together with all its rows. If it was selected,
// nothing is selected afterwards.
func (s *Store) RemoveNamespace(ns string) error {
	s.lock()
	defer s.unlock()

	i := slices.Index(s.namespaces, ns)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	s.namespaces = slices.Delete(s.namespaces, i, i+1)
	delete(s.data, ns)
	delete(s.status, ns)
	if s.selected == ns {
		s.selected = ""
		s.find = findState{}
	}
	return nil
}

// AddLanguage appends a language, visible. The default language always goes
// first.
func (s *Store) AddLanguage(lng string) error {
	s.lock()
	defer s.unlock()

	if err := validLanguage(lng); err != nil {
		return err
	}
	if slices.Contains(s.languages, lng) {
		return fmt.Errorf("%w: %q", ErrLanguageExists, lng)
	}
	if lng == s.defaultLanguage {
		s.languages = slices.Insert(s.languages, 0, lng)
	} else {
		s.languages = append(s.languages, lng)
	}
	s.visible[lng] = true
	s.refind()
	return nil
}

// RemoveLanguage drops a language from the session. Row values for it are
// kept, so adding it back before saving restores them.
func (s *Store) RemoveLanguage(lng string) error {
	s.lock()
	defer s.unlock()

	i := slices.Index(s.languages, lng)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lng)
	}
	s.languages = slices.Delete(s.languages, i, i+1)
	delete(s.visible, lng)
	s.refind()
	return nil
}

// SetLanguageVisible shows or hides a language's column. Hidden languages
// are still saved but are not searched.
func (s *Store) SetLanguageVisible(lng string, visible bool) error {
	s.lock()
	defer s.unlock()

	if !slices.Contains(s.languages, lng) {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lng)
	}
	s.visible[lng] = visible
	s.refind()
	return nil
}

// SetAllLanguagesVisible shows or hides every language.
func (s *Store) SetAllLanguagesVisible(visible bool) {
	s.lock()
	defer s.unlock()

	for _, lng := range s.languages {
		s.visible[lng] = visible
	}
	s.refind()
}
