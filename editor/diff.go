package editor

import (
	"maps"
	"slices"

	"github.com/minios-linux/i18ncms/localefile"
)

// SaveDiff is the state to persist: the content of every loaded namespace
// per current language, the namespace and language lists, and what each of
// them held when last loaded or saved.
type SaveDiff struct {
	Namespaces         []string
	Languages          []string
	OriginalNamespaces []string
	OriginalLanguages  []string

	// Data holds loaded namespaces only. A row with no value for a language
	// is left out of that language's table.
	Data map[string]Snapshot
	// Original is the last saved content of the namespaces in Data. A
	// namespace created in this session has no entry.
	Original map[string]Snapshot
}

// Changed reports whether the table of ns in lng differs from its original,
// including key order.
func (d SaveDiff) Changed(ns, lng string) bool {
	cur := d.Data[ns][lng]
	orig, ok := d.Original[ns][lng]
	if !ok {
		return true
	}
	return !equalTables(cur, orig)
}

// Removed returns the (namespace, language) pairs that were saved before
// and are no longer part of the session.
func (d SaveDiff) Removed() [][2]string {
	var out [][2]string
	for _, ns := range d.OriginalNamespaces {
		for _, lng := range d.OriginalLanguages {
			if slices.Contains(d.Namespaces, ns) && slices.Contains(d.Languages, lng) {
				continue
			}
			out = append(out, [2]string{ns, lng})
		}
	}
	return out
}

// SaveDiff computes the state to persist.
func (s *Store) SaveDiff() SaveDiff {
	s.lock()
	defer s.unlock()

	d := SaveDiff{
		Namespaces:         slices.Clone(s.namespaces),
		Languages:          slices.Clone(s.languages),
		OriginalNamespaces: slices.Clone(s.originalNamespaces),
		OriginalLanguages:  slices.Clone(s.originalLanguages),
		Data:               make(map[string]Snapshot),
		Original:           make(map[string]Snapshot),
	}
	for _, ns := range s.loadedNamespaces() {
		d.Data[ns] = s.tables(ns)
		if orig, ok := s.original[ns]; ok {
			snap := make(Snapshot, len(orig))
			for lng, t := range orig {
				snap[lng] = cloneTable(t)
			}
			d.Original[ns] = snap
		}
	}
	return d
}

func (s *Store) tables(ns string) Snapshot {
	st := s.data[ns]
	snap := make(Snapshot, len(s.languages))
	for _, lng := range s.languages {
		t := localefile.Table{Values: make(map[string]string)}
		for _, id := range st.order {
			row := st.rows[id]
			v, ok := row.Values[lng]
			if !ok {
				continue
			}
			if _, dup := t.Values[row.Key]; !dup {
				t.Keys = append(t.Keys, row.Key)
			}
			t.Values[row.Key] = v
		}
		snap[lng] = t
	}
	return snap
}

// CommitSaved records a successfully saved diff as the new original state.
// Edits made after SaveDiff was taken stay pending.
func (s *Store) CommitSaved(d SaveDiff) {
	s.lock()
	defer s.unlock()

	for ns := range s.original {
		if !slices.Contains(d.Namespaces, ns) {
			delete(s.original, ns)
		}
	}
	for ns, snap := range d.Data {
		if !slices.Contains(s.namespaces, ns) {
			continue
		}
		saved := make(Snapshot, len(snap))
		for lng, t := range snap {
			saved[lng] = cloneTable(t)
		}
		s.original[ns] = saved
	}
	for _, snap := range s.original {
		for lng := range snap {
			if !slices.Contains(d.Languages, lng) {
				delete(snap, lng)
			}
		}
	}
	s.originalNamespaces = slices.Clone(d.Namespaces)
	s.originalLanguages = slices.Clone(d.Languages)
}

// IsDirty reports whether the working copy differs from the last saved
// state.
func (s *Store) IsDirty() bool {
	s.lock()
	defer s.unlock()

	if !slices.Equal(s.namespaces, s.originalNamespaces) || !slices.Equal(s.languages, s.originalLanguages) {
		return true
	}
	for _, ns := range s.loadedNamespaces() {
		orig, ok := s.original[ns]
		if !ok {
			return true
		}
		for lng, t := range s.tables(ns) {
			o, ok := orig[lng]
			if !ok || !equalTables(t, o) {
				return true
			}
		}
	}
	return false
}

func equalTables(a, b localefile.Table) bool {
	return slices.Equal(a.Keys, b.Keys) && maps.Equal(a.Values, b.Values)
}
