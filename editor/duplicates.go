package editor

import (
	"fmt"

	"github.com/minios-linux/i18ncms/keypath"
)

// DuplicateKeys returns the keys of ns that cannot be saved, with their
// conflict counts. A key conflicts with every other row holding the same
// key, and a nested key "a.b" conflicts with a row whose key is an ancestor
// path such as "a": nested files cannot hold a value and an object at the
// same path. Each ancestor hit adds one to both keys. An empty result means
// ns can be saved.
func (s *Store) DuplicateKeys(ns string) (map[string]int, error) {
	s.lock()
	defer s.unlock()

	st, ok := s.data[ns]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotLoaded, ns)
	}
	keys := make([]string, len(st.order))
	for i, id := range st.order {
		keys[i] = st.rows[id].Key
	}
	return DuplicateKeys(keys), nil
}

// DuplicateKeys computes the conflict counts of an ordered key list.
func DuplicateKeys(keys []string) map[string]int {
	counts := make(map[string]int, len(keys))
	var nested []string
	for _, k := range keys {
		counts[k]++
		if keypath.IsNested(k) {
			nested = append(nested, k)
		}
	}

	// Every row carrying a nested key is walked, so a key repeated on two
	// rows counts its ancestor hits twice.
	for _, k := range nested {
		for _, prefix := range keypath.Prefixes(k) {
			if counts[prefix] > 0 {
				counts[prefix]++
				counts[k]++
			}
		}
	}

	out := make(map[string]int)
	for k, n := range counts {
		if n > 1 {
			out[k] = n
		}
	}
	return out
}
