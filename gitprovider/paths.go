package gitprovider

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar"
	"golang.org/x/sync/errgroup"
)

// probeLimit bounds concurrent existence probes in ExistingPaths.
const probeLimit = 8

// PathSet collects tree paths across pages, keeping first-seen order and
// dropping repeats.
type PathSet struct {
	seen  map[string]struct{}
	paths []string
}

// Add appends paths not seen before.
func (s *PathSet) Add(paths ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, p := range paths {
		if _, ok := s.seen[p]; ok {
			continue
		}
		s.seen[p] = struct{}{}
		s.paths = append(s.paths, p)
	}
}

// Paths returns the collected paths in insertion order.
func (s *PathSet) Paths() []string {
	return slices.Clone(s.paths)
}

// UnderPrefix reports whether path lies under prefix. An empty prefix
// matches everything.
func UnderPrefix(path, prefix string) bool {
	return prefix == "" || strings.HasPrefix(path, prefix)
}

// PrefixDir returns the directory part of a path prefix ("locales/en/" and
// "locales/en/app-" both give "locales/en"). Backends that list trees by
// directory start there and filter with UnderPrefix.
func PrefixDir(prefix string) string {
	i := strings.LastIndexByte(prefix, '/')
	if i < 0 {
		return ""
	}
	return prefix[:i]
}

// MatchBranch reports whether branch matches a protection rule pattern.
// Rules are minimatch-style globs: "*" stays within one path segment and
// "**" crosses segments.
func MatchBranch(pattern, branch string) bool {
	if pattern == branch {
		return true
	}
	ok, err := doublestar.Match(pattern, branch)
	return err == nil && ok
}

// ExistsFunc fetches path on the target branch, returning an error with
// CodeContentNotFound when it is absent.
type ExistsFunc func(ctx context.Context, path string) error

// ExistingPaths probes each path and returns those that exist, in input
// order. Missing paths are dropped; any other probe failure is returned.
func ExistingPaths(ctx context.Context, paths []string, probe ExistsFunc) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	found := make([]bool, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(probeLimit)
	for i, p := range paths {
		g.Go(func() error {
			err := probe(ctx, p)
			switch {
			case err == nil:
				found[i] = true
			case errors.Is(err, ErrContentNotFound):
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []string
	for i, p := range paths {
		if found[i] {
			out = append(out, p)
		}
	}
	return out, nil
}

// SortedPaths returns the keys of files in lexical order so commits are
// built deterministically.
func SortedPaths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
