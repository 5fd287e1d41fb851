package repostore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestLoad_Missing(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if s.Summary() != "empty" {
		t.Fatalf("Summary() = %q, want %q", s.Summary(), "empty")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	s.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.Put(Repo{Provider: "github", Owner: "acme", Repo: "site", FullName: "acme/site"})
	s.TouchBranch("github", "acme/site", "i18n/fr", 0)
	if err := s.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Fatalf("registry not written: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	r, ok := got.Get("github", "acme/site")
	if !ok {
		t.Fatal("repo missing after reload")
	}
	if r.Owner != "acme" || !reflect.DeepEqual(r.RecentBranches, []string{"i18n/fr"}) {
		t.Fatalf("reloaded repo = %+v", r)
	}
	if got.Summary() != "1 repositories" {
		t.Fatalf("Summary() = %q", got.Summary())
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("repos: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load should fail on malformed YAML")
	}
}

func TestTouchBranch(t *testing.T) {
	s, _ := Load(t.TempDir())
	s.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	if _, ok := s.TouchBranch("github", "acme/site", "main", 3); ok {
		t.Fatal("TouchBranch on an unknown repo should report false")
	}
	s.Put(Repo{Provider: "github", FullName: "acme/site"})

	for _, b := range []string{"a", "b", "c", "a", "d"} {
		s.TouchBranch("github", "acme/site", b, 3)
	}
	r, _ := s.Get("github", "acme/site")
	want := []string{"d", "a", "c"}
	if !reflect.DeepEqual(r.RecentBranches, want) {
		t.Fatalf("RecentBranches = %v, want %v", r.RecentBranches, want)
	}
}

func TestPutKeepsRecentBranches(t *testing.T) {
	s, _ := Load(t.TempDir())
	s.Put(Repo{Provider: "gitlab", FullName: "g/p"})
	s.TouchBranch("gitlab", "g/p", "dev", 0)
	s.Put(Repo{Provider: "gitlab", FullName: "g/p", Owner: "g"})

	r, _ := s.Get("gitlab", "g/p")
	if r.Owner != "g" || !reflect.DeepEqual(r.RecentBranches, []string{"dev"}) {
		t.Fatalf("Put replaced recent branches: %+v", r)
	}
}

func TestPruneBranch(t *testing.T) {
	s, _ := Load(t.TempDir())
	s.Put(Repo{Provider: "github", FullName: "acme/site"})
	s.TouchBranch("github", "acme/site", "old", 0)
	s.TouchBranch("github", "acme/site", "new", 0)

	if !s.PruneBranch("github", "acme/site", "old") {
		t.Fatal("PruneBranch(old) = false, want true")
	}
	if s.PruneBranch("github", "acme/site", "old") {
		t.Fatal("second PruneBranch(old) = true, want false")
	}
	if s.IsRecent("github", "acme/site", "old") || !s.IsRecent("github", "acme/site", "new") {
		t.Fatal("IsRecent does not reflect the pruned list")
	}
}

func TestListOrder(t *testing.T) {
	s, _ := Load(t.TempDir())
	s.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.Put(Repo{Provider: "github", FullName: "a/one"})
	s.Put(Repo{Provider: "gitlab", FullName: "b/two"})
	s.Put(Repo{Provider: "github", FullName: "a/three"})

	var names []string
	for _, r := range s.List("") {
		names = append(names, r.FullName)
	}
	if want := []string{"a/three", "b/two", "a/one"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	if got := s.List("gitlab"); len(got) != 1 || got[0].FullName != "b/two" {
		t.Fatalf("List(gitlab) = %+v", got)
	}

	s.Remove("gitlab", "b/two")
	if len(s.List("gitlab")) != 0 {
		t.Fatal("Remove did not delete the entry")
	}
}
