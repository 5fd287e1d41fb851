package main

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/i18ncms/editor"
	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/localefile"
	"github.com/minios-linux/i18ncms/reconcile"
)

func TestParseRepoArg(t *testing.T) {
	tests := []struct {
		in    string
		owner string
		repo  string
	}{
		{in: "acme/site", owner: "acme", repo: "site"},
		{in: " /acme/site/ ", owner: "acme", repo: "site"},
		{in: "group/sub/project", owner: "group/sub", repo: "project"},
	}
	for _, tc := range tests {
		got, err := parseRepoArg(tc.in)
		if err != nil {
			t.Fatalf("parseRepoArg(%q) error: %v", tc.in, err)
		}
		if got.Owner != tc.owner || got.Repo != tc.repo {
			t.Fatalf("parseRepoArg(%q) = %+v, want %s/%s", tc.in, got, tc.owner, tc.repo)
		}
	}

	for _, in := range []string{"", "site", "/site", "acme/"} {
		if _, err := parseRepoArg(in); err == nil {
			t.Fatalf("parseRepoArg(%q) should fail", in)
		}
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"en=Home", "fr=a=b", "de="})
	if err != nil {
		t.Fatalf("parseAssignments error: %v", err)
	}
	want := map[string]string{"en": "Home", "fr": "a=b", "de": ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseAssignments() = %#v, want %#v", got, want)
	}

	for _, args := range [][]string{{"en"}, {"=x"}, {"en=a", "en=b"}} {
		if _, err := parseAssignments(args); err == nil {
			t.Fatalf("parseAssignments(%q) should fail", args)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ключ", 6); got != "ключ  " {
		t.Fatalf("padRight() = %q, want %q", got, "ключ  ")
	}
	if got := padRight("long", 2); got != "long" {
		t.Fatalf("padRight() = %q, want %q", got, "long")
	}
}

func TestLangCell(t *testing.T) {
	useColor = false
	t.Cleanup(func() { useColor = true })

	cell := langCell("pt-BR", "en")
	if !strings.Contains(cell, "🇧🇷") || !strings.Contains(cell, "pt-BR") {
		t.Fatalf("langCell() = %q, want flag and language code", cell)
	}
	if strings.Contains(cell, "(default)") {
		t.Fatalf("langCell() = %q, should not be marked default", cell)
	}
	if cell := langCell("en", "en"); !strings.HasSuffix(cell, "(default)") {
		t.Fatalf("langCell(default) = %q", cell)
	}
}

func TestFormatDuplicates(t *testing.T) {
	got := formatDuplicates(map[string]map[string]int{
		"home":   {"x": 2},
		"common": {"nav.home": 2, "nav": 2},
	})
	want := []string{"common: nav (2)", "common: nav.home (2)", "home: x (2)"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("formatDuplicates() = %#v, want %#v", got, want)
	}
}

func TestErrorHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: fmt.Errorf("save: %w", gitprovider.ErrBranchPermissionViolated), want: "--from"},
		{err: gitprovider.ErrCredentialInvalid, want: "auth login"},
		{err: &reconcile.DuplicateKeysError{Keys: map[string]map[string]int{"a": {"k": 2}}}, want: "duplicated"},
		{err: fmt.Errorf("boom"), want: ""},
	}
	for _, tc := range tests {
		got := errorHint(tc.err)
		if tc.want == "" && got != "" || !strings.Contains(got, tc.want) {
			t.Fatalf("errorHint(%v) = %q, want containing %q", tc.err, got, tc.want)
		}
	}
}

func loadedStore(t *testing.T) *editor.Store {
	t.Helper()
	st := editor.New()
	st.Init([]string{"common"}, []string{"en", "fr"}, "en")
	if _, err := st.Select("common"); err != nil {
		t.Fatalf("Select error: %v", err)
	}
	ok, err := st.Load("common", map[string]localefile.Table{
		"en": {Keys: []string{"title", "nav.home"}, Values: map[string]string{"title": "Hello", "nav.home": "Home"}},
	})
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	return st
}

func TestApplySet(t *testing.T) {
	t.Run("existing key", func(t *testing.T) {
		st := loadedStore(t)
		if err := applySet(st, "common", "title", "", false, map[string]string{"fr": "Bonjour"}); err != nil {
			t.Fatalf("applySet error: %v", err)
		}
		rows, _ := st.Rows("common")
		if rows[0].Values["fr"] != "Bonjour" || len(rows) != 2 {
			t.Fatalf("rows = %+v", rows)
		}
	})

	t.Run("new key is appended", func(t *testing.T) {
		st := loadedStore(t)
		if err := applySet(st, "common", "footer", "", false, map[string]string{"en": "Bye"}); err != nil {
			t.Fatalf("applySet error: %v", err)
		}
		rows, _ := st.Rows("common")
		if len(rows) != 3 || rows[2].Key != "footer" || rows[2].Values["en"] != "Bye" {
			t.Fatalf("rows = %+v", rows)
		}
	})

	t.Run("rename and delete", func(t *testing.T) {
		st := loadedStore(t)
		if err := applySet(st, "common", "title", "heading", false, nil); err != nil {
			t.Fatalf("applySet rename error: %v", err)
		}
		if err := applySet(st, "common", "nav.home", "", true, nil); err != nil {
			t.Fatalf("applySet delete error: %v", err)
		}
		rows, _ := st.Rows("common")
		if len(rows) != 1 || rows[0].Key != "heading" {
			t.Fatalf("rows = %+v", rows)
		}
		if err := applySet(st, "common", "missing", "", true, nil); err == nil {
			t.Fatal("deleting a missing key should fail")
		}
	})
}

func TestPrintRows(t *testing.T) {
	rows := []editor.Row{
		{Key: "title", Values: map[string]string{"en": "Hello", "fr": "Bonjour"}},
		{Key: "nav.home", Values: map[string]string{"en": "two\nlines"}},
	}
	var buf bytes.Buffer
	printRows(&buf, rows, []string{"en", "fr"})
	want := "KEY       en  fr\n" +
		"title     Hello  Bonjour\n" +
		"nav.home  two\\nlines  -\n"
	if buf.String() != want {
		t.Fatalf("printRows() =\n%s\nwant\n%s", buf.String(), want)
	}
}
