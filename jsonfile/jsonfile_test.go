package jsonfile

import (
	"errors"
	"reflect"
	"testing"

	"github.com/minios-linux/i18ncms/keypath"
)

func TestParseFlattensNestedInOrder(t *testing.T) {
	data := []byte(`{
    "title": "Hello",
    "nav": { "home": "Home", "about": "About" },
    "count": 3,
    "enabled": true,
    "empty": null
}`)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	want := []string{"title", "nav.home", "nav.about", "count", "enabled", "empty"}
	if !reflect.DeepEqual(f.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", f.Keys(), want)
	}
	if v, _ := f.Get("nav.about"); v != "About" {
		t.Errorf("nav.about = %q, want %q", v, "About")
	}
	if v, _ := f.Get("count"); v != "3" {
		t.Errorf("count = %q, want %q", v, "3")
	}
	if v, ok := f.Get("empty"); !ok || v != "" {
		t.Errorf("empty = %q, %v; want \"\", true", v, ok)
	}
}

func TestParseEmptyAndInvalid(t *testing.T) {
	f, err := Parse([]byte("  \n"))
	if err != nil || len(f.Keys()) != 0 {
		t.Fatalf("Parse(blank) = %v, %v; want empty file", f, err)
	}

	for _, in := range []string{`[1,2]`, `{"a": [1]}`, `{"a": "x"} {}`, `{"a": `} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Errorf("Parse(%s) should fail", in)
		}
	}
}

func TestMarshalNestsDottedKeys(t *testing.T) {
	f := New([]string{"title", "nav.home", "nav.about"}, map[string]string{
		"title":     `Say "hi" <b>now</b>`,
		"nav.home":  "Home",
		"nav.about": "About",
	})
	got, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	want := `{
  "title": "Say \"hi\" <b>now</b>",
  "nav": {
    "home": "Home",
    "about": "About"
  }
}
`
	if string(got) != want {
		t.Fatalf("Marshal() =\n%s\nwant\n%s", got, want)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := New([]string{"b", "a.y", "a.x"}, map[string]string{"b": "1", "a.y": "2", "a.x": "3"})
	data, err := in.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !reflect.DeepEqual(out.Keys(), in.Keys()) || !reflect.DeepEqual(out.Values(), in.Values()) {
		t.Fatalf("round trip = %v %v, want %v %v", out.Keys(), out.Values(), in.Keys(), in.Values())
	}
}

func TestMarshalEmptyAndConflict(t *testing.T) {
	got, err := New(nil, nil).Marshal()
	if err != nil || string(got) != "{}\n" {
		t.Fatalf("Marshal(empty) = %q, %v", got, err)
	}

	_, err = New([]string{"a", "a.b"}, map[string]string{}).Marshal()
	var ce *keypath.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Marshal() error = %v, want *keypath.ConflictError", err)
	}
}
