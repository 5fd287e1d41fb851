package localefile

import (
	"reflect"
	"testing"
)

func TestParseFileType(t *testing.T) {
	tests := []struct {
		in   string
		want FileType
		ext  string
	}{
		{"json", JSON, ".json"},
		{"YAML", YAML, ".yaml"},
		{"yml", YAML, ".yaml"},
		{" properties ", Properties, ".properties"},
	}
	for _, tt := range tests {
		got, err := ParseFileType(tt.in)
		if err != nil {
			t.Fatalf("ParseFileType(%q) error: %v", tt.in, err)
		}
		if got != tt.want || got.Ext() != tt.ext {
			t.Errorf("ParseFileType(%q) = %q (%s), want %q (%s)", tt.in, got, got.Ext(), tt.want, tt.ext)
		}
	}
	if _, err := ParseFileType("po"); err == nil {
		t.Error("ParseFileType(po) should fail")
	}
}

func TestEncodeDecodeEveryType(t *testing.T) {
	tbl := Table{
		Keys:   []string{"title", "nav.home", "nav.about"},
		Values: map[string]string{"title": "Hello", "nav.home": "Home", "nav.about": "About"},
	}
	for _, ft := range FileTypes {
		data, err := Encode(ft, tbl)
		if err != nil {
			t.Fatalf("Encode(%s) error: %v", ft, err)
		}
		got, err := Decode(ft, data)
		if err != nil {
			t.Fatalf("Decode(%s) error: %v\n%s", ft, err, data)
		}
		if !reflect.DeepEqual(got.Keys, tbl.Keys) || !reflect.DeepEqual(got.Values, tbl.Values) {
			t.Errorf("%s round trip = %+v, want %+v", ft, got, tbl)
		}
	}
}

func TestPropertiesStayFlat(t *testing.T) {
	data, err := Encode(Properties, Table{Keys: []string{"nav.home"}, Values: map[string]string{"nav.home": "Home"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "nav.home=Home\n" {
		t.Errorf("Encode(properties) = %q", data)
	}
}
