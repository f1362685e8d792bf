package field

import (
	"reflect"
	"testing"
	"time"
)

func TestKnown(t *testing.T) {
	for _, k := range []Kind{Text, Markdown, Code, URL, Boolean, DateTime, Config, Strings, Records} {
		if !k.Known() {
			t.Errorf("%q not known", k)
		}
	}
	if Kind("blob").Known() {
		t.Error("unknown kind accepted")
	}
}

func TestCoerce_NilYieldsZero(t *testing.T) {
	got, err := Strings.Coerce(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{}) {
		t.Errorf("zero = %#v", got)
	}
}

func TestCoerce_Text(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"hello", "hello"},
		{42, "42"},
		{3.5, "3.5"},
		{true, "true"},
	}
	for _, c := range cases {
		got, err := Text.Coerce(c.in)
		if err != nil {
			t.Errorf("Coerce(%v): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Coerce(%v) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := Text.Coerce([]any{"x"}); err == nil {
		t.Error("list coerced to text")
	}
}

func TestCoerce_URL(t *testing.T) {
	if _, err := URL.Coerce("https://example.com/page"); err != nil {
		t.Errorf("valid url rejected: %v", err)
	}
	if _, err := URL.Coerce("not a url at all"); err == nil {
		t.Error("invalid url accepted")
	}
	got, err := URL.Coerce("")
	if err != nil || got != "" {
		t.Errorf("empty url: %v, %v", got, err)
	}
}

func TestCoerce_Boolean(t *testing.T) {
	for in, want := range map[any]bool{true: true, "true": true, "false": false} {
		got, err := Boolean.Coerce(in)
		if err != nil || got != want {
			t.Errorf("Coerce(%v) = %v, %v", in, got, err)
		}
	}
	if _, err := Boolean.Coerce("yes"); err == nil {
		t.Error(`"yes" accepted as boolean`)
	}
}

func TestCoerce_DateTimeLayouts(t *testing.T) {
	cases := []string{
		"2025-01-15T10:30:00Z",
		"2025-01-15 10:30:00",
		"2025-01-15",
	}
	for _, c := range cases {
		got, err := DateTime.Coerce(c)
		if err != nil {
			t.Errorf("Coerce(%q): %v", c, err)
			continue
		}
		if _, ok := got.(time.Time); !ok {
			t.Errorf("Coerce(%q) = %T, want time.Time", c, got)
		}
	}
	if _, err := DateTime.Coerce("yesterday"); err == nil {
		t.Error("free-form date accepted")
	}
}

func TestCoerce_ConfigConvertsAnyKeys(t *testing.T) {
	in := map[any]any{"a": 1, "b": "two"}
	got, err := Config.Coerce(in)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := got.(map[string]any)
	if !ok || m["a"] != 1 || m["b"] != "two" {
		t.Errorf("coerced config = %#v", got)
	}
	if _, err := Config.Coerce(map[any]any{1: "x"}); err == nil {
		t.Error("non-string key accepted")
	}
}

func TestCoerce_StringsAndRecords(t *testing.T) {
	got, err := Strings.Coerce([]any{"a", "b"})
	if err != nil || !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("strings = %#v, %v", got, err)
	}
	if _, err := Strings.Coerce([]any{"a", 1}); err == nil {
		t.Error("mixed list accepted as strings")
	}

	recs, err := Records.Coerce([]any{map[string]any{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	if list, ok := recs.([]map[string]any); !ok || list[0]["k"] != "v" {
		t.Errorf("records = %#v", recs)
	}
}

func TestEncode_DateTime(t *testing.T) {
	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	if got := DateTime.Encode(ts); got != "2025-01-15T10:30:00Z" {
		t.Errorf("Encode = %v", got)
	}
	if got := Text.Encode("x"); got != "x" {
		t.Errorf("Encode passthrough = %v", got)
	}
}
