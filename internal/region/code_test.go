package region

import (
	"encoding/json"
	"testing"
)

func TestCodeKind(t *testing.T) {
	cases := []struct {
		in   Code
		want Kind
	}{
		{"06", KindState},
		{"06001", KindCounty},
		{"06000", KindStateHeader},
		{"6", KindInvalid},
		{"0600", KindInvalid},
		{"0a001", KindInvalid},
		{"", KindInvalid},
	}
	for _, c := range cases {
		if got := c.in.Kind(); got != c.want {
			t.Fatalf("%q: kind=%v want %v", c.in, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   any
		want Code
		ok   bool
	}{
		{"6", "06", true},
		{" 06 ", "06", true},
		{6, "06", true},
		{float64(6001), "06001", true},
		{"6001", "06001", true},
		{"06000", "06", true},
		{json.Number("48201"), "48201", true},
		{"123456", "", false},
		{"CA", "", false},
		{-1, "", false},
		{1.5, "", false},
		{nil, "", false},
	}
	for _, c := range cases {
		got, ok := Normalize(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("Normalize(%v)=(%q,%v) want (%q,%v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNormalizeStateAndCounty_Padding(t *testing.T) {
	if got, ok := NormalizeState(1); !ok || got != "01" {
		t.Fatalf("state: got %q ok=%v", got, ok)
	}
	if _, ok := NormalizeState("123"); ok {
		t.Fatalf("3 digits must not be a state")
	}
	if got, ok := NormalizeCounty(1001); !ok || got != "01001" {
		t.Fatalf("county: got %q ok=%v", got, ok)
	}
	if got, ok := NormalizeCounty("6000"); !ok || got != "06000" {
		t.Fatalf("county header: got %q ok=%v", got, ok)
	}
}

func TestStateOf(t *testing.T) {
	if got := Code("48201").StateOf(); got != "48" {
		t.Fatalf("StateOf=%q", got)
	}
	if got := Code("bad").StateOf(); got != "" {
		t.Fatalf("StateOf invalid=%q", got)
	}
}
