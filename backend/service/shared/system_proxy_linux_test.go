//go:build linux
// +build linux

package shared

import "testing"

func TestFormatGVariantStringList(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, "[]"},
		{[]string{"localhost"}, "['localhost']"},
		{[]string{"localhost", "127.*"}, "['localhost', '127.*']"},
		{[]string{"it's"}, `['it\'s']`},
	}
	for _, tc := range cases {
		if got := formatGVariantStringList(tc.in); got != tc.want {
			t.Fatalf("formatGVariantStringList(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestEscapeGVariantString(t *testing.T) {
	if got := escapeGVariantString("a'b"); got != `a\'b` {
		t.Fatalf("got %s", got)
	}
	if got := escapeGVariantString("plain"); got != "plain" {
		t.Fatalf("got %s", got)
	}
}
