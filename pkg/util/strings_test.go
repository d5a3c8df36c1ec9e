package util

import (
	"reflect"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct{ input, want string }{
		{"hello", "hello"},
		{"a b c", "a-b-c"},
		{"foo/bar.baz", "foo-bar-baz"},
		{"123e4567-e89b-12d3-a456-426614174000", "123e4567-e89b-12d3-a456-426614174000"},
		{"svc:1_2", "svc-1-2"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.input); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSplitCommaSeparated(t *testing.T) {
	if got := SplitCommaSeparated(""); got != nil {
		t.Errorf("SplitCommaSeparated(\"\") = %v, want nil", got)
	}
	got := SplitCommaSeparated(" sip-a, sip-b,,sip-c ")
	want := []string{"sip-a", "sip-b", "sip-c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitCommaSeparated = %v, want %v", got, want)
	}
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("interface Gi4  \n\n no shutdown\n   \n")
	want := []string{"interface Gi4", " no shutdown"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLines = %q, want %q", got, want)
	}
	if SplitLines("") != nil {
		t.Error("SplitLines(\"\") should be nil")
	}
}
