package chat

import (
	"reflect"
	"testing"
)

func TestSplitReply(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{"three lines", "a\nb\nc", []string{"a", "b", "c"}},
		{"blank lines dropped", "a\n\n\nb", []string{"a", "b"}},
		{"empty output", "", []string{}},
		{"only newlines", "\n\n", []string{}},
		{"whitespace-only lines dropped", "hey there  \n\t\n \nok ", []string{"hey there", "ok"}},
		{"indentation kept", "steps:\n  1. breathe\n  2. relax", []string{"steps:", "  1. breathe", "  2. relax"}},
		{"crlf tolerated", "one\r\ntwo\r\n", []string{"one", "two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitReply(tt.output)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SplitReply(%q) = %#v, want %#v", tt.output, got, tt.want)
			}
		})
	}
}
