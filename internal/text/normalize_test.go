package text

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "clean text", input: "Hello world", want: "Hello world"},
		{name: "trims edges", input: "\t\n  Hello world \n\t", want: "Hello world"},
		{name: "CRLF and bare CR", input: "a\r\nb\rc\nd", want: "a\nb\nc\nd"},
		{name: "tabs become spaces", input: "one\ttwo", want: "one two"},
		{name: "no-break spaces", input: "10\u00a0km and 5\u202fm", want: "10 km and 5 m"},
		{name: "drops zero-width and bidi marks", input: "he\u200bllo\u200e there\ufeff", want: "hello there"},
		{name: "drops control bytes", input: "beep\x07 boop\x00", want: "beep boop"},
		{name: "composes to NFC", input: "Cafe\u0301", want: "Caf\u00e9"},
		{name: "keeps internal spacing", input: "  hello   world  ", want: "hello   world"},
		{name: "idempotent on output", input: "Héllo wörld", want: "Héllo wörld"},
		{name: "empty", input: "", wantErr: ErrEmptyText},
		{name: "whitespace only", input: "   \t\n  ", wantErr: ErrEmptyText},
		{name: "format runes only", input: "\u200b\u200d\ufeff", wantErr: ErrEmptyText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
