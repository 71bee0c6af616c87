package facade

import (
	"context"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "short", in: "hello", limit: 10, want: "hello"},
		{name: "exact", in: "hello", limit: 5, want: "hello"},
		{name: "cut", in: "hello world", limit: 7, want: "hello…"},
		{name: "no limit", in: "hello world", limit: 0, want: "hello world"},
		{name: "runes", in: "héllo wörld", limit: 4, want: "hél…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.limit)
			if got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
			if tt.limit > 0 && utf8.RuneCountInString(got) > tt.limit {
				t.Fatalf("result %q longer than %d", got, tt.limit)
			}
		})
	}
}

func TestCannedVoice(t *testing.T) {
	v := NewCannedVoice(10, nil)

	got, err := v.Say(context.Background(), "  Hello! ", Prosody{})
	if err != nil {
		t.Fatal(err)
	}
	if got != defaultPhrases["hello"] {
		t.Fatalf("canned reply = %q", got)
	}

	got, err = v.Say(context.Background(), "This sentence is long.", Prosody{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "This sent…" {
		t.Fatalf("truncated = %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.Say(ctx, "hi", Prosody{}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestApplyProsody(t *testing.T) {
	samples := make([]float32, 1800)
	for i := range samples {
		samples[i] = 0.5
	}

	same := applyProsody(samples, 18000, Prosody{Volume: 1, Rate: DefaultRate})
	if len(same) != len(samples) || same[0] != 0.5 {
		t.Fatalf("default prosody changed audio: len %d first %v", len(same), same[0])
	}

	fast := applyProsody(samples, 18000, Prosody{Volume: 1, Rate: DefaultRate * 2})
	if len(fast) >= len(samples) {
		t.Fatalf("faster rate kept %d samples", len(fast))
	}

	quiet := applyProsody(samples, 18000, Prosody{Volume: 0.5})
	if quiet[100] != 0.25 {
		t.Fatalf("half volume sample = %v", quiet[100])
	}
}
