package text

import "testing"

func TestSpellNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "zero"},
		{13, "thirteen"},
		{40, "forty"},
		{42, "forty two"},
		{100, "one hundred"},
		{305, "three hundred five"},
		{2024, "two thousand twenty four"},
		{1_000_001, "one million one"},
	}

	for _, tc := range tests {
		if got := SpellNumber(tc.n); got != tc.want {
			t.Errorf("SpellNumber(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestExpandNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"I have 3 cats.", "I have three cats."},
		{"Pi is 3.14", "Pi is three point one four"},
		{"Pop 1,200 people", "Pop one thousand two hundred people"},
		{"no digits", "no digits"},
	}

	for _, tc := range tests {
		if got := ExpandNumbers(tc.input); got != tc.want {
			t.Errorf("ExpandNumbers(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
