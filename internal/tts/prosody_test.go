package tts

import (
	"math"
	"testing"
)

func TestVowelRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"bcd", 0},
		{"aeio", 1},
		{"hello", 0.4},
		{"ˈhɛloʊ", 1.0 / 6},
	}

	for _, tt := range tests {
		if got := vowelRatio(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("vowelRatio(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProsodyLengthScale(t *testing.T) {
	tests := []struct {
		name    string
		decoded string
		tokens  int
		want    float64
	}{
		{name: "consonant heavy and short", decoded: "bcd", tokens: 3, want: 1.06 * 1.04},
		{name: "vowel heavy", decoded: "aeiouaeioubb", tokens: 12, want: 0.97},
		{name: "balanced", decoded: "abababababab", tokens: 12, want: 1},
		{name: "balanced but short", decoded: "abab", tokens: 4, want: 1.04},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prosodyLengthScale(1, tt.decoded, tt.tokens); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDurationBias(t *testing.T) {
	tests := []struct {
		name     string
		tokens   []string
		stressed map[int]bool
		question bool
		want     []float32
	}{
		{
			name:     "stressed vowel and final pause",
			tokens:   []string{"a", "b", "."},
			stressed: map[int]bool{0: true},
			want:     []float32{0.20, 0.20, 0.05},
		},
		{
			name:     "question stretches the last vowel",
			tokens:   []string{"h", "i", "?"},
			question: true,
			want:     []float32{0, 0.49, 0.05},
		},
		{
			name:   "leading punctuation has nothing to lengthen",
			tokens: []string{",", "b", "b", "b", "b"},
			want:   []float32{0, 0, 0, 0.05, 0.05},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := durationBias(tt.tokens, tt.stressed, tt.question)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Fatalf("bias[%d] = %v, want %v (all %v)", i, got[i], tt.want[i], got)
				}
			}
		})
	}
}

func TestRemapStress(t *testing.T) {
	got := remapStress(map[int]bool{1: true, 3: true, 4: true}, []int{0, 1, 3})
	if len(got) != 2 || !got[1] || !got[2] {
		t.Fatalf("remapStress = %v", got)
	}

	if remapStress(nil, []int{0}) != nil {
		t.Fatal("expected nil for no stress")
	}
}

func TestParams(t *testing.T) {
	clarity := Options{ClarityMode: true}.params(1.2, 0.9, 0.8)
	if clarity != (inferParams{lengthScale: 1.2, noiseScale: 0.55, noiseScaleW: 0.5, sdpRatio: 0.25}) {
		t.Fatalf("clarity params = %+v", clarity)
	}

	plain := Options{}.params(1.0, 0.9, 0.8)
	if math.Abs(plain.lengthScale-1.05) > 1e-12 || plain.noiseScale != 0.9 || plain.noiseScaleW != 0.8 || plain.sdpRatio != 0.2 {
		t.Fatalf("plain params = %+v", plain)
	}
}
