package text

import (
	"reflect"
	"strings"
	"testing"
)

func TestG2PConvertLexicon(t *testing.T) {
	g := NewG2P()

	got := g.Convert("Nice to meet you.")
	want := []string{"N", "AY1", "S", "T", "UW1", "M", "IY1", "T", "Y", "UW1"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Convert = %v, want %v", got, want)
	}
}

func TestG2PConvertRules(t *testing.T) {
	g := NewG2P()

	got := g.Convert("Blip")
	want := []string{"B", "L", "IH1", "P"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Convert(Blip) = %v, want %v", got, want)
	}
}

func TestG2PStressOnlyFirstVowel(t *testing.T) {
	phones := spellWord("banana")

	var stress []string
	for _, ph := range phones {
		if IsVowelPhone(ph) {
			stress = append(stress, ph[len(ph)-1:])
		}
	}

	if !reflect.DeepEqual(stress, []string{"1", "0", "0"}) {
		t.Fatalf("stress digits = %v (phones %v)", stress, phones)
	}
}

func TestG2PExpandsNumbers(t *testing.T) {
	g := NewG2P()

	got := g.Convert("2")
	want := []string{"T", "W", "AA1"}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Convert(2) = %v, want %v", got, want)
	}
}

func TestG2PLoadLexicon(t *testing.T) {
	g := NewG2P()

	src := strings.Join([]string{
		";;; comment",
		"ZEBRA  Z IY1 B R AH0",
		"ZEBRA(1)  Z EH1 B R AH0",
		"",
	}, "\n")

	n, err := g.LoadLexicon(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadLexicon: %v", err)
	}

	if n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}

	got := g.Convert("zebra")
	if !reflect.DeepEqual(got, []string{"Z", "IY1", "B", "R", "AH0"}) {
		t.Fatalf("Convert(zebra) = %v", got)
	}
}

func TestG2PDropsPunctuationOnly(t *testing.T) {
	if got := NewG2P().Convert("?!..."); len(got) != 0 {
		t.Fatalf("Convert(punctuation) = %v, want empty", got)
	}
}
